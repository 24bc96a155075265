// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memdesc

import "github.com/gomlx/exceptions"

// axisEntry is one blocking entry relevant to a logical axis: its stride and, for inner
// (block) entries, the block size to decompose the logical index by.
type axisEntry struct {
	stride   int
	blockDim int
}

// Indexer translates logical indices into physical element offsets for one descriptor.
// It precomputes the per-axis decomposition so the per-element At call allocates
// nothing; kernels create one Indexer per tensor and call At in their loops.
type Indexer struct {
	offsetPadding int
	// axes has, per logical axis, its blocking entries ordered outer to inner.
	axes [][]axisEntry
}

// Indexer returns the offset translator for the descriptor. It panics if the descriptor
// is not fully initialized, since uninitialized strides cannot address memory.
func (d Desc) Indexer() Indexer {
	if d.IsUninit() {
		exceptions.Panicf("memdesc: cannot index through non-initialized descriptor %s", d)
	}
	ix := Indexer{
		offsetPadding: d.Blocking.OffsetPadding,
		axes:          make([][]axisEntry, d.Rank()),
	}
	for e, ax := range d.Blocking.Order {
		ix.axes[ax] = append(ix.axes[ax], axisEntry{
			stride:   d.Blocking.Strides[e],
			blockDim: d.Blocking.BlockDims[e],
		})
	}
	return ix
}

// At returns the physical element offset of the given logical indices. len(indices)
// must equal the descriptor's rank.
func (ix Indexer) At(indices []int) int {
	offset := ix.offsetPadding
	for ax, entries := range ix.axes {
		v := indices[ax]
		// Inner entries split off their block remainder, the outer entry takes the rest.
		for j := len(entries) - 1; j >= 1; j-- {
			e := entries[j]
			offset += (v % e.blockDim) * e.stride
			v /= e.blockDim
		}
		offset += v * entries[0].stride
	}
	return offset
}
