// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memdesc

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestIndexerDense(t *testing.T) {
	d := Make(dtypes.Float32, FormatNCHW, 2, 3, 4, 5)
	ix := d.Indexer()
	require.Equal(t, 0, ix.At([]int{0, 0, 0, 0}))
	require.Equal(t, 1, ix.At([]int{0, 0, 0, 1}))
	require.Equal(t, 5, ix.At([]int{0, 0, 1, 0}))
	require.Equal(t, 4*5, ix.At([]int{0, 1, 0, 0}))
	require.Equal(t, 3*4*5, ix.At([]int{1, 0, 0, 0}))
	require.Equal(t, 2*3*4*5-1, ix.At([]int{1, 2, 3, 4}))
}

func TestIndexerChannelsLast(t *testing.T) {
	d := Make(dtypes.Float32, FormatNHWC, 1, 3, 2, 2)
	ix := d.Indexer()
	// Memory order is n, h, w, c: stepping the channel moves by 1.
	require.Equal(t, 1, ix.At([]int{0, 1, 0, 0}))
	require.Equal(t, 3, ix.At([]int{0, 0, 0, 1}))
	require.Equal(t, 2*3, ix.At([]int{0, 0, 1, 0}))
}

func TestIndexerBlocked(t *testing.T) {
	d := Make(dtypes.Float32, FormatNChw8c, 1, 19, 2, 2)
	ix := d.Indexer()
	// BlockDims [1 3 2 2 8], strides [96 32 16 8 1]: channel c maps to
	// (c/8)*32 + (c%8)*1.
	require.Equal(t, 0, ix.At([]int{0, 0, 0, 0}))
	require.Equal(t, 7, ix.At([]int{0, 7, 0, 0}))
	require.Equal(t, 32, ix.At([]int{0, 8, 0, 0}))
	require.Equal(t, 32+2*1, ix.At([]int{0, 10, 0, 0}))
	require.Equal(t, 2*32+2, ix.At([]int{0, 18, 0, 0}))
	// Spatial steps move by the block size.
	require.Equal(t, 8, ix.At([]int{0, 0, 0, 1}))
	require.Equal(t, 16, ix.At([]int{0, 0, 1, 0}))
}

func TestIndexerScalar(t *testing.T) {
	d := Make(dtypes.Float32, FormatX)
	ix := d.Indexer()
	require.Equal(t, 0, ix.At(nil))
}

func TestIndexerEveryElementUnique(t *testing.T) {
	// Walking all logical indices of a blocked layout touches PaddedSize distinct
	// offsets at most once.
	d := Make(dtypes.Float32, FormatNChw8c, 2, 5, 3, 3)
	ix := d.Indexer()
	seen := make(map[int]bool)
	idx := make([]int, 4)
	for n := 0; n < 2; n++ {
		for c := 0; c < 5; c++ {
			for h := 0; h < 3; h++ {
				for w := 0; w < 3; w++ {
					idx[0], idx[1], idx[2], idx[3] = n, c, h, w
					off := ix.At(idx)
					require.False(t, seen[off], "offset %d visited twice", off)
					require.Less(t, off, d.PaddedSize())
					seen[off] = true
				}
			}
		}
	}
	require.Len(t, seen, d.Size())
}
