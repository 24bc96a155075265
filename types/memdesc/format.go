// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memdesc

import (
	"github.com/pkg/errors"
)

// Format is a named memory-layout tag: it encodes the physical order of the axes and,
// for the blocked variants, the inner block size of the channel axis.
//
// The textual names follow the usual CPU-backend conventions: lower-case letters are the
// logical axes in memory order, an upper-case letter followed by "<n><letter>" means the
// axis is split in blocks of n (e.g. nChw8c: channels in blocks of 8, innermost).
type Format int

//go:generate go tool enumer -type=Format -trimprefix=Format -output=gen_format_enumer.go format.go

const (
	// FormatUndef marks a Desc with no layout information at all.
	FormatUndef Format = iota

	// FormatAny is the "layout not yet fixed" marker used while negotiating formats
	// between neighboring nodes.
	FormatAny

	// FormatX is the dense layout for scalars and rank-1 tensors.
	FormatX

	// FormatNC is the dense rank-2 layout.
	FormatNC

	// FormatTNC and FormatNTC are the rank-3 layouts (time-major and batch-major).
	FormatTNC
	FormatNTC

	// Rank-4 data layouts.
	FormatNCHW
	FormatNHWC
	FormatNChw8c
	FormatNChw16c

	// Rank-5 data layouts.
	FormatNCDHW
	FormatNDHWC
	FormatNCdhw8c
	FormatNCdhw16c

	// Weights layouts: dense, but named after their semantic axes.
	FormatOIHW
	FormatGOIHW
	FormatOIDHW
	FormatGOIDHW

	// FormatBlocked marks a Desc whose layout is given by an explicit Blocking and does
	// not correspond to any of the named tags.
	FormatBlocked
)

// formatNames is the parse table for ParseFormat. Parsing is case-sensitive on purpose:
// "nChw8c" and "nchw8c" are different strings and only the first is a valid tag.
var formatNames = map[string]Format{
	"any":      FormatAny,
	"x":        FormatX,
	"nc":       FormatNC,
	"tnc":      FormatTNC,
	"ntc":      FormatNTC,
	"nchw":     FormatNCHW,
	"nhwc":     FormatNHWC,
	"nChw8c":   FormatNChw8c,
	"nChw16c":  FormatNChw16c,
	"ncdhw":    FormatNCDHW,
	"ndhwc":    FormatNDHWC,
	"nCdhw8c":  FormatNCdhw8c,
	"nCdhw16c": FormatNCdhw16c,
	"oihw":     FormatOIHW,
	"goihw":    FormatGOIHW,
	"oidhw":    FormatOIDHW,
	"goidhw":   FormatGOIDHW,
}

// ParseFormat converts a textual layout tag ("nchw", "nChw8c", ...) to its Format.
// Unknown tags are an error: a mistyped format hint must abort the graph build rather
// than silently fall back to a default layout.
func ParseFormat(name string) (Format, error) {
	f, found := formatNames[name]
	if !found {
		return FormatUndef, errors.Errorf("unknown memory format %q", name)
	}
	return f, nil
}

// Name returns the textual tag of the format, the inverse of ParseFormat.
// FormatUndef, FormatAny and FormatBlocked return their enum String.
func (f Format) Name() string {
	for name, format := range formatNames {
		if format == f {
			return name
		}
	}
	return f.String()
}

// BlockSize returns the inner channel-block size for the blocked formats, 0 otherwise.
func (f Format) BlockSize() int {
	switch f {
	case FormatNChw8c, FormatNCdhw8c:
		return 8
	case FormatNChw16c, FormatNCdhw16c:
		return 16
	}
	return 0
}

// Rank returns the tensor rank the format applies to, or -1 if the format is
// rank-agnostic (FormatUndef, FormatAny, FormatBlocked) or rank ≤ 1 (FormatX).
func (f Format) Rank() int {
	switch f {
	case FormatNC:
		return 2
	case FormatTNC, FormatNTC:
		return 3
	case FormatNCHW, FormatNHWC, FormatNChw8c, FormatNChw16c, FormatOIHW:
		return 4
	case FormatNCDHW, FormatNDHWC, FormatNCdhw8c, FormatNCdhw16c, FormatGOIHW, FormatOIDHW:
		return 5
	case FormatGOIDHW:
		return 6
	}
	return -1
}

// order returns the memory order of the axes for the format: a permutation of the logical
// axes, with the blocked axis repeated at the end for blocked formats.
func (f Format) order() []int {
	switch f {
	case FormatX:
		return []int{0}
	case FormatNC:
		return []int{0, 1}
	case FormatTNC:
		return []int{0, 1, 2}
	case FormatNTC:
		return []int{1, 0, 2}
	case FormatNCHW, FormatOIHW:
		return []int{0, 1, 2, 3}
	case FormatNHWC:
		return []int{0, 2, 3, 1}
	case FormatNChw8c, FormatNChw16c:
		return []int{0, 1, 2, 3, 1}
	case FormatNCDHW, FormatGOIHW, FormatOIDHW:
		return []int{0, 1, 2, 3, 4}
	case FormatNDHWC:
		return []int{0, 2, 3, 4, 1}
	case FormatNCdhw8c, FormatNCdhw16c:
		return []int{0, 1, 2, 3, 4, 1}
	case FormatGOIDHW:
		return []int{0, 1, 2, 3, 4, 5}
	}
	return nil
}

// DefaultFormat returns the dense layout used when nothing better is known for a tensor
// of the given rank. Rank ≥ 6 has no named dense tag.
func DefaultFormat(rank int) Format {
	switch rank {
	case 0, 1:
		return FormatX
	case 2:
		return FormatNC
	case 3:
		return FormatTNC
	case 4:
		return FormatNCHW
	case 5:
		return FormatNCDHW
	}
	return FormatBlocked
}

// AvailableFormatsForRank lists the layouts a node may propose for a tensor of the given
// rank, most specific first.
func AvailableFormatsForRank(rank int) []Format {
	switch rank {
	case 0, 1:
		return []Format{FormatX}
	case 2:
		return []Format{FormatNC}
	case 3:
		return []Format{FormatTNC, FormatNTC}
	case 4:
		return []Format{FormatNCHW, FormatNChw8c, FormatNChw16c}
	case 5:
		return []Format{FormatNCDHW, FormatNCdhw8c, FormatNCdhw16c}
	}
	return []Format{FormatAny}
}

// WeightsFormatForDims returns the canonical layout for a weights blob of the given
// rank; grouped selects the grouped-convolution variants for ranks 5 and 6.
func WeightsFormatForDims(rank int, grouped bool) Format {
	switch rank {
	case 0, 1:
		return FormatX
	case 2:
		return FormatNC
	case 3:
		return FormatTNC
	case 4:
		return FormatOIHW
	case 5:
		if grouped {
			return FormatGOIHW
		}
		return FormatOIDHW
	case 6:
		if grouped {
			return FormatGOIDHW
		}
		return FormatBlocked
	}
	return FormatBlocked
}
