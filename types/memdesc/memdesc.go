// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package memdesc defines Desc, the memory descriptor of one tensor-valued port of a
// computational node: its logical dimensions, element type (a dtypes.DType) and physical
// layout (axis order, channel blocking, strides, padding).
//
// A Desc can be in three states of completeness:
//
//   - ANY: only dtype and dimensions are known; the layout is left to be negotiated with
//     the neighboring node (Format == FormatAny).
//   - uninitialized: the block structure (order + block dims) is proposed, but strides and
//     offsets carry the Uninit sentinel, so the descriptor cannot address memory yet.
//   - initialized: fully concrete, usable to allocate and address a buffer.
//
// The distinction drives the format-negotiation pass of the graph package: candidate
// implementations advertise uninitialized descriptors, selection compares them
// structurally, and finalization resolves them to initialized ones against the chosen
// descriptors of the neighbors.
package memdesc

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/goinfer/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
)

// Uninit is the sentinel stored in strides and offsets of descriptors whose block
// structure is proposed but whose addressing is not resolved yet.
const Uninit = -1

// Blocking describes the physical layout of a Desc: the memory order of the axes
// (with the blocked axis repeated at the end), the dimensions of each entry in that
// order (outer channel count divided by the block size for blocked layouts), dense or
// Uninit strides, and padding offsets.
type Blocking struct {
	// BlockDims has one entry per Order entry: the outer dims first (padded where the
	// axis is blocked), the inner block sizes last.
	BlockDims []int

	// Order lists logical axis indices in memory order; a repeated axis marks blocking.
	Order []int

	// Strides per BlockDims entry, innermost entry always 1 when initialized.
	Strides []int

	// OffsetPadding is the element offset of the first valid element, Uninit when the
	// descriptor is not resolved.
	OffsetPadding int

	// OffsetPaddingToData is the per-entry padding before data, normally all zeros.
	OffsetPaddingToData []int
}

// Clone returns a deep copy of the blocking.
func (b Blocking) Clone() Blocking {
	return Blocking{
		BlockDims:           slices.Clone(b.BlockDims),
		Order:               slices.Clone(b.Order),
		Strides:             slices.Clone(b.Strides),
		OffsetPadding:       b.OffsetPadding,
		OffsetPaddingToData: slices.Clone(b.OffsetPaddingToData),
	}
}

// Desc is the memory descriptor of one tensor: logical dims, element dtype, and layout.
//
// Use MakeAny, Make or FromBlocking to create one; the zero Desc is invalid.
type Desc struct {
	DType    dtypes.DType
	Dims     []int
	Format   Format
	Blocking Blocking
}

// MakeAny returns a Desc with known dtype and dims and no layout commitment.
func MakeAny(dtype dtypes.DType, dims ...int) Desc {
	checkDims(dtype, dims)
	return Desc{DType: dtype, Dims: slices.Clone(dims), Format: FormatAny}
}

// Make returns an initialized Desc with the layout of the given format tag.
// It panics if the dims are invalid or the format does not apply to the rank: those are
// programming errors of the caller, not data-dependent conditions.
func Make(dtype dtypes.DType, format Format, dims ...int) Desc {
	checkDims(dtype, dims)
	if format == FormatAny {
		return MakeAny(dtype, dims...)
	}
	if r := format.Rank(); r >= 0 && r != len(dims) {
		exceptions.Panicf("memdesc.Make(%s, %s): format needs rank %d, got dims %v", dtype, format, r, dims)
	}
	if format == FormatX && len(dims) > 1 {
		exceptions.Panicf("memdesc.Make(%s, x): rank at most 1, got dims %v", dtype, dims)
	}
	if format == FormatUndef || format == FormatBlocked {
		exceptions.Panicf("memdesc.Make(%s, %s): format carries no layout, use FromBlocking", dtype, format)
	}
	return Desc{
		DType:    dtype,
		Dims:     slices.Clone(dims),
		Format:   format,
		Blocking: blockingFor(format, dims),
	}
}

// namedFormats lists the named tags FromBlocking tries, in preference order: data
// layouts before the weights aliases that share the same dense order (nchw vs oihw).
var namedFormats = []Format{
	FormatX, FormatNC, FormatTNC, FormatNTC,
	FormatNCHW, FormatNHWC, FormatNChw8c, FormatNChw16c,
	FormatNCDHW, FormatNDHWC, FormatNCdhw8c, FormatNCdhw16c,
	FormatOIHW, FormatGOIHW, FormatOIDHW, FormatGOIDHW,
}

// FromBlocking returns a Desc with an explicit blocking; the strides may be dense values
// or Uninit sentinels. The Format is resolved back to a named tag when the blocking
// matches one for these dims, else FormatBlocked.
func FromBlocking(dtype dtypes.DType, dims []int, blocking Blocking) Desc {
	checkDims(dtype, dims)
	d := Desc{DType: dtype, Dims: slices.Clone(dims), Format: FormatBlocked, Blocking: blocking.Clone()}
	for _, f := range namedFormats {
		if f.Rank() >= 0 && f.Rank() != len(dims) {
			continue
		}
		if f == FormatX && len(dims) > 1 {
			continue
		}
		ref := blockingFor(f, dims)
		if slices.Equal(ref.Order, blocking.Order) && slices.Equal(ref.BlockDims, blocking.BlockDims) {
			d.Format = f
			break
		}
	}
	return d
}

func checkDims(dtype dtypes.DType, dims []int) {
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("memdesc: cannot create a Desc with an invalid dtype")
	}
	for _, dim := range dims {
		if dim <= 0 {
			exceptions.Panicf("memdesc: cannot create a Desc with an axis of dimension <= 0 (dims=%v)", dims)
		}
	}
}

// blockingFor derives the dense blocking of a named format for the given dims.
func blockingFor(format Format, dims []int) Blocking {
	order := format.order()
	if len(dims) == 0 {
		// Scalar: a single element, no axes.
		return Blocking{BlockDims: []int{}, Order: []int{}, Strides: []int{}, OffsetPaddingToData: []int{}}
	}
	bs := format.BlockSize()
	counts := make(map[int]int, len(order))
	for _, ax := range order {
		counts[ax]++
	}
	blockDims := make([]int, len(order))
	firstSeen := make(map[int]bool, len(order))
	for i, ax := range order {
		switch {
		case firstSeen[ax]:
			blockDims[i] = bs
		case counts[ax] > 1:
			blockDims[i] = ceilDiv(dims[ax], bs)
		default:
			blockDims[i] = dims[ax]
		}
		firstSeen[ax] = true
	}
	strides := make([]int, len(order))
	stride := 1
	for i := len(order) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= blockDims[i]
	}
	return Blocking{
		BlockDims:           blockDims,
		Order:               order,
		Strides:             strides,
		OffsetPadding:       0,
		OffsetPaddingToData: make([]int, len(order)),
	}
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Ok returns whether the Desc was properly constructed: the zero Desc is not Ok.
func (d Desc) Ok() bool { return d.DType != dtypes.InvalidDType && d.Format != FormatUndef }

// Rank is the number of logical axes.
func (d Desc) Rank() int { return len(d.Dims) }

// Size is the number of logical elements, the product of Dims (1 for scalars).
func (d Desc) Size() int {
	size := 1
	for _, dim := range d.Dims {
		size *= dim
	}
	return size
}

// PaddedSize is the number of stored elements including block padding, the product of
// the block dims. For ANY descriptors it falls back to the logical Size.
func (d Desc) PaddedSize() int {
	if d.IsAny() {
		return d.Size()
	}
	size := 1
	for _, dim := range d.Blocking.BlockDims {
		size *= dim
	}
	return size
}

// Memory is the number of bytes needed to store the (padded) tensor.
func (d Desc) Memory() uintptr {
	return d.DType.Memory() * uintptr(d.PaddedSize())
}

// IsAny reports whether the layout is still fully open for negotiation.
func (d Desc) IsAny() bool { return d.Format == FormatAny }

// IsUninit reports whether the descriptor cannot address memory yet: either the layout is
// ANY, or the block structure is proposed but strides/offsets are unresolved.
func (d Desc) IsUninit() bool {
	if !d.Ok() || d.IsAny() {
		return true
	}
	if d.Blocking.OffsetPadding == Uninit {
		return true
	}
	for i := range d.Blocking.Order {
		if d.Blocking.Strides[i] == Uninit {
			return true
		}
		if i < len(d.Blocking.OffsetPaddingToData) && d.Blocking.OffsetPaddingToData[i] == Uninit {
			return true
		}
	}
	return false
}

// Uninitialized returns a copy that keeps the proposed block structure but drops the
// concrete addressing: strides and the padding offset become Uninit. Candidate
// implementations advertise their port layouts in this state, so that selection can
// compare structures without committing to strides.
func (d Desc) Uninitialized() Desc {
	if d.IsAny() {
		return d.Clone()
	}
	u := d.Clone()
	u.Blocking.OffsetPadding = Uninit
	xslices.FillSlice(u.Blocking.Strides, Uninit)
	return u
}

// Initialized returns a copy with dense strides recomputed from the block dims and a
// zero padding offset. It panics on ANY descriptors, which have no structure to resolve.
func (d Desc) Initialized() Desc {
	if d.IsAny() {
		exceptions.Panicf("memdesc: cannot initialize an ANY descriptor (%s), resolve its layout first", d)
	}
	c := d.Clone()
	stride := 1
	for i := len(c.Blocking.BlockDims) - 1; i >= 0; i-- {
		c.Blocking.Strides[i] = stride
		stride *= c.Blocking.BlockDims[i]
	}
	c.Blocking.OffsetPadding = 0
	for i := range c.Blocking.OffsetPaddingToData {
		c.Blocking.OffsetPaddingToData[i] = 0
	}
	return c
}

// WithDType returns a copy with the dtype replaced, layout untouched.
func (d Desc) WithDType(dtype dtypes.DType) Desc {
	c := d.Clone()
	c.DType = dtype
	return c
}

// Clone returns a deep copy.
func (d Desc) Clone() Desc {
	return Desc{
		DType:    d.DType,
		Dims:     slices.Clone(d.Dims),
		Format:   d.Format,
		Blocking: d.Blocking.Clone(),
	}
}

// String pretty-prints the descriptor, e.g. "(Float32)[1 16 8 8]:nChw8c".
func (d Desc) String() string {
	if !d.Ok() {
		return "(invalid)"
	}
	suffix := d.Format.Name()
	if d.IsUninit() && !d.IsAny() {
		suffix += "?"
	}
	return fmt.Sprintf("(%s)%v:%s", d.DType, d.Dims, suffix)
}

// EqualAsInit compares two descriptors the way the selection pass needs to: dims and
// dtype must match; an ANY side matches anything; otherwise the block structures must
// agree entry-wise with Uninit acting as a wildcard. The stride of the outermost entry is
// not compared when the batch dimension is larger than one, so that dynamic-batch views
// of the same layout compare equal.
func (d Desc) EqualAsInit(other Desc) bool {
	if d.DType != other.DType || !slices.Equal(d.Dims, other.Dims) {
		return false
	}
	if d.IsAny() || other.IsAny() {
		return true
	}
	a, b := d.Blocking, other.Blocking
	if len(a.Order) != len(b.Order) || len(a.BlockDims) != len(b.BlockDims) {
		return false
	}
	batchOne := len(d.Dims) == 0 || d.Dims[0] == 1
	for i := range a.Order {
		if a.Order[i] != b.Order[i] {
			return false
		}
		if a.BlockDims[i] != b.BlockDims[i] && a.BlockDims[i] != Uninit && b.BlockDims[i] != Uninit {
			return false
		}
		if i < len(a.OffsetPaddingToData) && i < len(b.OffsetPaddingToData) {
			p, q := a.OffsetPaddingToData[i], b.OffsetPaddingToData[i]
			if p != q && p != Uninit && q != Uninit {
				return false
			}
		}
		if i == 0 && !batchOne {
			continue
		}
		if i < len(a.Strides) && i < len(b.Strides) &&
			a.Strides[i] != b.Strides[i] && a.Strides[i] != Uninit && b.Strides[i] != Uninit {
			return false
		}
	}
	if a.OffsetPadding != b.OffsetPadding && a.OffsetPadding != Uninit && b.OffsetPadding != Uninit {
		return false
	}
	return true
}

// SamePartialLayout compares only the block structure -- axis order and block dims --
// ignoring strides and offsets entirely. This is the comparison used when filtering
// candidates against declared format hints.
func (d Desc) SamePartialLayout(other Desc) bool {
	if d.IsAny() || other.IsAny() {
		return false
	}
	return slices.Equal(d.Blocking.Order, other.Blocking.Order) &&
		slices.Equal(d.Blocking.BlockDims, other.Blocking.BlockDims)
}

// MatchesFormat reports whether the descriptor's block structure equals the one the
// given format tag would produce for its dims. A format that cannot apply to the rank
// never matches.
func (d Desc) MatchesFormat(format Format) bool {
	if !d.Ok() || d.IsAny() {
		return false
	}
	if r := format.Rank(); r >= 0 && r != d.Rank() {
		return false
	}
	if format == FormatX && d.Rank() > 1 {
		return false
	}
	if format == FormatAny || format == FormatUndef || format == FormatBlocked {
		return false
	}
	ref := blockingFor(format, d.Dims)
	return slices.Equal(d.Blocking.Order, ref.Order) && slices.Equal(d.Blocking.BlockDims, ref.BlockDims)
}
