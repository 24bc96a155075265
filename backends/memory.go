// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/pkg/errors"
)

// Memory is a tensor buffer paired with the memory descriptor that gives it meaning:
// flat storage plus dims, layout and element type.
//
// Several Memory values may share the same storage with different descriptors; that is
// how in-place execution and dynamic batch re-description work. Use WithDesc to create
// such views and SharesStorageWith to test for them.
type Memory struct {
	desc memdesc.Desc

	// flat is a []T slice, T given by desc.DType, with len >= desc.PaddedSize().
	flat any

	// base is the memory this one is a view of, nil for an owning allocation.
	base *Memory
}

// NewMemory allocates storage for a concrete descriptor. The descriptor must be fully
// initialized: no memdesc.FormatAny and no unset strides.
func NewMemory(desc memdesc.Desc) (*Memory, error) {
	if desc.IsAny() || desc.IsUninit() {
		return nil, errors.Errorf("cannot allocate memory for non-concrete descriptor %s", desc)
	}
	n := desc.PaddedSize()
	flat := reflect.MakeSlice(reflect.SliceOf(desc.DType.GoType()), n, n).Interface()
	return &Memory{desc: desc, flat: flat}, nil
}

// NewMemoryFromFlat wraps caller-owned storage. The flat slice element type must match
// the descriptor's DType and its length must cover the descriptor's padded size.
func NewMemoryFromFlat(desc memdesc.Desc, flat any) (*Memory, error) {
	if desc.IsAny() || desc.IsUninit() {
		return nil, errors.Errorf("cannot wrap memory with non-concrete descriptor %s", desc)
	}
	v := reflect.ValueOf(flat)
	if v.Kind() != reflect.Slice || v.Type().Elem() != desc.DType.GoType() {
		return nil, errors.Errorf("flat data for %s must be a []%s, got %T", desc, desc.DType, flat)
	}
	if v.Len() < desc.PaddedSize() {
		return nil, errors.Errorf("flat data for %s too short: %d elements, need %d",
			desc, v.Len(), desc.PaddedSize())
	}
	return &Memory{desc: desc, flat: flat}, nil
}

// Desc returns the memory descriptor.
func (m *Memory) Desc() memdesc.Desc { return m.desc }

// Flat returns the underlying storage as a []T, T given by Desc().DType.
func (m *Memory) Flat() any { return m.flat }

// WithDesc returns a view over the same storage described by desc: same element type,
// padded size no larger than the storage. The view writes through to this memory.
func (m *Memory) WithDesc(desc memdesc.Desc) (*Memory, error) {
	if desc.IsAny() || desc.IsUninit() {
		return nil, errors.Errorf("cannot view memory through non-concrete descriptor %s", desc)
	}
	if desc.DType != m.desc.DType {
		return nil, errors.Errorf("cannot view %s memory as %s: element types differ", m.desc, desc)
	}
	if desc.PaddedSize() > reflect.ValueOf(m.flat).Len() {
		return nil, errors.Errorf("descriptor %s needs %d elements, storage has %d",
			desc, desc.PaddedSize(), reflect.ValueOf(m.flat).Len())
	}
	base := m
	if m.base != nil {
		base = m.base
	}
	return &Memory{desc: desc, flat: m.flat, base: base}, nil
}

// SharesStorageWith reports whether both memories are views of the same storage.
func (m *Memory) SharesStorageWith(other *Memory) bool {
	if m == nil || other == nil {
		return false
	}
	mBase, oBase := m, other
	if m.base != nil {
		mBase = m.base
	}
	if other.base != nil {
		oBase = other.base
	}
	return mBase == oBase
}

// Bytes returns the storage as a raw byte slice, used for hashing and content copies.
// The slice aliases the storage; writes through it are visible to Flat.
func (m *Memory) Bytes() []byte {
	v := reflect.ValueOf(m.flat)
	if v.Len() == 0 {
		return nil
	}
	n := v.Len() * m.desc.DType.Size()
	return unsafe.Slice((*byte)(v.Index(0).Addr().UnsafePointer()), n)
}

// ByteSize returns the storage size in bytes.
func (m *Memory) ByteSize() int {
	return reflect.ValueOf(m.flat).Len() * m.desc.DType.Size()
}

// CopyFrom copies src's storage into this memory. Element types and padded sizes must
// match; layouts are not reconciled, that is a reorder primitive's job.
func (m *Memory) CopyFrom(src *Memory) error {
	if m.desc.DType != src.desc.DType {
		return errors.Errorf("cannot copy %s into %s: element types differ", src.desc, m.desc)
	}
	if src.desc.PaddedSize() > m.desc.PaddedSize() {
		return errors.Errorf("cannot copy %d elements into %d", src.desc.PaddedSize(), m.desc.PaddedSize())
	}
	reflect.Copy(reflect.ValueOf(m.flat), reflect.ValueOf(src.flat))
	return nil
}

// String implements fmt.Stringer, e.g. "Memory[(Float32)[1 16 8 8]:nChw8c, 4.1 kB]".
func (m *Memory) String() string {
	return fmt.Sprintf("Memory[%s, %s]", m.desc, humanize.Bytes(uint64(m.ByteSize())))
}
