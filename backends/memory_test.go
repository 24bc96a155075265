// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	desc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3)
	m, err := NewMemory(desc)
	require.NoError(t, err)
	flat, ok := m.Flat().([]float32)
	require.True(t, ok)
	require.Len(t, flat, 6)
	require.Equal(t, 24, m.ByteSize())
	require.Len(t, m.Bytes(), 24)

	// Blocked layouts allocate the padded size.
	blocked := memdesc.Make(dtypes.Float32, memdesc.FormatNChw8c, 1, 19, 5, 5)
	mb, err := NewMemory(blocked)
	require.NoError(t, err)
	require.Len(t, mb.Flat().([]float32), 3*5*5*8)

	// Non-concrete descriptors cannot be allocated.
	_, err = NewMemory(memdesc.MakeAny(dtypes.Float32, 2, 3))
	require.Error(t, err)
	_, err = NewMemory(desc.Uninitialized())
	require.Error(t, err)
}

func TestNewMemoryFromFlat(t *testing.T) {
	desc := memdesc.Make(dtypes.Int32, memdesc.FormatX, 4)
	m, err := NewMemoryFromFlat(desc, []int32{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3, 4}, m.Flat().([]int32))

	_, err = NewMemoryFromFlat(desc, []float32{1, 2, 3, 4})
	require.Error(t, err, "element type mismatch")
	_, err = NewMemoryFromFlat(desc, []int32{1, 2})
	require.Error(t, err, "too short")
}

func TestMemoryViews(t *testing.T) {
	desc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 4, 10)
	m, err := NewMemory(desc)
	require.NoError(t, err)

	// A smaller-batch view over the same storage.
	view, err := m.WithDesc(memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 10))
	require.NoError(t, err)
	require.True(t, m.SharesStorageWith(view))
	require.True(t, view.SharesStorageWith(m))

	// Writes through the view are visible in the original.
	view.Flat().([]float32)[0] = 42
	require.Equal(t, float32(42), m.Flat().([]float32)[0])

	// A view of a view still shares with the root.
	view2, err := view.WithDesc(memdesc.Make(dtypes.Float32, memdesc.FormatNC, 1, 10))
	require.NoError(t, err)
	require.True(t, view2.SharesStorageWith(m))

	other, err := NewMemory(desc)
	require.NoError(t, err)
	require.False(t, m.SharesStorageWith(other))

	// Views cannot outgrow the storage or change the element type.
	_, err = m.WithDesc(memdesc.Make(dtypes.Float32, memdesc.FormatNC, 8, 10))
	require.Error(t, err)
	_, err = m.WithDesc(memdesc.Make(dtypes.Float16, memdesc.FormatNC, 4, 10))
	require.Error(t, err)
}

func TestMemoryCopyFrom(t *testing.T) {
	desc := memdesc.Make(dtypes.Float32, memdesc.FormatX, 3)
	src, err := NewMemoryFromFlat(desc, []float32{1, 2, 3})
	require.NoError(t, err)
	dst, err := NewMemory(desc)
	require.NoError(t, err)
	require.NoError(t, dst.CopyFrom(src))
	require.Equal(t, []float32{1, 2, 3}, dst.Flat().([]float32))

	wrongType, err := NewMemory(memdesc.Make(dtypes.Int32, memdesc.FormatX, 3))
	require.NoError(t, err)
	require.Error(t, wrongType.CopyFrom(src))
}

func TestMemoryBytesBF16(t *testing.T) {
	desc := memdesc.Make(dtypes.BFloat16, memdesc.FormatX, 4)
	m, err := NewMemory(desc)
	require.NoError(t, err)
	flat := m.Flat().([]bfloat16.BFloat16)
	flat[0] = bfloat16.FromFloat32(1.5)
	require.Len(t, m.Bytes(), 8)
	require.Contains(t, m.String(), "Memory[")
}

func TestArgKeys(t *testing.T) {
	require.Equal(t, ArgKey{Role: ArgSrc}, Arg(ArgSrc))
	require.Equal(t, ArgKey{Role: ArgSrc, Index: 1}, ArgAt(ArgSrc, 1))
	require.True(t, ArgSrc.IsActivation())
	require.True(t, ArgDst.IsActivation())
	require.True(t, ArgDiffSrc.IsActivation())
	require.False(t, ArgWeights.IsActivation())
	require.False(t, ArgBias.IsActivation())
	require.Equal(t, "Weights", ArgWeights.String())
}
