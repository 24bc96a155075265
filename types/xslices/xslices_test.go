package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	count := 17
	in := make([]int, count)
	for ii := 0; ii < count; ii++ {
		in[ii] = ii
	}
	out := Map(in, func(v int) int32 { return int32(v + 1) })
	for ii := 0; ii < count; ii++ {
		assert.Equalf(t, int32(ii+1), out[ii], "element %d doesn't match", ii)
	}
}

func TestCopy(t *testing.T) {
	s := []int{1, 2, 3}
	c := Copy(s)
	c[0] = 99
	assert.Equal(t, []int{1, 2, 3}, s)
	assert.Nil(t, Copy[int](nil))
}

func TestFillSlice(t *testing.T) {
	s := make([]int, 3)
	FillSlice(s, 7)
	assert.Equal(t, []int{7, 7, 7}, s)
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"c": 3, "a": 1, "b": 2}
	require.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	require.Len(t, Keys(m), 3)
}

func TestIota(t *testing.T) {
	assert.Equal(t, []float64{3, 4}, Iota(3.0, 2))
	assert.Equal(t, []int{0, 1, 2, 3}, Iota(0, 4))
}
