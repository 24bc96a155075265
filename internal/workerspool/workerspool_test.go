// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitToStart(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(2)

	const numTasks = 20
	var count atomic.Int32
	var wg sync.WaitGroup
	for range numTasks {
		wg.Add(1)
		pool.WaitToStart(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	require.Equal(t, int32(numTasks), count.Load())
}

func TestWaitToStartInline(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(0)
	ran := false
	pool.WaitToStart(func() { ran = true })
	// With parallelism disabled the task runs inline, so it finished already.
	require.True(t, ran)
}

func TestStartIfAvailable(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.True(t, pool.StartIfAvailable(func() {
		defer wg.Done()
		<-block
	}))
	// The single worker is busy now.
	require.False(t, pool.StartIfAvailable(func() {}))
	close(block)
	wg.Wait()
}

func TestFor(t *testing.T) {
	pool := New()

	const n = 100_000
	data := make([]int32, n)
	pool.For(n, func(start, end int) {
		for i := start; i < end; i++ {
			data[i]++
		}
	})
	for i, v := range data {
		require.Equal(t, int32(1), v, "element %d", i)
	}

	// Every index is visited exactly once, also with parallelism disabled.
	pool.SetMaxParallelism(0)
	pool.For(n, func(start, end int) {
		for i := start; i < end; i++ {
			data[i]++
		}
	})
	require.Equal(t, int32(2), data[0])
	require.Equal(t, int32(2), data[n-1])

	// Empty ranges are a no-op.
	pool.For(0, func(start, end int) { t.Fatal("must not be called") })
}
