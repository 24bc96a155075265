// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements the cooperative worker pool the cpu engine uses for
// intra-kernel parallelism: splitting batch and channel-block loops across cores.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits how many kernel shards run in parallel. A single Pool is shared by every
// primitive of an engine, so nested parallel sections compete for the same budget
// instead of oversubscribing the machine.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	p := &Pool{}
	p.maxParallelism = runtime.NumCPU()
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// IsEnabled returns whether parallelism is enabled (maxParallelism != 0).
func (p *Pool) IsEnabled() bool {
	return p.maxParallelism != 0
}

// MaxParallelism is a soft target for parallelism.
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// Only change the parallelism before any workers start running. If changed during
// execution the behavior is undefined.
func (p *Pool) SetMaxParallelism(maxParallelism int) {
	p.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with p.mu acquired.
func (p *Pool) lockedIsFull() bool {
	if p.maxParallelism == 0 {
		return true
	} else if p.maxParallelism < 0 {
		return false
	}
	return p.numRunning >= p.maxParallelism
}

// WaitToStart waits until there is a worker available, then runs the task on it.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns
// when it is finished.
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	} else if p.maxParallelism == 0 {
		task()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine keeps tabs on p.numRunning.
//
// It must be called with p.mu acquired.
func (p *Pool) lockedRunTaskInGoroutine(task func()) {
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// StartIfAvailable runs the task in a separate goroutine if there are workers left.
// It returns true if it found a worker to run the task, false otherwise.
//
// It's up to the client to synchronize the end of the task execution.
func (p *Pool) StartIfAvailable(task func()) bool {
	if p.maxParallelism < 0 {
		go task()
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockedIsFull() {
		return false
	}
	p.lockedRunTaskInGoroutine(task)
	return true
}

// minChunk is the smallest shard For hands to a worker: shards below this run inline,
// the goroutine switch costs more than the work.
const minChunk = 1024

// For splits the range [0, n) into contiguous shards and runs fn over them, returning
// when every shard finished. Shards run on pool workers when available and inline
// otherwise, so For never deadlocks on a saturated pool.
//
// fn must be safe to call concurrently for disjoint ranges.
func (p *Pool) For(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if !p.IsEnabled() || n <= minChunk {
		fn(0, n)
		return
	}
	workers := p.maxParallelism
	if workers < 0 {
		workers = runtime.NumCPU()
	}
	numShards := min(workers, (n+minChunk-1)/minChunk)
	shardSize := (n + numShards - 1) / numShards

	var wg sync.WaitGroup
	for start := 0; start < n; start += shardSize {
		end := min(start+shardSize, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			fn(start, end)
		}
		if !p.StartIfAvailable(task) {
			task()
		}
	}
	wg.Wait()
}
