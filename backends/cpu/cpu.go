// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cpu implements the portable pure-Go CPU engine for goinfer.
//
// Kernels exist in tiers: reference implementations that work for every layout and
// element type, and tuned implementations advertised per instruction tier (sse42, avx,
// avx2, avx512) together with the blocked memory layouts they prefer. Which tiers are
// advertised depends on the host CPU, detectable at startup and overridable through the
// engine configuration.
package cpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/internal/workerspool"
	"k8s.io/klog/v2"
)

// EngineName to be used in GOINFER_ENGINE to specify this engine.
const EngineName = "cpu"

// Registers New() as the constructor for the "cpu" engine.
func init() {
	backends.Register(EngineName, New)
}

// New constructs a new CPU Engine.
//
// The configuration is a comma-separated list of options:
//
//   - "portable": disable every instruction tier, only reference kernels remain.
//   - "tiers=avx2+sse42": advertise exactly these tiers instead of detecting.
//   - "threads=N": limit intra-kernel parallelism to N workers (0 disables it).
//
// Unknown options panic: a mistyped configuration must not silently fall back to
// defaults.
func New(config string) backends.Engine {
	features := DetectFeatures()
	pool := workerspool.New()
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		switch {
		case option == "":
		case option == "portable":
			features = Features{}
		case strings.HasPrefix(option, "tiers="):
			features = parseTiers(strings.TrimPrefix(option, "tiers="))
		case strings.HasPrefix(option, "threads="):
			threads, err := strconv.Atoi(strings.TrimPrefix(option, "threads="))
			if err != nil {
				exceptions.Panicf("cpu engine: invalid threads option %q: %v", option, err)
			}
			pool.SetMaxParallelism(threads)
		default:
			exceptions.Panicf("cpu engine: unknown configuration option %q in %q", option, config)
		}
	}
	return NewWithFeatures(features, pool)
}

// NewWithFeatures constructs a CPU Engine with the exact instruction tiers given,
// bypassing detection. A nil pool uses a default one. Tests use this to get
// deterministic candidate lists regardless of the host.
func NewWithFeatures(features Features, pool *workerspool.Pool) *Engine {
	if pool == nil {
		pool = workerspool.New()
	}
	e := &Engine{features: features, pool: pool}
	klog.V(1).Infof("cpu engine created: %s", e.Description())
	return e
}

func parseTiers(value string) Features {
	var f Features
	for _, tier := range strings.Split(value, "+") {
		switch strings.TrimSpace(tier) {
		case "sse42":
			f.SSE42 = true
		case "avx":
			f.AVX = true
		case "avx2":
			f.AVX2 = true
		case "avx512":
			f.AVX512 = true
		default:
			exceptions.Panicf("cpu engine: unknown instruction tier %q", tier)
		}
	}
	return f
}

// Engine implements the backends.Engine interface with pure-Go kernels.
type Engine struct {
	features Features
	pool     *workerspool.Pool
}

// Compile-time check that cpu.Engine implements backends.Engine.
var _ backends.Engine = &Engine{}

// Name returns the short name of the engine.
func (e *Engine) Name() string { return EngineName }

// String implements fmt.Stringer.
func (e *Engine) String() string { return EngineName }

// Description is a longer description of the Engine that can be used to pretty-print.
func (e *Engine) Description() string {
	return fmt.Sprintf("Pure-Go CPU engine, tiers=%s, parallelism=%d",
		e.features, e.pool.MaxParallelism())
}

// Features returns the instruction tiers this engine advertises.
func (e *Engine) Features() Features { return e.features }

// NewStream creates an execution context for running primitives.
func (e *Engine) NewStream() backends.Stream {
	return &Stream{engine: e}
}

// Finalize releases all the associated resources immediately, and makes the engine invalid.
func (e *Engine) Finalize() {}

// Stream is the cpu execution context. Primitives submitted to a Stream run inline on
// the calling goroutine, fanning work out to the engine's worker pool internally.
type Stream struct {
	engine *Engine
}

// Engine returns the engine the stream belongs to.
func (s *Stream) Engine() backends.Engine { return s.engine }
