// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConstantUpstreamSeed(t *testing.T) {
	// const -> a -> b: nothing downstream of a knows, the upstream const seed decides.
	konst := newTestNode(t, "const", "Const", 0, 1, 4)
	a := newTestNode(t, "a", "ReLU", 1, 1, 4)
	b := newTestNode(t, "b", "TanH", 1, 1, 4)
	konst.markConstant(true)
	wire(t, konst, a, 0, 0)
	wire(t, a, b, 0, 0)

	assert.True(t, a.IsConstant())
	assert.True(t, b.IsConstant())
}

func TestIsConstantDownstreamNoConstFallsThroughToUpstream(t *testing.T) {
	// const -> x -> out(not const): a mutable consumer says nothing about x, so the
	// downstream pass concludes nothing and the upstream const seed decides.
	konst := newTestNode(t, "const", "Const", 0, 1, 4)
	x := newTestNode(t, "x", "ReLU", 1, 1, 4)
	out := newTestNode(t, "out", "Output", 1, 0, 4)
	konst.markConstant(true)
	out.markConstant(false)
	wire(t, konst, x, 0, 0)
	wire(t, x, out, 0, 0)

	assert.True(t, x.IsConstant())
}

func TestIsConstantDownstreamConstConsumer(t *testing.T) {
	// x -> sink(const): only a constant consumer lets the downstream pass conclude.
	x := newTestNode(t, "x", "ReLU", 1, 1, 4)
	sink := newTestNode(t, "sink", "TanH", 1, 1, 4)
	sink.markConstant(true)
	wire(t, x, sink, 0, 0)

	assert.True(t, x.IsConstant())
}

func TestIsConstantMutableParentTrumpsConstParent(t *testing.T) {
	// x consumes a const blob and live input data; the mutable ancestor wins no matter
	// which parent the search visits first.
	konst := newTestNode(t, "const", "Const", 0, 1, 4)
	in := newTestNode(t, "in", "Input", 0, 1, 4)
	konst.markConstant(true)
	in.markConstant(false)

	x := newTestNode(t, "x", "Concat", 2, 1, 4)
	wire(t, konst, x, 0, 0)
	wire(t, in, x, 0, 1)
	assert.False(t, x.IsConstant())

	// Same shape with the parent order reversed.
	y := newTestNode(t, "y", "Concat", 2, 1, 4)
	konst2 := newTestNode(t, "const2", "Const", 0, 1, 4)
	in2 := newTestNode(t, "in2", "Input", 0, 1, 4)
	konst2.markConstant(true)
	in2.markConstant(false)
	wire(t, in2, y, 0, 0)
	wire(t, konst2, y, 0, 1)
	assert.False(t, y.IsConstant())
}

func TestIsConstantDefaultsToMutable(t *testing.T) {
	lone := newTestNode(t, "lone", "ReLU", 1, 1, 4)
	assert.False(t, lone.IsConstant(), "unresolvable nodes default to not-constant")
}

func TestIsConstantMemoized(t *testing.T) {
	konst := newTestNode(t, "const", "Const", 0, 1, 4)
	a := newTestNode(t, "a", "ReLU", 1, 1, 4)
	konst.markConstant(true)
	wire(t, konst, a, 0, 0)

	assert.True(t, a.IsConstant())

	// Re-seeding the producer does not reopen an already resolved classification.
	konst.markConstant(false)
	assert.True(t, a.IsConstant())
}

func TestIsConstantSkipsDeadEdges(t *testing.T) {
	konst := newTestNode(t, "const", "Const", 0, 1, 4)
	a := newTestNode(t, "a", "ReLU", 1, 1, 4)
	konst.markConstant(true)
	e := wire(t, konst, a, 0, 0)
	RemoveEdge(e)

	assert.False(t, a.IsConstant(), "detached nodes cannot inherit through dead edges")
}
