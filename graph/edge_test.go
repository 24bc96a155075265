// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveEdge(t *testing.T) {
	p := newTestNode(t, "p", "ReLU", 1, 1, 2, 8)
	c := newTestNode(t, "c", "TanH", 1, 1, 2, 8)

	e1 := wire(t, p, c, 0, 0)
	e2 := wire(t, p, c, 0, 0)
	assert.Equal(t, []*Edge{e1, e2}, p.childEdges)
	assert.Equal(t, []*Edge{e1, e2}, c.parentEdges)

	// Removing one of two parallel edges leaves the other attached and alive.
	RemoveEdge(e1)
	assert.False(t, e1.Alive())
	assert.Equal(t, []*Edge{e2}, p.childEdges)
	assert.Equal(t, []*Edge{e2}, c.parentEdges)
	assert.False(t, IsEdgesEmpty(p.childEdges))

	RemoveEdge(e2)
	assert.True(t, IsEdgesEmpty(p.childEdges))
	assert.True(t, IsEdgesEmpty(c.parentEdges))

	// Removing twice, or removing nil, is a no-op.
	RemoveEdge(e2)
	RemoveEdge(nil)
}

func TestEdgeStatusForwardOnly(t *testing.T) {
	p := newTestNode(t, "p", "ReLU", 1, 1, 2, 8)
	c := newTestNode(t, "c", "TanH", 1, 1, 2, 8)
	e := wire(t, p, c, 0, 0)

	require.Equal(t, EdgeUninitialized, e.Status())
	require.NoError(t, e.changeStatus(EdgeNeedAllocation))
	require.NoError(t, e.changeStatus(EdgeNeedAllocation), "same-state transitions are no-ops")
	require.ErrorContains(t, e.changeStatus(EdgeUninitialized), "cannot change status")
	require.ErrorContains(t, e.changeStatus(EdgeValidated), "cannot validate without memory")
}

func TestEdgeMemoryBeforeAllocation(t *testing.T) {
	p := newTestNode(t, "p", "ReLU", 1, 1, 2, 8)
	c := newTestNode(t, "c", "TanH", 1, 1, 2, 8)
	e := wire(t, p, c, 0, 0)
	_, err := e.Memory()
	require.ErrorContains(t, err, "memory is not allocated")
}

func TestEdgePortNumbersClampToDeclared(t *testing.T) {
	p := newTestNode(t, "p", "ReLU", 1, 1, 2, 8)
	c := newTestNode(t, "c", "TanH", 1, 1, 2, 8)
	e := newEdge(p, c, 3, 7)
	assert.Equal(t, 0, e.InputNum())
	assert.Equal(t, 0, e.OutputNum())
}

func TestEdgeString(t *testing.T) {
	p := newTestNode(t, "conv1", "ReLU", 1, 1, 2, 8)
	c := newTestNode(t, "relu1", "TanH", 1, 1, 2, 8)
	e := newEdge(p, c, 0, 0)
	assert.Equal(t, "conv1[0] -> relu1[0]", e.String())
}
