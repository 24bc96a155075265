// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/pkg/errors"
)

// EdgeStatus tracks how far an edge's memory has progressed. Transitions only move
// forward: Uninitialized -> NeedAllocation or NotAllocated -> Allocated -> Validated.
type EdgeStatus int

const (
	// EdgeUninitialized is the state of a freshly created edge.
	EdgeUninitialized EdgeStatus = iota

	// EdgeNeedAllocation marks an edge that owns its buffer and still has to allocate it.
	EdgeNeedAllocation

	// EdgeNotAllocated marks an edge whose buffer is a view into another edge's buffer,
	// to be resolved once the referenced edge is allocated.
	EdgeNotAllocated

	// EdgeAllocated means the edge has memory, own or shared.
	EdgeAllocated

	// EdgeValidated means the edge passed the final sanity checks and is executable.
	EdgeValidated
)

// String implements fmt.Stringer.
func (s EdgeStatus) String() string {
	switch s {
	case EdgeUninitialized:
		return "Uninitialized"
	case EdgeNeedAllocation:
		return "NeedAllocation"
	case EdgeNotAllocated:
		return "NotAllocated"
	case EdgeAllocated:
		return "Allocated"
	case EdgeValidated:
		return "Validated"
	}
	return "InvalidEdgeStatus"
}

// Edge connects one output port of a parent node to one input port of a child node and
// owns (or views) the memory the value flows through.
//
// Edges are created and owned by a Graph; a removed edge stays in the arena with alive
// set to false, and every traversal checks the flag.
type Edge struct {
	parent Node
	child  Node

	// parentPort indexes the parent's outputs, childPort the child's inputs.
	parentPort int
	childPort  int

	status EdgeStatus
	memory *backends.Memory
	alive  bool
}

func newEdge(parent, child Node, parentPort, childPort int) *Edge {
	return &Edge{
		parent:     parent,
		child:      child,
		parentPort: parentPort,
		childPort:  childPort,
		status:     EdgeUninitialized,
		alive:      true,
	}
}

// Parent returns the producing node.
func (e *Edge) Parent() Node { return e.parent }

// Child returns the consuming node.
func (e *Edge) Child() Node { return e.child }

// Alive reports whether the edge is still part of the graph.
func (e *Edge) Alive() bool { return e != nil && e.alive }

// InputNum is the output port of the parent this edge is fed by. A stored port outside
// the parent's declared outputs defensively maps to 0.
func (e *Edge) InputNum() int {
	if e.parentPort < 0 || e.parentPort >= len(e.parent.base().outDescs) {
		return 0
	}
	return e.parentPort
}

// OutputNum is the input port of the child this edge feeds. A stored port outside the
// child's declared inputs defensively maps to 0.
func (e *Edge) OutputNum() int {
	if e.childPort < 0 || e.childPort >= len(e.child.base().inDescs) {
		return 0
	}
	return e.childPort
}

// Status returns the allocation status.
func (e *Edge) Status() EdgeStatus { return e.status }

// changeStatus moves the edge forward in its lifecycle. Same-state transitions are
// no-ops; moving backward is an error.
func (e *Edge) changeStatus(s EdgeStatus) error {
	if s == e.status {
		return nil
	}
	if s < e.status {
		return errors.Errorf("edge %s: cannot change status from %s back to %s", e, e.status, s)
	}
	if s == EdgeValidated && e.memory == nil {
		return errors.Errorf("edge %s: cannot validate without memory", e)
	}
	e.status = s
	return nil
}

// declaredDesc is the parent's declared descriptor of the port this edge is fed by:
// dtype and dims are authoritative, the layout may still be ANY.
func (e *Edge) declaredDesc() memdesc.Desc {
	return e.parent.base().outDescs[e.InputNum()]
}

// Dims returns the logical dims of the value flowing through the edge.
func (e *Edge) Dims() []int { return e.declaredDesc().Dims }

// Memory returns the edge's buffer. It is an error to ask before allocation.
func (e *Edge) Memory() (*backends.Memory, error) {
	if e.memory == nil {
		return nil, errors.Errorf("memory is not allocated for edge %s", e)
	}
	return e.memory, nil
}

// resolvedDesc picks the concrete descriptor the edge's memory must have: the writer's
// selected output descriptor when initialized, else the reader's input one. When both
// sides are initialized they must agree.
func (e *Edge) resolvedDesc() (memdesc.Desc, error) {
	var parentDesc, childDesc memdesc.Desc
	haveParent, haveChild := false, false

	if pd := e.parent.base().selectedPD(); pd != nil {
		num := e.InputNum()
		if num < len(pd.Config.OutConfs) {
			d := pd.Config.OutConfs[num].Desc
			if !d.IsUninit() {
				parentDesc, haveParent = d, true
			}
		}
	}
	if pd := e.child.base().selectedPD(); pd != nil {
		num := e.OutputNum()
		if num < len(pd.Config.InConfs) {
			d := pd.Config.InConfs[num].Desc
			if !d.IsUninit() {
				childDesc, haveChild = d, true
			}
		}
	}

	switch {
	case haveParent && haveChild:
		if !parentDesc.EqualAsInit(childDesc) {
			return memdesc.Desc{}, errors.Errorf(
				"incompatible descriptors on edge %s: parent wants %s, child wants %s", e, parentDesc, childDesc)
		}
		return parentDesc, nil
	case haveParent:
		return parentDesc, nil
	case haveChild:
		return childDesc, nil
	}
	return memdesc.Desc{}, errors.Errorf("cannot allocate edge %s: no initialized descriptor on either side", e)
}

// Allocate creates the edge's own buffer. Only edges in NeedAllocation state allocate;
// everything else is a no-op.
func (e *Edge) Allocate() error {
	if e.status != EdgeNeedAllocation {
		return nil
	}
	desc, err := e.resolvedDesc()
	if err != nil {
		return err
	}
	mem, err := backends.NewMemory(desc)
	if err != nil {
		return errors.Wrapf(err, "edge %s", e)
	}
	e.memory = mem
	return e.changeStatus(EdgeAllocated)
}

// Validate runs the final check and moves the edge to Validated.
func (e *Edge) Validate() error {
	if !e.alive {
		return errors.Errorf("cannot validate dead edge %s", e)
	}
	return e.changeStatus(EdgeValidated)
}

// Drop detaches the edge from its endpoints and marks it dead.
func (e *Edge) Drop() {
	RemoveEdge(e)
}

// String implements fmt.Stringer, e.g. "conv1[0] -> relu1[0]".
func (e *Edge) String() string {
	return fmt.Sprintf("%s[%d] -> %s[%d]", e.parent.Name(), e.parentPort, e.child.Name(), e.childPort)
}

// AddEdge registers the edge with both endpoints. Nil or dead edges and edges with a
// missing endpoint are ignored.
func AddEdge(e *Edge) {
	if e == nil || !e.alive {
		return
	}
	if e.parent == nil || e.child == nil {
		return
	}
	parent := e.parent.base()
	child := e.child.base()
	parent.childEdges = append(parent.childEdges, e)
	child.parentEdges = append(child.parentEdges, e)
}

// RemoveEdge detaches the edge from both endpoints and marks it dead. At most one entry
// is removed from each endpoint's list; unknown or nil edges are a no-op.
func RemoveEdge(e *Edge) {
	if e == nil {
		return
	}
	if e.parent != nil && e.child != nil {
		child := e.child.base()
		for i, entry := range child.parentEdges {
			if entry == e {
				child.parentEdges = append(child.parentEdges[:i], child.parentEdges[i+1:]...)
				break
			}
		}
		parent := e.parent.base()
		for i, entry := range parent.childEdges {
			if entry == e {
				parent.childEdges = append(parent.childEdges[:i], parent.childEdges[i+1:]...)
				break
			}
		}
	}
	e.alive = false
}

// IsEdgesEmpty reports whether every entry of the list is dead.
func IsEdgesEmpty(edges []*Edge) bool {
	for _, e := range edges {
		if e.Alive() {
			return false
		}
	}
	return true
}
