// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

// Constant classification is lazy: most nodes start in the unknown state and resolve it
// on first demand by searching the graph for nodes that already know. Const-typed input
// nodes are seeded constant at construction, data inputs not-constant. The search looks
// downstream first, but a downstream pass may only conclude constant: a not-constant
// consumer says nothing about its inputs, so that branch just stops. When the downstream
// pass does not settle it the search retries upstream, where the answer is constant only
// if every resolved ancestor on the frontier is constant; a single not-constant ancestor
// means live data flows in and trumps any constant siblings. A node the search cannot
// resolve in either direction defaults to not-constant. The result is memoized, so the
// whole classification of a graph costs one traversal per connected region.

type lookDirection int

const (
	lookDown lookDirection = iota
	lookUp
)

// IsConstant reports whether the node's outputs never change between executions.
func (b *BaseNode) IsConstant() bool {
	if b.constState == constUnknown {
		state := b.searchConstant(lookDown)
		if state == constUnknown {
			state = b.searchConstant(lookUp)
		}
		if state == constUnknown {
			state = constNo
		}
		b.constState = state
	}
	return b.constState == constYes
}

// searchConstant runs a breadth-first search from the node in the given direction.
// Looking down it returns constYes as soon as a constant consumer is reached; resolved
// not-constant consumers end their branch without concluding anything. Looking up a
// resolved not-constant ancestor decides constNo immediately, while constant ancestors
// only count when the whole frontier drains without hitting one. Either direction
// returns constUnknown when no resolved node decides the answer.
func (b *BaseNode) searchConstant(dir lookDirection) constState {
	visited := map[*BaseNode]bool{b: true}
	var worklist []*BaseNode
	push := func(n *BaseNode) {
		if !visited[n] {
			visited[n] = true
			worklist = append(worklist, n)
		}
	}
	expand := func(n *BaseNode) {
		if dir == lookDown {
			for _, e := range n.childEdges {
				if e.Alive() {
					push(e.Child().base())
				}
			}
		} else {
			for _, e := range n.parentEdges {
				if e.Alive() {
					push(e.Parent().base())
				}
			}
		}
	}
	expand(b)
	found := constUnknown
	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]
		switch n.constState {
		case constYes:
			if dir == lookDown {
				return constYes
			}
			found = constYes
		case constNo:
			if dir == lookUp {
				return constNo
			}
			// A mutable consumer says nothing about its inputs; stop this branch.
		default:
			expand(n)
		}
	}
	return found
}

// markConstant seeds the classification; node variants that know their nature at
// construction time (const inputs, data inputs) call it before any search runs.
func (b *BaseNode) markConstant(isConst bool) {
	if isConst {
		b.constState = constYes
	} else {
		b.constState = constNo
	}
}
