// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"fmt"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/goinfer/types/xslices"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Graph owns an execution graph: every Node and Edge lives in its arenas, and the
// configuration pipeline that turns a network description into bound primitives runs
// through it. Construction and configuration are single-threaded; once configured, the
// graph only executes.
type Graph struct {
	engine  backends.Engine
	cache   *WeightCache
	factory *Factory
	ctx     *GraphContext

	nodes  []Node
	byName map[string]Node
	edges  []*Edge

	configured bool
}

// Option configures a Graph at construction.
type Option func(g *Graph)

// WithFactory makes the graph create nodes through the given factory instead of a fresh
// one, sharing its registered extensions.
func WithFactory(f *Factory) Option {
	return func(g *Graph) { g.factory = f }
}

// WithWeightCache shares a weight cache across graphs, deduplicating constant weights
// between them (nested TensorIterator networks pass the enclosing graph's cache).
func WithWeightCache(c *WeightCache) Option {
	return func(g *Graph) { g.cache = c }
}

// New creates an empty graph bound to an engine.
func New(engine backends.Engine, opts ...Option) *Graph {
	g := &Graph{
		engine: engine,
		byName: make(map[string]Node),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.factory == nil {
		g.factory = NewFactory()
	}
	if g.cache == nil {
		g.cache = NewWeightCache()
	}
	g.ctx = &GraphContext{Factory: g.factory, Engine: g.engine, Cache: g.cache}
	return g
}

// Engine returns the engine the graph is bound to.
func (g *Graph) Engine() backends.Engine { return g.engine }

// WeightCache returns the graph's weight cache.
func (g *Graph) WeightCache() *WeightCache { return g.cache }

// Nodes returns the node arena, in insertion order. Removed nodes stay listed until
// Teardown.
func (g *Graph) Nodes() []Node { return g.nodes }

// NodeByName returns the named node, nil when absent.
func (g *Graph) NodeByName(name string) Node { return g.byName[name] }

// Edges returns the edge arena, dead entries included.
func (g *Graph) Edges() []*Edge { return g.edges }

// AddLayer creates the node for a layer description and adds it to the graph. Node
// names are unique within a graph.
func (g *Graph) AddLayer(layer *Layer) (Node, error) {
	if g.configured {
		return nil, errors.Errorf("graph is already configured, cannot add layer %s", layer.Name)
	}
	if _, found := g.byName[layer.Name]; found {
		return nil, errors.Errorf("duplicate node name %q", layer.Name)
	}
	node, err := g.factory.Create(layer, g.ctx)
	if err != nil {
		return nil, err
	}
	g.nodes = append(g.nodes, node)
	g.byName[node.Name()] = node
	return node, nil
}

// Connect wires an output port of parent to an input port of child with a new edge
// owned by the graph.
func (g *Graph) Connect(parent Node, parentPort int, child Node, childPort int) (*Edge, error) {
	if g.configured {
		return nil, errors.Errorf("graph is already configured, cannot connect %s to %s", parent.Name(), child.Name())
	}
	if parentPort < 0 || parentPort >= len(parent.base().outDescs) {
		return nil, errors.Errorf("node %s has no output port %d", parent.Name(), parentPort)
	}
	if childPort < 0 || childPort >= len(child.base().inDescs) {
		return nil, errors.Errorf("node %s has no input port %d", child.Name(), childPort)
	}
	e := newEdge(parent, child, parentPort, childPort)
	AddEdge(e)
	g.edges = append(g.edges, e)
	return e, nil
}

// Build assembles the graph from a network description and runs the whole
// configuration pipeline. After Build the graph is ready to execute.
func (g *Graph) Build(net *Network) error {
	for _, layer := range net.Layers {
		if _, err := g.AddLayer(layer); err != nil {
			return err
		}
	}
	for _, conn := range net.Connections {
		parent := g.byName[conn.From]
		if parent == nil {
			return errors.Errorf("connection references unknown node %q", conn.From)
		}
		child := g.byName[conn.To]
		if child == nil {
			return errors.Errorf("connection references unknown node %q", conn.To)
		}
		if _, err := g.Connect(parent, conn.FromPort, child, conn.ToPort); err != nil {
			return err
		}
	}
	return g.Configure()
}

// configError wraps a pipeline failure with the originating node's identity; the build
// aborts with it, there is no partial or degraded mode.
func configError(err error, n Node) error {
	return errors.Wrapf(err, "configuring node %s of type %s", n.Name(), n.TypeName())
}

// Configure runs the configuration pipeline over the assembled graph, strictly ordered
// and single-threaded: candidate enumeration and filtering, topological descriptor
// selection and finalization, reorder insertion between incompatible neighbors, edge
// allocation with in-place aliasing, and primitive creation with weight
// materialization. Any failure aborts the whole build.
func (g *Graph) Configure() error {
	if g.configured {
		return nil
	}
	order, err := g.topoOrder()
	if err != nil {
		return err
	}
	for _, n := range order {
		if err := n.InitTemplates(); err != nil {
			return configError(err, n)
		}
		if err := n.InitSupportedPrimDescs(); err != nil {
			return configError(err, n)
		}
		if err := n.FilterSupportedPrimDescs(); err != nil {
			return configError(err, n)
		}
	}
	// Parents select before children so neighbor-format scoring sees their choices.
	for _, n := range order {
		if err := n.SelectOptimalPrimDesc(); err != nil {
			return configError(err, n)
		}
		klog.V(1).Infof("node %s selected %s", n.Name(), n.base().PrimDescType())
	}
	for _, n := range order {
		if err := n.InitOptimalPrimDesc(); err != nil {
			return configError(err, n)
		}
	}
	if err := g.insertReorders(); err != nil {
		return err
	}
	order, err = g.topoOrder()
	if err != nil {
		return err
	}
	if err := g.assignEdgeStatuses(); err != nil {
		return err
	}
	if err := g.allocateEdges(order); err != nil {
		return err
	}
	for _, n := range order {
		if err := n.CreatePrimitive(); err != nil {
			return configError(err, n)
		}
	}
	// Drop build-time scratch (layer descriptions, raw blobs) now that the primitives
	// hold everything they need. The interface Cleanup stays the full release hook for
	// Teardown; calling it here would also free variant-owned state such as a
	// TensorIterator's nested graph.
	for _, n := range order {
		n.base().Cleanup()
	}
	g.configured = true
	return nil
}

// topoOrder returns the alive nodes in dependency order, parents first, stable with
// respect to insertion order. Selection and finalization assume a cycle-free graph;
// recurrent subgraphs are unrolled inside TensorIterator nodes, never wired as cycles
// here.
func (g *Graph) topoOrder() ([]Node, error) {
	indegree := make(map[Node]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, e := range n.base().parentEdges {
			if e.Alive() {
				indegree[n]++
			}
		}
	}
	var order, frontier []Node
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			frontier = append(frontier, n)
		}
	}
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		order = append(order, n)
		for _, e := range n.base().childEdges {
			if !e.Alive() {
				continue
			}
			child := e.Child()
			indegree[child]--
			if indegree[child] == 0 {
				frontier = append(frontier, child)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, errors.Errorf("graph contains a cycle: only %d of %d nodes are orderable", len(order), len(g.nodes))
	}
	return order, nil
}

// edgeDescs returns the finalized descriptors on both sides of an edge, when the
// respective neighbor has them.
func edgeDescs(e *Edge) (parentDesc, childDesc *PortConfig) {
	if pd := e.Parent().base().selectedPD(); pd != nil {
		if num := e.InputNum(); num < len(pd.Config.OutConfs) {
			parentDesc = &pd.Config.OutConfs[num]
		}
	}
	if pd := e.Child().base().selectedPD(); pd != nil {
		if num := e.OutputNum(); num < len(pd.Config.InConfs) {
			childDesc = &pd.Config.InConfs[num]
		}
	}
	return
}

// insertReorders splices a reorder node into every edge whose endpoints settled on
// incompatible layouts. The inserted nodes run their own enumeration, selection and
// finalization immediately; their port descriptors are already concrete, taken from the
// neighbors' selections.
func (g *Graph) insertReorders() error {
	for _, e := range xslices.Copy(g.edges) {
		if !e.Alive() {
			continue
		}
		parentConf, childConf := edgeDescs(e)
		if parentConf == nil || childConf == nil {
			continue
		}
		if parentConf.Desc.IsUninit() || childConf.Desc.IsUninit() {
			return errors.Errorf("edge %s still has an unresolved descriptor after finalization", e)
		}
		if parentConf.Desc.EqualAsInit(childConf.Desc) {
			continue
		}
		name := fmt.Sprintf("reorder_uuid_%s", uuid.NewString())
		klog.V(1).Infof("inserting %s on edge %s: %s -> %s", name, e, parentConf.Desc, childConf.Desc)
		node, err := g.AddLayer(&Layer{
			Name: name,
			Type: "Reorder",
			In:   []memdesc.Desc{parentConf.Desc.Clone()},
			Out:  []memdesc.Desc{childConf.Desc.Clone()},
		})
		if err != nil {
			return err
		}
		parent, child := e.Parent(), e.Child()
		parentPort, childPort := e.InputNum(), e.OutputNum()
		RemoveEdge(e)
		if _, err := g.Connect(parent, parentPort, node, 0); err != nil {
			return err
		}
		if _, err := g.Connect(node, 0, child, childPort); err != nil {
			return err
		}
		if err := node.InitTemplates(); err != nil {
			return configError(err, node)
		}
		if err := node.InitSupportedPrimDescs(); err != nil {
			return configError(err, node)
		}
		if err := node.SelectOptimalPrimDesc(); err != nil {
			return configError(err, node)
		}
		if err := node.InitOptimalPrimDesc(); err != nil {
			return configError(err, node)
		}
	}
	return nil
}

// assignEdgeStatuses marks every alive edge as needing its own allocation, or as an
// in-place view to be resolved against another edge's buffer when either endpoint's
// selected configuration aliases the port.
func (g *Graph) assignEdgeStatuses() error {
	for _, e := range g.edges {
		if !e.Alive() {
			continue
		}
		parentConf, childConf := edgeDescs(e)
		status := EdgeNeedAllocation
		if parentConf != nil && parentConf.InPlace >= 0 {
			status = EdgeNotAllocated
		}
		if childConf != nil && childConf.InPlace >= 0 {
			status = EdgeNotAllocated
		}
		if err := e.changeStatus(status); err != nil {
			return err
		}
	}
	return nil
}

// allocateEdges materializes every edge buffer: owned buffers are allocated per output
// port, with fan-out edges of the same port sharing one buffer; in-place views are
// resolved in topological passes until the graph settles; finally every edge is
// validated.
func (g *Graph) allocateEdges(order []Node) error {
	for _, n := range order {
		b := n.base()
		for port := range b.outDescs {
			edges, err := b.ChildEdgesAtPort(port)
			if err != nil {
				return configError(err, n)
			}
			var first *Edge
			for _, e := range edges {
				if e.Status() != EdgeNeedAllocation {
					continue
				}
				if first == nil {
					if err := e.Allocate(); err != nil {
						return configError(err, n)
					}
					first = e
					continue
				}
				// Fan-out consumers read the same buffer the producer writes.
				e.memory = first.memory
				if err := e.changeStatus(EdgeAllocated); err != nil {
					return err
				}
			}
		}
	}
	// In-place chains resolve parent-to-child; one pass per chain link suffices, so
	// len(order) passes is a safe upper bound.
	for pass := 0; ; pass++ {
		before := countNotAllocated(g.edges)
		if before == 0 {
			break
		}
		for _, n := range order {
			if err := n.base().ResolveNotAllocatedEdges(); err != nil {
				return configError(err, n)
			}
		}
		after := countNotAllocated(g.edges)
		if after > 0 && (after == before || pass >= len(order)) {
			return errors.Errorf("%d edges could not resolve their in-place buffers", after)
		}
	}
	for _, e := range g.edges {
		if !e.Alive() {
			continue
		}
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func countNotAllocated(edges []*Edge) int {
	n := 0
	for _, e := range edges {
		if e.Alive() && e.Status() == EdgeNotAllocated {
			n++
		}
	}
	return n
}

// Execute runs every node sequentially in dependency order on the given stream.
func (g *Graph) Execute(stream backends.Stream) error {
	if !g.configured {
		return errors.Errorf("graph is not configured, call Build or Configure first")
	}
	order, err := g.topoOrder()
	if err != nil {
		return err
	}
	for _, n := range order {
		if err := n.Execute(stream); err != nil {
			return errors.Wrapf(err, "executing node %s of type %s", n.Name(), n.TypeName())
		}
	}
	return nil
}

// ExecuteParallel runs the graph wave by wave: all nodes whose parents have already run
// execute concurrently, each on its own stream. Two concurrent nodes never write
// overlapping memory, that is guaranteed by the aliasing decisions taken during
// configuration.
func (g *Graph) ExecuteParallel(ctx context.Context) error {
	if !g.configured {
		return errors.Errorf("graph is not configured, call Build or Configure first")
	}
	pending := make(map[Node]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, e := range n.base().parentEdges {
			if e.Alive() {
				pending[n]++
			}
		}
	}
	var wave []Node
	for _, n := range g.nodes {
		if pending[n] == 0 {
			wave = append(wave, n)
		}
	}
	done := 0
	for len(wave) > 0 {
		grp, _ := errgroup.WithContext(ctx)
		for _, n := range wave {
			grp.Go(func() error {
				stream := g.engine.NewStream()
				if err := n.Execute(stream); err != nil {
					return errors.Wrapf(err, "executing node %s of type %s", n.Name(), n.TypeName())
				}
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return err
		}
		done += len(wave)
		var next []Node
		for _, n := range wave {
			for _, e := range n.base().childEdges {
				if !e.Alive() {
					continue
				}
				child := e.Child()
				pending[child]--
				if pending[child] == 0 {
					next = append(next, child)
				}
			}
		}
		wave = next
	}
	if done != len(g.nodes) {
		return errors.Errorf("parallel execution stalled: only %d of %d nodes ran", done, len(g.nodes))
	}
	return nil
}

// SetDynamicBatchLim re-describes every node's bound activation arguments for the new
// effective batch. A limit of 0 restores the full declared batch.
func (g *Graph) SetDynamicBatchLim(lim int) error {
	for _, n := range g.nodes {
		if err := n.SetDynamicBatchLim(lim); err != nil {
			return err
		}
	}
	return nil
}

// Teardown detaches every edge and releases every node. The graph is empty afterwards
// and cannot be rebuilt.
func (g *Graph) Teardown() {
	for _, n := range g.nodes {
		n.base().Remove()
		n.Cleanup()
	}
	g.nodes = nil
	g.edges = nil
	g.byName = nil
	g.configured = false
}
