// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Node is one operator of an execution graph. Concrete node types embed BaseNode, which
// carries the whole configuration machinery; a variant overrides only the hooks it needs
// (InitTemplates for its engine templates, CreatePrimitive and Execute for non-standard
// execution, SetGraphContext when it builds nested graphs).
//
// The interface is satisfied only by types of this package.
type Node interface {
	Name() string
	Kind() OpKind
	TypeName() string

	// Configuration pipeline, called by the Graph driver in this order.
	InitTemplates() error
	InitSupportedPrimDescs() error
	FilterSupportedPrimDescs() error
	SelectOptimalPrimDesc() error
	InitOptimalPrimDesc() error
	CreatePrimitive() error

	// Execute runs the node's bound primitive; nodes without one are pass-through.
	Execute(stream backends.Stream) error

	// SetGraphContext hands the node the capabilities needed to build nested graphs.
	// Most nodes ignore it.
	SetGraphContext(ctx *GraphContext)

	SetDynamicBatchLim(lim int) error
	SelectedPrimDesc() (*PrimDesc, error)
	IsConstant() bool
	Cleanup()

	base() *BaseNode
}

// GraphContext bundles the capabilities a node may need beyond its own engine handle:
// the factory to build nested nodes with and the shared weight cache. The graph driver
// injects it into every node right after creation.
type GraphContext struct {
	Factory *Factory
	Engine  backends.Engine
	Cache   *WeightCache
}

// descTemplate is one engine template registered by a node variant. The first dataIns
// inputs of the template are fed by parent edges; the remaining ones are internal
// weights the node materializes itself.
type descTemplate struct {
	tpl     backends.Template
	dataIns int
}

// candMeta records, per supported descriptor, which template produced it and the
// concrete descriptors of its internal weight ports.
type candMeta struct {
	template int
	weights  []memdesc.Desc
}

type constState int

const (
	constUnknown constState = iota
	constYes
	constNo
)

// BaseNode implements every generic part of Node: identity, edge bookkeeping, candidate
// enumeration and selection, descriptor finalization, weight materialization, argument
// binding, dynamic batch and execution. Variants embed it by value.
type BaseNode struct {
	name     string
	typeName string
	kind     OpKind

	layer  *Layer
	engine backends.Engine
	wcache *WeightCache

	// Declared port descriptors from the layer; layouts usually FormatAny.
	inDescs  []memdesc.Desc
	outDescs []memdesc.Desc

	parentEdges []*Edge
	childEdges  []*Edge

	templates          []descTemplate
	supportedPrimDescs []PrimDesc
	candMeta           []candMeta
	selectedIdx        int

	implPriorities    []backends.ImplType
	inputFormatHints  []memdesc.Format
	outputFormatHints []memdesc.Format

	constState constState
	alive      bool

	fusedWith  []Node
	mergedWith []Node

	// internalBlobs hold weights in their canonical layout; internalBlobMemory holds
	// them re-laid-out the way the selected implementation wants, deduplicated through
	// the weight cache.
	internalBlobs      []*backends.Memory
	internalBlobMemory []*backends.Memory

	primitive backends.Primitive
	primArgs  backends.Args

	dynBatchLim int

	originalLayers string
}

var _ Node = &BaseNode{}

// newBaseNode builds the generic part of a node from its layer description. It resolves
// the operator kind, validates the port declarations and parses the per-node
// implementation priorities and layout hints.
func newBaseNode(layer *Layer, engine backends.Engine, wcache *WeightCache) (BaseNode, error) {
	b := BaseNode{
		name:           layer.Name,
		typeName:       layer.Type,
		kind:           KindFromName(layer.Type),
		layer:          layer,
		engine:         engine,
		wcache:         wcache,
		selectedIdx:    -1,
		alive:          true,
		originalLayers: layer.Name,
	}
	if len(layer.Out) == 0 && !typeAllowsNoOutput(layer.Type) {
		return BaseNode{}, errors.Errorf("inappropriate layer type %q name %q: no outputs", layer.Type, layer.Name)
	}
	b.inDescs = slices.Clone(layer.In)
	b.outDescs = slices.Clone(layer.Out)

	if value, found := layer.Params["PrimitivesPriority"]; found {
		priorities, err := ParsePrimitivesPriority(value)
		if err != nil {
			return BaseNode{}, errors.Wrapf(err, "node %s", layer.Name)
		}
		b.implPriorities = priorities
	}
	if value, found := layer.Params["InputMemoryFormats"]; found {
		formats, err := ParseMemoryFormats(value)
		if err != nil {
			return BaseNode{}, errors.Wrapf(err, "node %s", layer.Name)
		}
		b.inputFormatHints = formats
	}
	if value, found := layer.Params["OutputMemoryFormats"]; found {
		formats, err := ParseMemoryFormats(value)
		if err != nil {
			return BaseNode{}, errors.Wrapf(err, "node %s", layer.Name)
		}
		b.outputFormatHints = formats
	}
	return b, nil
}

func (b *BaseNode) base() *BaseNode { return b }

// Name returns the node's unique name.
func (b *BaseNode) Name() string { return b.name }

// Kind returns the resolved operator family.
func (b *BaseNode) Kind() OpKind { return b.kind }

// TypeName returns the textual layer type the node was created from.
func (b *BaseNode) TypeName() string { return b.typeName }

// String implements fmt.Stringer, e.g. "conv1 (Convolution)".
func (b *BaseNode) String() string { return fmt.Sprintf("%s (%s)", b.name, b.kind) }

// InDescs returns the declared input port descriptors.
func (b *BaseNode) InDescs() []memdesc.Desc { return b.inDescs }

// OutDescs returns the declared output port descriptors.
func (b *BaseNode) OutDescs() []memdesc.Desc { return b.outDescs }

// OriginalLayers returns the comma-joined names of the network layers this node stands
// for; more than one after fusion.
func (b *BaseNode) OriginalLayers() string { return b.originalLayers }

// AddOriginalLayer records that the node also implements the named layer.
func (b *BaseNode) AddOriginalLayer(name string) {
	if name == "" {
		return
	}
	if b.originalLayers == "" {
		b.originalLayers = name
	} else {
		b.originalLayers += "," + name
	}
}

// ParentEdges returns the incoming edge list, dead entries included.
func (b *BaseNode) ParentEdges() []*Edge { return b.parentEdges }

// ChildEdges returns the outgoing edge list, dead entries included.
func (b *BaseNode) ChildEdges() []*Edge { return b.childEdges }

// ParentEdgeAt returns the idx-th incoming edge. Out-of-range indices and dead edges
// are errors.
func (b *BaseNode) ParentEdgeAt(idx int) (*Edge, error) {
	if idx < 0 || idx >= len(b.parentEdges) {
		return nil, errors.Errorf("node %s contains less parent edges than %d", b.name, idx)
	}
	e := b.parentEdges[idx]
	if !e.Alive() {
		return nil, errors.Errorf("node %s contains dead parent edge for index %d", b.name, idx)
	}
	return e, nil
}

// ChildEdgeAt returns the idx-th outgoing edge. Out-of-range indices and dead edges are
// errors.
func (b *BaseNode) ChildEdgeAt(idx int) (*Edge, error) {
	if idx < 0 || idx >= len(b.childEdges) {
		return nil, errors.Errorf("node %s contains less child edges than %d", b.name, idx)
	}
	e := b.childEdges[idx]
	if !e.Alive() {
		return nil, errors.Errorf("node %s contains dead child edge for index %d", b.name, idx)
	}
	return e, nil
}

// ParentEdgesAtPort returns the incoming edges feeding the given input port.
func (b *BaseNode) ParentEdgesAtPort(port int) ([]*Edge, error) {
	if port < 0 || port >= len(b.inDescs) {
		return nil, errors.Errorf("node %s contains less input ports than %d", b.name, port)
	}
	var res []*Edge
	for _, e := range b.parentEdges {
		if !e.Alive() {
			return nil, errors.Errorf("node %s contains dead edge", b.name)
		}
		if e.OutputNum() == port {
			res = append(res, e)
		}
	}
	return res, nil
}

// ChildEdgesAtPort returns the outgoing edges fed by the given output port.
func (b *BaseNode) ChildEdgesAtPort(port int) ([]*Edge, error) {
	if port < 0 || port >= len(b.outDescs) {
		return nil, errors.Errorf("node %s contains less output ports than %d", b.name, port)
	}
	var res []*Edge
	for _, e := range b.childEdges {
		if !e.Alive() {
			return nil, errors.Errorf("node %s contains dead edge", b.name)
		}
		if e.InputNum() == port {
			res = append(res, e)
		}
	}
	return res, nil
}

// Remove detaches the node from the graph by dropping all its edges.
func (b *BaseNode) Remove() {
	for _, e := range slices.Clone(b.parentEdges) {
		RemoveEdge(e)
	}
	for _, e := range slices.Clone(b.childEdges) {
		RemoveEdge(e)
	}
}

// addTemplate registers one engine template. The first dataIns inputs of the template
// are fed by parent edges, the rest are internal weights.
func (b *BaseNode) addTemplate(tpl backends.Template, dataIns int) {
	b.templates = append(b.templates, descTemplate{tpl: tpl, dataIns: dataIns})
}

// InitTemplates is the variant hook registering engine templates. The base
// implementation registers none, which makes the node pass-through.
func (b *BaseNode) InitTemplates() error { return nil }

// SetGraphContext is ignored by the base implementation.
func (b *BaseNode) SetGraphContext(ctx *GraphContext) {}

// SupportedPrimDescs returns the enumerated candidates.
func (b *BaseNode) SupportedPrimDescs() []PrimDesc { return b.supportedPrimDescs }

// selectedPD returns the selected candidate or nil.
func (b *BaseNode) selectedPD() *PrimDesc {
	if b.selectedIdx < 0 || b.selectedIdx >= len(b.supportedPrimDescs) {
		return nil
	}
	return &b.supportedPrimDescs[b.selectedIdx]
}

// SelectedPrimDesc returns the selected candidate; an error before selection.
func (b *BaseNode) SelectedPrimDesc() (*PrimDesc, error) {
	pd := b.selectedPD()
	if pd == nil {
		return nil, errors.Errorf("preferable primitive descriptor is not set for node %s", b.name)
	}
	return pd, nil
}

// SelectedPrimDescIdx returns the selected candidate index, -1 before selection.
func (b *BaseNode) SelectedPrimDescIdx() int { return b.selectedIdx }

// SelectPrimDescByIdx selects the candidate at idx; out-of-range indices reset the
// selection.
func (b *BaseNode) SelectPrimDescByIdx(idx int) {
	if idx < 0 || idx >= len(b.supportedPrimDescs) {
		b.selectedIdx = -1
		return
	}
	b.selectedIdx = idx
}

// IsInplace reports whether the selected configuration aliases any port.
func (b *BaseNode) IsInplace() (bool, error) {
	pd, err := b.SelectedPrimDesc()
	if err != nil {
		return false, err
	}
	for _, in := range pd.Config.InConfs {
		if in.InPlace >= 0 {
			return true, nil
		}
	}
	for _, out := range pd.Config.OutConfs {
		if out.InPlace >= 0 {
			return true, nil
		}
	}
	return false, nil
}

// FuseWith records that the other node's computation was folded into this one.
func (b *BaseNode) FuseWith(n Node) {
	b.fusedWith = append(b.fusedWith, n)
	b.AddOriginalLayer(n.Name())
}

// MergeWith records that the other node's weights are concatenated into this one's.
func (b *BaseNode) MergeWith(n Node) {
	b.mergedWith = append(b.mergedWith, n)
	b.AddOriginalLayer(n.Name())
}

// FusedWith returns the nodes folded into this one.
func (b *BaseNode) FusedWith() []Node { return b.fusedWith }

// MergedWith returns the nodes whose weights this one carries.
func (b *BaseNode) MergedWith() []Node { return b.mergedWith }

// IsFusedWith reports whether a node of the given kind was folded into this one.
func (b *BaseNode) IsFusedWith(kind OpKind) bool {
	for _, n := range b.fusedWith {
		if n.Kind() == kind {
			return true
		}
	}
	return false
}

// Execute runs the bound primitive. Nodes without one (inputs, outputs, pure views)
// execute as no-ops.
func (b *BaseNode) Execute(stream backends.Stream) error {
	if b.primitive == nil {
		return nil
	}
	return b.primitive.Execute(stream, b.primArgs)
}

// MaxBatch is the declared leading dimension of input 0 (scalar inputs count as batch
// 1), falling back to output 0, then 0 for nodes with no ports at all.
func (b *BaseNode) MaxBatch() int {
	if len(b.inDescs) > 0 {
		if b.inDescs[0].Rank() > 0 {
			return b.inDescs[0].Dims[0]
		}
		return 1
	}
	if len(b.outDescs) > 0 && b.outDescs[0].Rank() > 0 {
		return b.outDescs[0].Dims[0]
	}
	return 0
}

// BatchToProcess is the effective batch under the current dynamic limit: the full
// declared batch when no limit is set, otherwise the smaller of the two.
func (b *BaseNode) BatchToProcess() int {
	if b.dynBatchLim == 0 {
		return b.MaxBatch()
	}
	return min(b.MaxBatch(), b.dynBatchLim)
}

// SetDynamicBatchLim shrinks the batch the node's primitive will process: the bound
// activation arguments are re-described with the new leading dimension over the same
// storage. Weights and biases are untouched.
func (b *BaseNode) SetDynamicBatchLim(lim int) error {
	b.dynBatchLim = lim
	if len(b.primArgs) == 0 {
		return nil
	}
	pd := b.selectedPD()
	if pd != nil && !pd.Config.DynBatchSupport {
		return errors.Errorf("node %s: selected implementation does not support dynamic batch", b.name)
	}
	newBatch := b.BatchToProcess()
	for _, role := range []backends.ArgRole{backends.ArgSrc, backends.ArgDst, backends.ArgDiffSrc, backends.ArgDiffDst} {
		key := backends.Arg(role)
		mem, found := b.primArgs[key]
		if !found {
			continue
		}
		view, err := viewWithBatch(mem, newBatch)
		if err != nil {
			return errors.Wrapf(err, "node %s: dynamic batch %d on %s", b.name, newBatch, role)
		}
		b.primArgs[key] = view
	}
	return nil
}

// viewWithBatch re-describes a memory with the leading logical dimension replaced,
// keeping strides so the view addresses the original layout.
func viewWithBatch(mem *backends.Memory, batch int) (*backends.Memory, error) {
	desc := mem.Desc()
	if desc.Rank() == 0 || desc.Dims[0] == batch {
		return mem, nil
	}
	patched := desc.Clone()
	patched.Dims[0] = batch
	for i, ax := range patched.Blocking.Order {
		if ax == 0 {
			patched.Blocking.BlockDims[i] = batch
			break
		}
	}
	return mem.WithDesc(patched)
}

// InputPrecisions returns the element types flowing in over validated parent edges.
func (b *BaseNode) InputPrecisions() []dtypes.DType {
	var precisions []dtypes.DType
	for _, e := range b.parentEdges {
		if e.Alive() && e.Status() == EdgeValidated && e.memory != nil {
			precisions = append(precisions, e.memory.Desc().DType)
		}
	}
	return precisions
}

// OutputPrecisions returns the element types flowing out over validated child edges.
func (b *BaseNode) OutputPrecisions() []dtypes.DType {
	var precisions []dtypes.DType
	for _, e := range b.childEdges {
		if e.Alive() && e.Status() == EdgeValidated && e.memory != nil {
			precisions = append(precisions, e.memory.Desc().DType)
		}
	}
	return precisions
}

// RuntimePrecision is the element type the node computes in: the first input precision,
// else the first output precision (inputs have no incoming edges).
func (b *BaseNode) RuntimePrecision() dtypes.DType {
	if ins := b.InputPrecisions(); len(ins) > 0 {
		return ins[0]
	}
	if outs := b.OutputPrecisions(); len(outs) > 0 {
		return outs[0]
	}
	return dtypes.InvalidDType
}

// Cleanup releases the canonical weight copies once primitives are built; the
// implementation-layout copies stay, they are what executes. Fused and merged nodes are
// cleaned recursively.
func (b *BaseNode) Cleanup() {
	b.internalBlobs = nil
	b.layer = nil
	for _, n := range b.fusedWith {
		n.Cleanup()
	}
	for _, n := range b.mergedWith {
		n.Cleanup()
	}
}
