// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strings"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

func init() {
	RegisterNodeKind(OpInput, newInputNode)
	RegisterNodeKind(OpOutput, newOutputNode)
	RegisterNodeKind(OpReorder, newReorderNode)
	RegisterNodeKind(OpConvert, newConvertNode)
	RegisterNodeKind(OpEltwise, newEltwiseNode)
	RegisterNodeKind(OpFullyConnected, newFullyConnectedNode)
	RegisterNodeKind(OpConvolution, newConvolutionNode)
	RegisterNodeKind(OpReshape, newPassthroughNode)
	RegisterNodeKind(OpFlatten, newPassthroughNode)
	RegisterNodeKind(OpMemoryInput, newPassthroughNode)
	RegisterNodeKind(OpMemoryOutput, newPassthroughNode)
	RegisterNodeKind(OpTensorIterator, newTensorIteratorNode)
}

// internalDType maps a stored blob precision to the element type weights are
// materialized in: binary and 8-bit stay 8-bit, 32-bit ints stay ints, brain-floats
// stay brain-floats, everything else becomes float32.
func internalDType(dt dtypes.DType) dtypes.DType {
	switch dt {
	case dtypes.Bool, dtypes.Int8:
		return dtypes.Int8
	case dtypes.Int32:
		return dtypes.Int32
	case dtypes.BFloat16:
		return dtypes.BFloat16
	}
	return dtypes.Float32
}

// inputNode is a graph entry: a data input fed from outside before each execution, or a
// constant whose blob is written into its output edge once at build time.
type inputNode struct {
	BaseNode
}

func newInputNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	n := &inputNode{BaseNode: base}
	n.markConstant(strings.EqualFold(layer.Type, "Const"))
	return n, nil
}

// CreatePrimitive writes a constant input's blob into its output edge memory. The edge
// buffer outlives the blob; Cleanup may drop the layer afterwards.
func (n *inputNode) CreatePrimitive() error {
	if n.layer == nil || n.layer.Weights == nil {
		return nil
	}
	e, err := n.ChildEdgeAt(0)
	if err != nil {
		return errors.Wrapf(err, "constant node %s", n.name)
	}
	mem, err := e.Memory()
	if err != nil {
		return errors.Wrapf(err, "constant node %s", n.name)
	}
	if _, err := convertBlobInto(mem, 0, n.layer.Weights); err != nil {
		return errors.Wrapf(err, "constant node %s", n.name)
	}
	return nil
}

// outputNode is a graph exit; its parent edge's buffer is where consumers read results.
type outputNode struct {
	BaseNode
}

func newOutputNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	n := &outputNode{BaseNode: base}
	n.markConstant(false)
	return n, nil
}

// passthroughNode executes without a primitive: reshapes, flattens and the memory
// nodes only re-describe or hand over their input buffer.
type passthroughNode struct {
	BaseNode
}

func newPassthroughNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	return &passthroughNode{BaseNode: base}, nil
}

// reorderNode converts a value between two memory layouts. The build driver inserts
// these between neighbors whose chosen layouts disagree; networks may also declare them
// explicitly.
type reorderNode struct {
	BaseNode
}

func newReorderNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	return &reorderNode{BaseNode: base}, nil
}

func (n *reorderNode) InitTemplates() error {
	if len(n.inDescs) != 1 {
		return errors.Errorf("reorder node %s needs exactly one input, got %d", n.name, len(n.inDescs))
	}
	out := n.inDescs
	if len(n.outDescs) > 0 {
		out = n.outDescs
	}
	n.addTemplate(backends.Template{
		Class: backends.OpClassReorder,
		In:    []memdesc.Desc{n.inDescs[0].Clone()},
		Out:   []memdesc.Desc{out[0].Clone()},
	}, 1)
	return nil
}

// convertNode casts between element types, layout unchanged.
type convertNode struct {
	BaseNode
}

func newConvertNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	return &convertNode{BaseNode: base}, nil
}

func (n *convertNode) InitTemplates() error {
	if len(n.inDescs) != 1 {
		return errors.Errorf("convert node %s needs exactly one input, got %d", n.name, len(n.inDescs))
	}
	out := n.inDescs
	if len(n.outDescs) > 0 {
		out = n.outDescs
	}
	n.addTemplate(backends.Template{
		Class: backends.OpClassConvert,
		In:    []memdesc.Desc{n.inDescs[0].Clone()},
		Out:   []memdesc.Desc{out[0].Clone()},
	}, 1)
	return nil
}

// eltwiseNode covers the whole activation alias family: the textual layer type picks
// the pointwise function, "alpha"/"beta" parameterize it.
type eltwiseNode struct {
	BaseNode
}

func newEltwiseNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	return &eltwiseNode{BaseNode: base}, nil
}

func (n *eltwiseNode) InitTemplates() error {
	alg := strings.ToLower(n.typeName)
	if alg == "activation" {
		// Legacy descriptions carry the function in a "type" attribute.
		alg = strings.ToLower(n.layer.Param("type", "relu"))
	}
	alpha, err := n.layer.FloatParam("alpha", 0)
	if err != nil {
		return err
	}
	beta, err := n.layer.FloatParam("beta", 0)
	if err != nil {
		return err
	}
	if len(n.inDescs) == 0 || len(n.outDescs) != 1 {
		return errors.Errorf("eltwise node %s needs inputs and exactly one output", n.name)
	}
	in := make([]memdesc.Desc, len(n.inDescs))
	for i, d := range n.inDescs {
		in[i] = d.Clone()
	}
	n.addTemplate(backends.Template{
		Class: backends.OpClassEltwise,
		In:    in,
		Out:   []memdesc.Desc{n.outDescs[0].Clone()},
		Alg:   alg,
		Alpha: alpha,
		Beta:  beta,
	}, len(in))
	return nil
}

// fullyConnectedNode multiplies its input by a learned weight matrix, plus an optional
// bias. Weights are internal: they come from the layer blob, not from a parent edge.
type fullyConnectedNode struct {
	BaseNode
}

func newFullyConnectedNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	return &fullyConnectedNode{BaseNode: base}, nil
}

func (n *fullyConnectedNode) InitTemplates() error {
	if len(n.inDescs) != 1 || len(n.outDescs) != 1 {
		return errors.Errorf("fully-connected node %s needs one input and one output", n.name)
	}
	if n.layer.Weights == nil {
		return errors.Errorf("fully-connected node %s has no weights blob", n.name)
	}
	src, out := n.inDescs[0], n.outDescs[0]
	if out.Rank() != 2 {
		return errors.Errorf("fully-connected node %s needs a rank-2 output, got %s", n.name, out)
	}
	features := 1
	for _, dim := range src.Dims[1:] {
		features *= dim
	}
	wDType := internalDType(n.layer.Weights.DType)
	in := []memdesc.Desc{
		src.Clone(),
		memdesc.Make(wDType, memdesc.FormatNC, out.Dims[1], features),
	}
	if n.layer.Biases != nil {
		bDType := internalDType(n.layer.Biases.DType)
		in = append(in, memdesc.Make(bDType, memdesc.FormatX, out.Dims[1]))
	}
	n.addTemplate(backends.Template{
		Class: backends.OpClassInnerProduct,
		In:    in,
		Out:   []memdesc.Desc{out.Clone()},
	}, 1)
	return nil
}

// convolutionNode is a 2D convolution with learned weights, optionally grouped. Groups
// equal to the input channel count unlock depthwise kernels, an all-ones kernel the 1x1
// ones.
type convolutionNode struct {
	BaseNode
}

func newConvolutionNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	return &convolutionNode{BaseNode: base}, nil
}

func (n *convolutionNode) InitTemplates() error {
	if len(n.inDescs) != 1 || len(n.outDescs) != 1 {
		return errors.Errorf("convolution node %s needs one input and one output", n.name)
	}
	if n.layer.Weights == nil {
		return errors.Errorf("convolution node %s has no weights blob", n.name)
	}
	src, out := n.inDescs[0], n.outDescs[0]
	if src.Rank() != 4 || out.Rank() != 4 {
		return errors.Errorf("convolution node %s needs rank-4 ports, got %s / %s", n.name, src, out)
	}
	kernel, err := n.layer.IntsParam("kernel", nil)
	if err != nil {
		return err
	}
	if len(kernel) != 2 {
		return errors.Errorf("convolution node %s needs a 2-entry kernel attribute, got %v", n.name, kernel)
	}
	strides, err := n.layer.IntsParam("strides", []int{1, 1})
	if err != nil {
		return err
	}
	padding, err := n.layer.IntsParam("pads_begin", []int{0, 0})
	if err != nil {
		return err
	}
	groups, err := n.layer.IntParam("group", 1)
	if err != nil {
		return err
	}
	inChannels, outChannels := src.Dims[1], out.Dims[1]
	wDType := internalDType(n.layer.Weights.DType)
	var wDesc memdesc.Desc
	if groups > 1 {
		wDesc = memdesc.Make(wDType, memdesc.FormatGOIHW,
			groups, outChannels/groups, inChannels/groups, kernel[0], kernel[1])
	} else {
		wDesc = memdesc.Make(wDType, memdesc.FormatOIHW, outChannels, inChannels, kernel[0], kernel[1])
	}
	in := []memdesc.Desc{src.Clone(), wDesc}
	if n.layer.Biases != nil {
		in = append(in, memdesc.Make(internalDType(n.layer.Biases.DType), memdesc.FormatX, outChannels))
	}
	n.addTemplate(backends.Template{
		Class:   backends.OpClassConvolution,
		In:      in,
		Out:     []memdesc.Desc{out.Clone()},
		Groups:  groups,
		Kernel:  kernel,
		Strides: strides,
		Padding: padding,
	}, 1)
	return nil
}

// tensorIteratorNode runs a nested network once per iteration. The nested network is a
// full graph of its own, built with the same factory, engine and weight cache as the
// enclosing one; this node is the only variant that acts on the injected graph context.
type tensorIteratorNode struct {
	BaseNode
	ctx *GraphContext
	sub *Graph

	iterations int
}

func newTensorIteratorNode(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error) {
	base, err := newBaseNode(layer, engine, cache)
	if err != nil {
		return nil, err
	}
	iterations, err := layer.IntParam("iterations", 1)
	if err != nil {
		return nil, err
	}
	if iterations < 1 {
		return nil, errors.Errorf("TensorIterator node %s: iterations must be >= 1, got %d", layer.Name, iterations)
	}
	return &tensorIteratorNode{BaseNode: base, iterations: iterations}, nil
}

func (n *tensorIteratorNode) SetGraphContext(ctx *GraphContext) { n.ctx = ctx }

// CreatePrimitive builds the nested graph end to end.
func (n *tensorIteratorNode) CreatePrimitive() error {
	if n.layer == nil || n.layer.Body == nil {
		return errors.Errorf("TensorIterator node %s has no body network", n.name)
	}
	if n.ctx == nil {
		return errors.Errorf("TensorIterator node %s was created without a graph context", n.name)
	}
	sub := New(n.ctx.Engine, WithFactory(n.ctx.Factory), WithWeightCache(n.ctx.Cache))
	if err := sub.Build(n.layer.Body); err != nil {
		return errors.Wrapf(err, "TensorIterator node %s: nested network", n.name)
	}
	n.sub = sub
	return nil
}

// Execute runs the nested graph the configured number of iterations.
func (n *tensorIteratorNode) Execute(stream backends.Stream) error {
	for i := 0; i < n.iterations; i++ {
		if err := n.sub.Execute(stream); err != nil {
			return errors.Wrapf(err, "TensorIterator node %s: iteration %d", n.name, i)
		}
	}
	return nil
}

// Cleanup tears the nested graph down along with the node.
func (n *tensorIteratorNode) Cleanup() {
	if n.sub != nil {
		n.sub.Teardown()
		n.sub = nil
	}
	n.BaseNode.Cleanup()
}
