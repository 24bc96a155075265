// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import "strings"

// OpKind tags a node with its operator family. Many textual layer types collapse onto
// one kind (every activation is OpEltwise, every recurrent cell is OpRNNCell);
// KindFromName resolves the aliases. OpGeneric never appears in the alias table: it is
// the factory's fallback for types no built-in variant claims.
type OpKind int

//go:generate go tool enumer -type=OpKind -trimprefix=Op -output=gen_opkind_enumer.go optype.go

const (
	OpUnknown OpKind = iota
	OpGeneric
	OpReorder
	OpInput
	OpOutput
	OpConvolution
	OpDeconvolution
	OpConvert
	OpEltwise
	OpLrn
	OpPooling
	OpFullyConnected
	OpGemm
	OpSoftMax
	OpSplit
	OpConcatenation
	OpReshape
	OpTile
	OpSimplerNMS
	OpROIAlign
	OpROIPooling
	OpBatchNormalization
	OpFlatten
	OpPad
	OpPermute
	OpStridedSlice
	OpCopy
	OpMemoryInput
	OpMemoryOutput
	OpRNNCell
	OpRNNSeq
	OpQuantize
	OpBinaryConvolution
	OpDeformableConvolution
	OpTensorIterator
	OpMVN
	OpNormalize
	OpScatterUpdate
	OpScatterElementsUpdate
	OpScatterNDUpdate
	OpInterpolate
	OpReduceAnd
	OpReduceL1
	OpReduceL2
	OpReduceLogSum
	OpReduceLogSumExp
	OpReduceMax
	OpReduceMean
	OpReduceMin
	OpReduceOr
	OpReduceProd
	OpReduceSum
	OpReduceSumSquare
)

// kindAliases maps lowercased layer-type names onto kinds, many-to-one.
var kindAliases = map[string]OpKind{
	"unknown":               OpUnknown,
	"input":                 OpInput,
	"const":                 OpInput,
	"output":                OpOutput,
	"reorder":               OpReorder,
	"convolution":           OpConvolution,
	"relu":                  OpEltwise,
	"gelu":                  OpEltwise,
	"elu":                   OpEltwise,
	"sigmoid":               OpEltwise,
	"logistic":              OpEltwise,
	"tanh":                  OpEltwise,
	"relu6":                 OpEltwise,
	"exp":                   OpEltwise,
	"not":                   OpEltwise,
	"activation":            OpEltwise,
	"clamp":                 OpEltwise,
	"swish":                 OpEltwise,
	"hswish":                OpEltwise,
	"mish":                  OpEltwise,
	"hsigmoid":              OpEltwise,
	"round":                 OpEltwise,
	"scaleshift":            OpEltwise,
	"prelu":                 OpEltwise,
	"eltwise":               OpEltwise,
	"mod":                   OpEltwise,
	"power":                 OpEltwise,
	"erf":                   OpEltwise,
	"norm":                  OpLrn,
	"lrn":                   OpLrn,
	"pooling":               OpPooling,
	"fullyconnected":        OpFullyConnected,
	"innerproduct":          OpFullyConnected,
	"gemm":                  OpGemm,
	"softmax":               OpSoftMax,
	"split":                 OpSplit,
	"slice":                 OpSplit,
	"concat":                OpConcatenation,
	"deconvolution":         OpDeconvolution,
	"reshape":               OpReshape,
	"tile":                  OpTile,
	"simplernms":            OpSimplerNMS,
	"roialign":              OpROIAlign,
	"roipooling":            OpROIPooling,
	"batchnormalization":    OpBatchNormalization,
	"flatten":               OpFlatten,
	"pad":                   OpPad,
	"permute":               OpPermute,
	"stridedslice":          OpStridedSlice,
	"copy":                  OpCopy,
	"lstmcell":              OpRNNCell,
	"grucell":               OpRNNCell,
	"rnncell":               OpRNNCell,
	"lstmsequence":          OpRNNSeq,
	"grusequence":           OpRNNSeq,
	"rnnsequence":           OpRNNSeq,
	"quantize":              OpQuantize,
	"fakequantize":          OpQuantize,
	"binaryconvolution":     OpBinaryConvolution,
	"deformableconvolution": OpDeformableConvolution,
	"tensoriterator":        OpTensorIterator,
	"loop":                  OpTensorIterator,
	"memoryinput":           OpMemoryInput,
	"memory":                OpMemoryOutput,
	"convert":               OpConvert,
	"mvn":                   OpMVN,
	"normalize":             OpNormalize,
	"scatterupdate":         OpScatterUpdate,
	"scatterelementsupdate": OpScatterElementsUpdate,
	"scatterndupdate":       OpScatterNDUpdate,
	"interpolate":           OpInterpolate,
	"reduceand":             OpReduceAnd,
	"reducel1":              OpReduceL1,
	"reducel2":              OpReduceL2,
	"reducelogsum":          OpReduceLogSum,
	"reducelogsumexp":       OpReduceLogSumExp,
	"reducemax":             OpReduceMax,
	"reducemean":            OpReduceMean,
	"reducemin":             OpReduceMin,
	"reduceor":              OpReduceOr,
	"reduceprod":            OpReduceProd,
	"reducesum":             OpReduceSum,
	"reducesumsquare":       OpReduceSumSquare,
}

// KindFromName resolves a layer-type name, case-insensitively, to its OpKind.
// Unrecognized names resolve to OpUnknown; whether that is an error is decided later, by
// the factory (a generic variant may still claim the node).
func KindFromName(typeName string) OpKind {
	if kind, found := kindAliases[strings.ToLower(typeName)]; found {
		return kind
	}
	return OpUnknown
}

// noOutputTypes are the layer types legitimately declaring no output shapes: their
// results leave the graph through side channels rather than data ports. Checked against
// the textual type, not the kind, since e.g. most OpEltwise types do need outputs.
var noOutputTypes = map[string]bool{
	"memory":      true,
	"memoryinput": true,
	"output":      true,
	"reorder":     true,
	"convert":     true,
}

func typeAllowsNoOutput(typeName string) bool {
	return noOutputTypes[strings.ToLower(typeName)]
}
