// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "github.com/gomlx/goinfer/types/memdesc"

// OpClass identifies the class of computation an operator template asks an engine for.
// It is deliberately coarser than the graph's operator vocabulary: many graph operators
// map onto the same engine class (every activation is OpClassEltwise) and some map onto
// none at all (reshapes and graph inputs execute without a primitive).
type OpClass int

const (
	// OpClassReorder converts between two memory layouts of the same value.
	OpClassReorder OpClass = iota

	// OpClassConvert casts between element types, layout unchanged.
	OpClassConvert

	// OpClassEltwise applies a pointwise function, selected by Template.Alg.
	OpClassEltwise

	// OpClassInnerProduct is a fully-connected layer: dst = src × weightsᵀ (+ bias).
	OpClassInnerProduct

	// OpClassConvolution is a 2D convolution, optionally grouped.
	OpClassConvolution
)

// String implements fmt.Stringer.
func (c OpClass) String() string {
	switch c {
	case OpClassReorder:
		return "Reorder"
	case OpClassConvert:
		return "Convert"
	case OpClassEltwise:
		return "Eltwise"
	case OpClassInnerProduct:
		return "InnerProduct"
	case OpClassConvolution:
		return "Convolution"
	}
	return "InvalidOpClass"
}

// Template describes one operation a node wants an engine to implement: the class of
// computation, the declared descriptor of every input and output port (layouts may
// still be memdesc.FormatAny, in which case each candidate implementation proposes its
// own), and the class-specific parameters.
//
// A node may publish several templates; the engine enumerates candidates for each.
type Template struct {
	Class OpClass

	// In and Out are the declared port descriptors, in port order.
	In  []memdesc.Desc
	Out []memdesc.Desc

	// Alg names the pointwise function for OpClassEltwise: "relu", "gelu", "elu",
	// "sigmoid", "tanh", "clamp", "swish", "mish", "hswish", "hsigmoid", "round",
	// "exp", "abs", "sqrt", "linear", "not".
	Alg string

	// Alpha and Beta parameterize Alg where applicable (negative slope for "relu",
	// bounds for "clamp", scale/shift for "linear").
	Alpha, Beta float32

	// Convolution geometry. Groups == input channels marks a depthwise convolution;
	// an all-ones Kernel marks a 1x1 convolution. Both unlock specialized kernels.
	// A bias port, when present, is the last In entry.
	Groups  int
	Kernel  []int
	Strides []int
	Padding []int
}

// PrimIter iterates over the candidate implementations an engine offers for one
// Template, most preferred first. The iterator starts positioned on the first
// candidate.
//
// Each candidate fixes a concrete memory descriptor for every port; ports the template
// declared as memdesc.FormatAny come back resolved to the layout this particular
// implementation wants.
type PrimIter interface {
	// Ok reports whether the iterator is positioned on a candidate.
	Ok() bool

	// Next advances to the next candidate. After the last candidate Ok returns false.
	Next()

	// NumSrcs and NumDsts return the port counts of the current candidate.
	NumSrcs() int
	NumDsts() int

	// SrcDesc and DstDesc return the concrete memory descriptor the current candidate
	// requires on the given port.
	SrcDesc(idx int) memdesc.Desc
	DstDesc(idx int) memdesc.Desc

	// ImplInfo returns the implementation name of the current candidate, in the
	// underscore-joined vocabulary of ParseImplType (e.g. "jit_avx2_1x1").
	ImplInfo() string

	// Instantiate builds an executable primitive from the current candidate.
	Instantiate() (Primitive, error)
}

// Primitive is one compiled kernel invocation. Execute runs it over the argument
// memories; the primitive reads layouts from each Memory's descriptor at call time, so
// re-describing an argument (dynamic batch) between calls is legal.
type Primitive interface {
	Execute(stream Stream, args Args) error
}

// Stream is the execution context primitives run on. Streams serialize the primitives
// submitted to them; they are not safe for concurrent use.
type Stream interface {
	Engine() Engine
}

// ArgRole classifies one argument of a primitive execution.
type ArgRole int

const (
	ArgSrc ArgRole = iota
	ArgWeights
	ArgBias
	ArgDst
	ArgDiffSrc
	ArgDiffDst
)

// String implements fmt.Stringer.
func (r ArgRole) String() string {
	switch r {
	case ArgSrc:
		return "Src"
	case ArgWeights:
		return "Weights"
	case ArgBias:
		return "Bias"
	case ArgDst:
		return "Dst"
	case ArgDiffSrc:
		return "DiffSrc"
	case ArgDiffDst:
		return "DiffDst"
	}
	return "InvalidArgRole"
}

// IsActivation reports whether arguments of this role carry activations whose leading
// dimension is the batch, the ones a dynamic batch limit re-describes before execution.
// Weights and biases have no batch dimension and are never patched.
func (r ArgRole) IsActivation() bool {
	switch r {
	case ArgSrc, ArgDst, ArgDiffSrc, ArgDiffDst:
		return true
	}
	return false
}

// ArgKey identifies one argument: a role plus an index for primitives taking several
// arguments of the same role (the second operand of a binary eltwise is ArgAt(ArgSrc, 1)).
type ArgKey struct {
	Role  ArgRole
	Index int
}

// Arg is the ArgKey for the first (usually only) argument of a role.
func Arg(role ArgRole) ArgKey {
	return ArgKey{Role: role}
}

// ArgAt is the ArgKey for the idx-th argument of a role.
func ArgAt(role ArgRole, idx int) ArgKey {
	return ArgKey{Role: role, Index: idx}
}

// Args maps argument keys to the memories a primitive executes over.
type Args map[ArgKey]*Memory
