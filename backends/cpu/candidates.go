// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/goinfer/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// candidate is one (implementation, port layouts) pair the engine offers for a
// template. The order of candidates follows the engine's own preference; the caller
// re-ranks them against its priority configuration.
type candidate struct {
	impl string
	src  []memdesc.Desc
	dst  []memdesc.Desc
}

// Primitives enumerates the candidate implementations for the template.
func (e *Engine) Primitives(tpl backends.Template) (backends.PrimIter, error) {
	var cands []candidate
	var err error
	switch tpl.Class {
	case backends.OpClassReorder:
		cands, err = e.reorderCandidates(tpl)
	case backends.OpClassConvert:
		cands, err = e.convertCandidates(tpl)
	case backends.OpClassEltwise:
		cands, err = e.eltwiseCandidates(tpl)
	case backends.OpClassInnerProduct:
		cands, err = e.innerProductCandidates(tpl)
	case backends.OpClassConvolution:
		cands, err = e.convolutionCandidates(tpl)
	default:
		return nil, errors.Errorf("cpu engine: unsupported operation class %v", tpl.Class)
	}
	if err != nil {
		return nil, err
	}
	return &primIter{eng: e, tpl: tpl, cands: cands}, nil
}

func portCounts(tpl backends.Template, minIn, maxIn, numOut int) error {
	if len(tpl.In) < minIn || len(tpl.In) > maxIn || len(tpl.Out) != numOut {
		return errors.Errorf("cpu engine: %v template needs %d..%d inputs and %d outputs, got %d/%d",
			tpl.Class, minIn, maxIn, numOut, len(tpl.In), len(tpl.Out))
	}
	return nil
}

// concrete resolves a declared port descriptor to an allocatable one: ANY becomes the
// dense default layout, proposed block structures get their strides computed.
func concrete(d memdesc.Desc) memdesc.Desc {
	if d.IsAny() {
		return memdesc.Make(d.DType, memdesc.DefaultFormat(d.Rank()), d.Dims...)
	}
	if d.IsUninit() {
		return d.Initialized()
	}
	return d
}

func (e *Engine) reorderCandidates(tpl backends.Template) ([]candidate, error) {
	if err := portCounts(tpl, 1, 1, 1); err != nil {
		return nil, err
	}
	return []candidate{{
		impl: "reorder",
		src:  []memdesc.Desc{concrete(tpl.In[0])},
		dst:  []memdesc.Desc{concrete(tpl.Out[0])},
	}}, nil
}

func (e *Engine) convertCandidates(tpl backends.Template) ([]candidate, error) {
	if err := portCounts(tpl, 1, 1, 1); err != nil {
		return nil, err
	}
	in, out := concrete(tpl.In[0]), concrete(tpl.Out[0])
	if !in.SamePartialLayout(out) {
		return nil, errors.Errorf("cpu engine: convert ports must share the layout, got %s vs %s", in, out)
	}
	return []candidate{{impl: "ref_any", src: []memdesc.Desc{in}, dst: []memdesc.Desc{out}}}, nil
}

// blockedTier returns the tier name advertised for a blocked format, or "" when the
// format's block size is not backed by an enabled tier.
func (e *Engine) blockedTier(format memdesc.Format) (string, bool) {
	switch format.BlockSize() {
	case 0:
		return e.features.BestTier(), true
	case 8:
		if e.features.AVX2 {
			return "avx2", true
		}
		if e.features.SSE42 {
			return "sse42", true
		}
	case 16:
		if e.features.AVX512 {
			return "avx512", true
		}
	}
	return "", false
}

// portFormats lists the layouts to enumerate for a data port: the declared format if
// the port is already committed, otherwise every layout available for its rank.
func portFormats(d memdesc.Desc) []memdesc.Format {
	if !d.IsAny() {
		return []memdesc.Format{d.Format}
	}
	formats := memdesc.AvailableFormatsForRank(d.Rank())
	if len(formats) == 1 && formats[0] == memdesc.FormatAny {
		// No named layout for this rank; fall back to the dense default.
		return []memdesc.Format{memdesc.DefaultFormat(d.Rank())}
	}
	return formats
}

func (e *Engine) eltwiseCandidates(tpl backends.Template) ([]candidate, error) {
	if err := portCounts(tpl, 1, 2, 1); err != nil {
		return nil, err
	}
	in0 := tpl.In[0]
	// A committed port pins the layout; otherwise every layout of the rank is offered.
	anchor := in0
	if anchor.IsAny() && !tpl.Out[0].IsAny() {
		anchor = tpl.Out[0]
	}
	jitOK := e.features.HasAny() && in0.DType.IsFloat()
	blockedOK := jitOK && in0.DType == dtypes.Float32
	var cands []candidate
	for _, format := range portFormats(anchor) {
		if format.BlockSize() > 0 && !blockedOK {
			continue
		}
		tier, tierOK := e.blockedTier(format)
		if !tierOK {
			continue
		}
		makePorts := func() (src, dst []memdesc.Desc) {
			src = xslices.Map(tpl.In, func(d memdesc.Desc) memdesc.Desc {
				if format.Rank() >= 0 && format.Rank() != d.Rank() {
					return concrete(d)
				}
				return memdesc.Make(d.DType, format, d.Dims...)
			})
			dst = []memdesc.Desc{memdesc.Make(tpl.Out[0].DType, format, tpl.Out[0].Dims...)}
			return
		}
		if jitOK {
			src, dst := makePorts()
			cands = append(cands, candidate{impl: "jit_" + tier, src: src, dst: dst})
		}
		if format.BlockSize() == 0 {
			src, dst := makePorts()
			cands = append(cands, candidate{impl: "ref_any", src: src, dst: dst})
		}
	}
	if len(cands) == 0 {
		return nil, errors.Errorf("cpu engine: no eltwise implementation for %s", in0)
	}
	return cands, nil
}

func (e *Engine) innerProductCandidates(tpl backends.Template) ([]candidate, error) {
	if err := portCounts(tpl, 2, 3, 1); err != nil {
		return nil, err
	}
	src, weights, out := tpl.In[0], tpl.In[1], tpl.Out[0]
	if weights.Rank() != 2 || out.Rank() != 2 {
		return nil, errors.Errorf("cpu engine: inner product needs 2D weights and output, got %s / %s",
			weights, out)
	}
	ports := func() (in, dst []memdesc.Desc) {
		in = []memdesc.Desc{
			memdesc.Make(src.DType, memdesc.DefaultFormat(src.Rank()), src.Dims...),
			memdesc.Make(weights.DType, memdesc.FormatNC, weights.Dims...),
		}
		if len(tpl.In) == 3 {
			bias := tpl.In[2]
			in = append(in, memdesc.Make(bias.DType, memdesc.FormatX, bias.Dims...))
		}
		dst = []memdesc.Desc{memdesc.Make(out.DType, memdesc.FormatNC, out.Dims...)}
		return
	}
	var cands []candidate
	f32 := src.DType == dtypes.Float32
	if f32 && e.features.HasAny() {
		in, dst := ports()
		cands = append(cands, candidate{impl: "gemm_" + e.features.BestTier(), src: in, dst: dst})
		in, dst = ports()
		cands = append(cands, candidate{impl: "jit_gemm", src: in, dst: dst})
	} else if f32 {
		in, dst := ports()
		cands = append(cands, candidate{impl: "gemm_any", src: in, dst: dst})
	}
	in, dst := ports()
	cands = append(cands, candidate{impl: "ref_any", src: in, dst: dst})
	return cands, nil
}

func (e *Engine) convolutionCandidates(tpl backends.Template) ([]candidate, error) {
	if err := portCounts(tpl, 2, 3, 1); err != nil {
		return nil, err
	}
	src, weights, out := tpl.In[0], tpl.In[1], tpl.Out[0]
	if src.Rank() != 4 || out.Rank() != 4 {
		return nil, errors.Errorf("cpu engine: convolution is 2D, needs rank-4 src and dst, got %s / %s",
			src, out)
	}
	grouped := tpl.Groups > 1
	wantWeightsRank := 4
	if grouped {
		wantWeightsRank = 5
	}
	if weights.Rank() != wantWeightsRank {
		return nil, errors.Errorf("cpu engine: convolution weights rank %d does not match groups=%d",
			weights.Rank(), tpl.Groups)
	}

	// Specialization suffix drives kernel selection priorities.
	suffix := ""
	switch {
	case grouped && tpl.Groups == src.Dims[1]:
		suffix = "_dw"
	case !grouped && allOnes(tpl.Kernel):
		suffix = "_1x1"
	}

	ports := func(format memdesc.Format) (in, dst []memdesc.Desc) {
		dstFormat := format
		if !out.IsAny() {
			dstFormat = out.Format
		}
		in = []memdesc.Desc{
			memdesc.Make(src.DType, format, src.Dims...),
			memdesc.Make(weights.DType, memdesc.WeightsFormatForDims(weights.Rank(), grouped), weights.Dims...),
		}
		if len(tpl.In) == 3 {
			bias := tpl.In[2]
			in = append(in, memdesc.Make(bias.DType, memdesc.FormatX, bias.Dims...))
		}
		dst = []memdesc.Desc{memdesc.Make(out.DType, dstFormat, out.Dims...)}
		return
	}

	// A committed src pins the fallback layout too; gemm only consumes planar inputs.
	fallbackFormat := memdesc.FormatNCHW
	if !src.IsAny() {
		fallbackFormat = src.Format
	}

	jitOK := e.features.HasAny() && src.DType == dtypes.Float32
	var cands []candidate
	for _, format := range portFormats(src) {
		if format.BlockSize() > 0 && !jitOK {
			continue
		}
		tier, tierOK := e.blockedTier(format)
		if !tierOK {
			continue
		}
		if jitOK {
			in, dst := ports(format)
			cands = append(cands, candidate{impl: "jit_" + tier + suffix, src: in, dst: dst})
		}
	}
	if src.DType == dtypes.Float32 && fallbackFormat.BlockSize() == 0 {
		in, dst := ports(fallbackFormat)
		cands = append(cands, candidate{impl: "gemm_any", src: in, dst: dst})
	}
	in, dst := ports(fallbackFormat)
	cands = append(cands, candidate{impl: "ref_any", src: in, dst: dst})
	return cands, nil
}

func allOnes(dims []int) bool {
	for _, d := range dims {
		if d != 1 {
			return false
		}
	}
	return len(dims) > 0
}

// primIter implements backends.PrimIter over the candidate list.
type primIter struct {
	eng   *Engine
	tpl   backends.Template
	cands []candidate
	pos   int
}

var _ backends.PrimIter = &primIter{}

func (it *primIter) Ok() bool { return it.pos < len(it.cands) }

func (it *primIter) Next() { it.pos++ }

func (it *primIter) NumSrcs() int { return len(it.cands[it.pos].src) }

func (it *primIter) NumDsts() int { return len(it.cands[it.pos].dst) }

func (it *primIter) SrcDesc(idx int) memdesc.Desc { return it.cands[it.pos].src[idx] }

func (it *primIter) DstDesc(idx int) memdesc.Desc { return it.cands[it.pos].dst[idx] }

func (it *primIter) ImplInfo() string { return it.cands[it.pos].impl }

// Instantiate builds the executable primitive for the current candidate.
func (it *primIter) Instantiate() (backends.Primitive, error) {
	if !it.Ok() {
		return nil, errors.Errorf("cpu engine: iterator exhausted, no candidate to instantiate")
	}
	e := it.eng
	var run kernelFunc
	var err error
	switch it.tpl.Class {
	case backends.OpClassReorder:
		run = e.reorderKernel()
	case backends.OpClassConvert:
		run = e.convertKernel()
	case backends.OpClassEltwise:
		run, err = e.eltwiseKernel(it.tpl.Alg, it.tpl.Alpha, it.tpl.Beta)
	case backends.OpClassInnerProduct:
		run = e.innerProductKernel()
	case backends.OpClassConvolution:
		run, err = e.convKernel(it.tpl)
	default:
		return nil, errors.Errorf("cpu engine: unsupported operation class %v", it.tpl.Class)
	}
	if err != nil {
		return nil, err
	}
	return &primitive{engine: e, impl: it.cands[it.pos].impl, run: run}, nil
}

// primitive is a bound kernel; it implements backends.Primitive.
type primitive struct {
	engine *Engine
	impl   string
	run    kernelFunc
}

func (p *primitive) Execute(stream backends.Stream, args backends.Args) error {
	if s, ok := stream.(*Stream); !ok || s.engine != p.engine {
		return errors.Errorf("cpu engine: %s primitive executed on a stream of a different engine", p.impl)
	}
	return p.run(args)
}
