// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"math"
	"testing"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/internal/workerspool"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	portableFeatures = Features{}
	avx2Features     = Features{SSE42: true, AVX: true, AVX2: true}
	avx512Features   = Features{SSE42: true, AVX: true, AVX2: true, AVX512: true}
)

func newTestEngine(features Features) *Engine {
	return NewWithFeatures(features, workerspool.New())
}

func mustMemory(t *testing.T, desc memdesc.Desc) *backends.Memory {
	m, err := backends.NewMemory(desc)
	require.NoError(t, err)
	return m
}

func mustMemoryFromFlat(t *testing.T, desc memdesc.Desc, flat any) *backends.Memory {
	m, err := backends.NewMemoryFromFlat(desc, flat)
	require.NoError(t, err)
	return m
}

func argsOf(src, dst *backends.Memory) backends.Args {
	return backends.Args{
		backends.Arg(backends.ArgSrc): src,
		backends.Arg(backends.ArgDst): dst,
	}
}

func iotaF32(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i)
	}
	return v
}

// implNames collects the implementation name of every candidate, in order.
func implNames(t *testing.T, e *Engine, tpl backends.Template) []string {
	it, err := e.Primitives(tpl)
	require.NoError(t, err)
	var names []string
	for ; it.Ok(); it.Next() {
		names = append(names, it.ImplInfo())
	}
	return names
}

// src0Formats collects the layout each candidate wants on the first input.
func src0Formats(t *testing.T, e *Engine, tpl backends.Template) []memdesc.Format {
	it, err := e.Primitives(tpl)
	require.NoError(t, err)
	var formats []memdesc.Format
	for ; it.Ok(); it.Next() {
		require.False(t, it.SrcDesc(0).IsUninit(), "candidate descs must be concrete")
		formats = append(formats, it.SrcDesc(0).Format)
	}
	return formats
}

// runPrimitive instantiates the candidate with the given implementation name and runs it.
func runPrimitive(t *testing.T, e *Engine, tpl backends.Template, impl string, args backends.Args) {
	it, err := e.Primitives(tpl)
	require.NoError(t, err)
	for ; it.Ok(); it.Next() {
		if it.ImplInfo() != impl {
			continue
		}
		prim, err := it.Instantiate()
		require.NoError(t, err)
		require.NoError(t, prim.Execute(e.NewStream(), args))
		return
	}
	t.Fatalf("engine %s offered no %q candidate for %v", e.Description(), impl, tpl.Class)
}

func TestEngineConfig(t *testing.T) {
	e := New("").(*Engine)
	assert.Equal(t, "cpu", e.Name())
	assert.NotEmpty(t, e.Description())
	assert.Equal(t, e, e.NewStream().Engine())
	e.Finalize()

	assert.Equal(t, Features{}, New("portable").(*Engine).Features())
	assert.Equal(t, Features{SSE42: true, AVX2: true},
		New("tiers=avx2+sse42").(*Engine).Features())
	assert.Contains(t, New("portable,threads=3").(*Engine).Description(), "parallelism=3")

	require.Panics(t, func() { New("turbo") })
	require.Panics(t, func() { New("tiers=mmx") })
	require.Panics(t, func() { New("threads=many") })
}

func TestRegisteredWithBackends(t *testing.T) {
	e := backends.NewWithConfig("cpu:portable")
	assert.Equal(t, "cpu", e.Name())
	assert.Equal(t, Features{}, e.(*Engine).Features())
}

func TestFeatures(t *testing.T) {
	assert.False(t, portableFeatures.HasAny())
	assert.Equal(t, "", portableFeatures.BestTier())
	assert.Equal(t, "[portable]", portableFeatures.String())

	assert.True(t, avx2Features.HasAny())
	assert.Equal(t, "avx2", avx2Features.BestTier())
	assert.Equal(t, "avx512", avx512Features.BestTier())
	assert.Equal(t, "[avx2 avx sse42]", avx2Features.String())
}

func TestEltwiseCandidates(t *testing.T) {
	tpl := func(dtype dtypes.DType) backends.Template {
		return backends.Template{
			Class: backends.OpClassEltwise,
			In:    []memdesc.Desc{memdesc.MakeAny(dtype, 2, 16, 8, 8)},
			Out:   []memdesc.Desc{memdesc.MakeAny(dtype, 2, 16, 8, 8)},
			Alg:   "relu",
		}
	}

	e := newTestEngine(avx2Features)
	assert.Equal(t, []string{"jit_avx2", "ref_any", "jit_avx2"}, implNames(t, e, tpl(dtypes.Float32)))
	assert.Equal(t, []memdesc.Format{memdesc.FormatNCHW, memdesc.FormatNCHW, memdesc.FormatNChw8c},
		src0Formats(t, e, tpl(dtypes.Float32)))

	// The 16-channel blocking appears only with avx512; the 8-channel one still rides
	// on the avx2 tier.
	e = newTestEngine(avx512Features)
	assert.Equal(t, []string{"jit_avx512", "ref_any", "jit_avx2", "jit_avx512"},
		implNames(t, e, tpl(dtypes.Float32)))
	assert.Equal(t,
		[]memdesc.Format{memdesc.FormatNCHW, memdesc.FormatNCHW, memdesc.FormatNChw8c, memdesc.FormatNChw16c},
		src0Formats(t, e, tpl(dtypes.Float32)))

	e = newTestEngine(portableFeatures)
	assert.Equal(t, []string{"ref_any"}, implNames(t, e, tpl(dtypes.Float32)))
	assert.Equal(t, []memdesc.Format{memdesc.FormatNCHW}, src0Formats(t, e, tpl(dtypes.Float32)))

	// Integer elements never get the tuned kernels.
	e = newTestEngine(avx2Features)
	assert.Equal(t, []string{"ref_any"}, implNames(t, e, tpl(dtypes.Int32)))

	// A committed blocked input restricts the enumeration to that layout.
	committed := tpl(dtypes.Float32)
	committed.In = []memdesc.Desc{memdesc.Make(dtypes.Float32, memdesc.FormatNChw8c, 2, 16, 8, 8)}
	assert.Equal(t, []string{"jit_avx2"}, implNames(t, e, committed))
}

func TestInnerProductCandidates(t *testing.T) {
	tpl := func(dtype dtypes.DType) backends.Template {
		return backends.Template{
			Class: backends.OpClassInnerProduct,
			In: []memdesc.Desc{
				memdesc.MakeAny(dtype, 4, 8),
				memdesc.MakeAny(dtype, 16, 8),
				memdesc.MakeAny(dtype, 16),
			},
			Out: []memdesc.Desc{memdesc.MakeAny(dtype, 4, 16)},
		}
	}

	e := newTestEngine(avx2Features)
	assert.Equal(t, []string{"gemm_avx2", "jit_gemm", "ref_any"}, implNames(t, e, tpl(dtypes.Float32)))
	assert.Equal(t, []string{"ref_any"}, implNames(t, e, tpl(dtypes.Int32)))

	e = newTestEngine(portableFeatures)
	assert.Equal(t, []string{"gemm_any", "ref_any"}, implNames(t, e, tpl(dtypes.Float32)))

	// Weights and bias layouts are fixed whatever the candidate.
	it, err := e.Primitives(tpl(dtypes.Float32))
	require.NoError(t, err)
	require.True(t, it.Ok())
	assert.Equal(t, 3, it.NumSrcs())
	assert.Equal(t, 1, it.NumDsts())
	assert.Equal(t, memdesc.FormatNC, it.SrcDesc(1).Format)
	assert.Equal(t, memdesc.FormatX, it.SrcDesc(2).Format)
	assert.Equal(t, memdesc.FormatNC, it.DstDesc(0).Format)
}

func TestConvolutionCandidates(t *testing.T) {
	e := newTestEngine(avx2Features)

	base := backends.Template{
		Class: backends.OpClassConvolution,
		In: []memdesc.Desc{
			memdesc.MakeAny(dtypes.Float32, 1, 16, 8, 8),
			memdesc.MakeAny(dtypes.Float32, 32, 16, 3, 3),
		},
		Out:     []memdesc.Desc{memdesc.MakeAny(dtypes.Float32, 1, 32, 8, 8)},
		Kernel:  []int{3, 3},
		Strides: []int{1, 1},
		Padding: []int{1, 1},
	}
	assert.Equal(t, []string{"jit_avx2", "jit_avx2", "gemm_any", "ref_any"}, implNames(t, e, base))
	assert.Equal(t,
		[]memdesc.Format{memdesc.FormatNCHW, memdesc.FormatNChw8c, memdesc.FormatNCHW, memdesc.FormatNCHW},
		src0Formats(t, e, base))

	it, err := e.Primitives(base)
	require.NoError(t, err)
	assert.Equal(t, memdesc.FormatOIHW, it.SrcDesc(1).Format)

	pointwise := base
	pointwise.In = []memdesc.Desc{
		memdesc.MakeAny(dtypes.Float32, 1, 16, 8, 8),
		memdesc.MakeAny(dtypes.Float32, 32, 16, 1, 1),
	}
	pointwise.Kernel = []int{1, 1}
	pointwise.Padding = []int{0, 0}
	assert.Equal(t, []string{"jit_avx2_1x1", "jit_avx2_1x1", "gemm_any", "ref_any"},
		implNames(t, e, pointwise))

	depthwise := base
	depthwise.In = []memdesc.Desc{
		memdesc.MakeAny(dtypes.Float32, 1, 16, 8, 8),
		memdesc.MakeAny(dtypes.Float32, 16, 1, 1, 3, 3),
	}
	depthwise.Out = []memdesc.Desc{memdesc.MakeAny(dtypes.Float32, 1, 16, 8, 8)}
	depthwise.Groups = 16
	assert.Equal(t, []string{"jit_avx2_dw", "jit_avx2_dw", "gemm_any", "ref_any"},
		implNames(t, e, depthwise))
	it, err = e.Primitives(depthwise)
	require.NoError(t, err)
	assert.Equal(t, memdesc.FormatGOIHW, it.SrcDesc(1).Format)

	// Grouped convolutions need rank-5 weights.
	badWeights := base
	badWeights.Groups = 2
	_, err = e.Primitives(badWeights)
	require.ErrorContains(t, err, "weights rank")
}

func TestCandidateEnumerationIsStable(t *testing.T) {
	e := newTestEngine(avx2Features)
	tpl := backends.Template{
		Class: backends.OpClassEltwise,
		In:    []memdesc.Desc{memdesc.MakeAny(dtypes.Float32, 2, 16, 8, 8)},
		Out:   []memdesc.Desc{memdesc.MakeAny(dtypes.Float32, 2, 16, 8, 8)},
		Alg:   "relu",
	}
	first := implNames(t, e, tpl)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, implNames(t, e, tpl))
		assert.Equal(t, src0Formats(t, e, tpl), src0Formats(t, e, tpl))
	}
}

func TestReorderRoundTrip(t *testing.T) {
	e := newTestEngine(avx2Features)
	// 19 channels: not a multiple of the block size, so the blocked buffer is padded.
	plain := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 19, 2, 2)
	blocked := memdesc.Make(dtypes.Float32, memdesc.FormatNChw8c, 1, 19, 2, 2)

	src := mustMemoryFromFlat(t, plain, iotaF32(plain.Size()))
	mid := mustMemory(t, blocked)
	toBlocked := backends.Template{
		Class: backends.OpClassReorder,
		In:    []memdesc.Desc{plain},
		Out:   []memdesc.Desc{blocked},
	}
	runPrimitive(t, e, toBlocked, "reorder", argsOf(src, mid))

	midFlat := mid.Flat().([]float32)
	ix := blocked.Indexer()
	// Logical (0,8,1,1) lives at nchw offset 35 and must land in the second block.
	assert.Equal(t, float32(35), midFlat[ix.At([]int{0, 8, 1, 1})])
	// The padded tail of the last channel block stays zero.
	assert.Equal(t, float32(0), midFlat[blocked.PaddedSize()-1])

	back := mustMemory(t, plain)
	toPlain := backends.Template{
		Class: backends.OpClassReorder,
		In:    []memdesc.Desc{blocked},
		Out:   []memdesc.Desc{plain},
	}
	runPrimitive(t, e, toPlain, "reorder", argsOf(mid, back))
	assert.Equal(t, src.Flat(), back.Flat())
}

func TestConvert(t *testing.T) {
	e := newTestEngine(portableFeatures)

	t.Run("float32-to-bfloat16", func(t *testing.T) {
		in := []float32{1, -2, 0.5, 3.25, -0.75, 2}
		srcDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3)
		dstDesc := memdesc.Make(dtypes.BFloat16, memdesc.FormatNC, 2, 3)
		src := mustMemoryFromFlat(t, srcDesc, in)
		dst := mustMemory(t, dstDesc)
		tpl := backends.Template{
			Class: backends.OpClassConvert,
			In:    []memdesc.Desc{srcDesc},
			Out:   []memdesc.Desc{dstDesc},
		}
		runPrimitive(t, e, tpl, "ref_any", argsOf(src, dst))
		want := make([]bfloat16.BFloat16, len(in))
		for i, v := range in {
			want[i] = bfloat16.FromFloat32(v)
		}
		assert.Equal(t, want, dst.Flat())
	})

	t.Run("float32-to-int8-saturates", func(t *testing.T) {
		in := []float32{300, -300, 1.5, 2.5, -0.49, 100}
		srcDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3)
		dstDesc := memdesc.Make(dtypes.Int8, memdesc.FormatNC, 2, 3)
		src := mustMemoryFromFlat(t, srcDesc, in)
		dst := mustMemory(t, dstDesc)
		tpl := backends.Template{
			Class: backends.OpClassConvert,
			In:    []memdesc.Desc{srcDesc},
			Out:   []memdesc.Desc{dstDesc},
		}
		runPrimitive(t, e, tpl, "ref_any", argsOf(src, dst))
		assert.Equal(t, []int8{127, -128, 2, 2, 0, 100}, dst.Flat())
	})

	t.Run("layout-mismatch-rejected", func(t *testing.T) {
		tpl := backends.Template{
			Class: backends.OpClassConvert,
			In:    []memdesc.Desc{memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 2, 3, 4)},
			Out:   []memdesc.Desc{memdesc.Make(dtypes.BFloat16, memdesc.FormatNHWC, 1, 2, 3, 4)},
		}
		_, err := e.Primitives(tpl)
		require.ErrorContains(t, err, "share the layout")
	})
}

func TestEltwiseAlgorithms(t *testing.T) {
	e := newTestEngine(portableFeatures)
	tests := []struct {
		alg         string
		alpha, beta float32
		in, want    []float32
	}{
		{alg: "relu", in: []float32{-2, -0.5, 0, 3}, want: []float32{0, 0, 0, 3}},
		{alg: "relu", alpha: 0.1, in: []float32{-10, 5}, want: []float32{-1, 5}},
		{alg: "clamp", alpha: -1, beta: 1, in: []float32{-5, 0.5, 3}, want: []float32{-1, 0.5, 1}},
		{alg: "linear", alpha: 2, beta: 1, in: []float32{1, -2}, want: []float32{3, -3}},
		{alg: "abs", in: []float32{-2.5, 3}, want: []float32{2.5, 3}},
		{alg: "sqrt", in: []float32{4, 9}, want: []float32{2, 3}},
		{alg: "round", in: []float32{1.5, 2.5, -0.5, 1.2}, want: []float32{2, 2, 0, 1}},
		{alg: "sigmoid", in: []float32{0, 100}, want: []float32{0.5, 1}},
		{alg: "tanh", in: []float32{0, 1}, want: []float32{0, 0.7615942}},
		{alg: "exp", in: []float32{0, 1}, want: []float32{1, 2.7182817}},
		{alg: "gelu", in: []float32{0, 1}, want: []float32{0, 0.8413447}},
		{alg: "elu", alpha: 1, in: []float32{-1, 2}, want: []float32{-0.63212055, 2}},
		{alg: "hswish", in: []float32{-4, 6, 1}, want: []float32{0, 6, 0.6666667}},
		{alg: "hsigmoid", in: []float32{-4, 0, 6}, want: []float32{0, 0.5, 1}},
		{alg: "swish", alpha: 1, in: []float32{1}, want: []float32{0.7310586}},
		{alg: "mish", in: []float32{0, 1}, want: []float32{0, 0.8650984}},
		{alg: "erf", in: []float32{0, 1}, want: []float32{0, 0.8427008}},
		{alg: "pow", alpha: 2, beta: 3, in: []float32{2}, want: []float32{12}},
		{alg: "not", in: []float32{0, 2.5, -1}, want: []float32{1, 0, 0}},
	}
	for _, test := range tests {
		t.Run(test.alg, func(t *testing.T) {
			desc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 1, len(test.in))
			src := mustMemoryFromFlat(t, desc, test.in)
			dst := mustMemory(t, desc)
			tpl := backends.Template{
				Class: backends.OpClassEltwise,
				In:    []memdesc.Desc{desc},
				Out:   []memdesc.Desc{desc},
				Alg:   test.alg, Alpha: test.alpha, Beta: test.beta,
			}
			runPrimitive(t, e, tpl, "ref_any", argsOf(src, dst))
			got := dst.Flat().([]float32)
			require.Len(t, got, len(test.want))
			for i := range test.want {
				assert.InDelta(t, test.want[i], got[i], 1e-6, "element %d", i)
			}
		})
	}
}

func TestEltwiseUnknownAlgorithm(t *testing.T) {
	e := newTestEngine(portableFeatures)
	desc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 1, 2)
	tpl := backends.Template{
		Class: backends.OpClassEltwise,
		In:    []memdesc.Desc{desc},
		Out:   []memdesc.Desc{desc},
		Alg:   "frobnicate",
	}
	it, err := e.Primitives(tpl)
	require.NoError(t, err)
	require.True(t, it.Ok())
	_, err = it.Instantiate()
	require.ErrorContains(t, err, "unknown eltwise algorithm")
}

func TestEltwiseFmod(t *testing.T) {
	e := newTestEngine(portableFeatures)
	desc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 1, 4)
	src := mustMemoryFromFlat(t, desc, []float32{7, -7, 7.5, 3})
	src2 := mustMemoryFromFlat(t, desc, []float32{3, 3, 2, -2})
	dst := mustMemory(t, desc)
	tpl := backends.Template{
		Class: backends.OpClassEltwise,
		In:    []memdesc.Desc{desc, desc},
		Out:   []memdesc.Desc{desc},
		Alg:   "fmod",
	}
	args := argsOf(src, dst)
	args[backends.ArgAt(backends.ArgSrc, 1)] = src2
	runPrimitive(t, e, tpl, "ref_any", args)
	assert.Equal(t, []float32{1, -1, 1.5, 1}, dst.Flat())
}

func TestEltwiseBlockedMatchesPlain(t *testing.T) {
	e := newTestEngine(avx2Features)
	plain := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 19, 2, 2)
	blocked := memdesc.Make(dtypes.Float32, memdesc.FormatNChw8c, 1, 19, 2, 2)
	values := make([]float32, plain.Size())
	for i := range values {
		values[i] = float32(i%5) - 2
	}

	// Reference result over the plain layout.
	src := mustMemoryFromFlat(t, plain, values)
	want := mustMemory(t, plain)
	reluTpl := func(desc memdesc.Desc) backends.Template {
		return backends.Template{
			Class: backends.OpClassEltwise,
			In:    []memdesc.Desc{desc},
			Out:   []memdesc.Desc{desc},
			Alg:   "relu",
		}
	}
	runPrimitive(t, e, reluTpl(plain), "ref_any", argsOf(src, want))

	// Same computation through the blocked layout.
	blockedSrc := mustMemory(t, blocked)
	runPrimitive(t, e, backends.Template{
		Class: backends.OpClassReorder,
		In:    []memdesc.Desc{plain},
		Out:   []memdesc.Desc{blocked},
	}, "reorder", argsOf(src, blockedSrc))
	blockedDst := mustMemory(t, blocked)
	runPrimitive(t, e, reluTpl(blocked), "jit_avx2", argsOf(blockedSrc, blockedDst))
	got := mustMemory(t, plain)
	runPrimitive(t, e, backends.Template{
		Class: backends.OpClassReorder,
		In:    []memdesc.Desc{blocked},
		Out:   []memdesc.Desc{plain},
	}, "reorder", argsOf(blockedDst, got))

	assert.Equal(t, want.Flat(), got.Flat())
}

func TestInnerProduct(t *testing.T) {
	t.Run("small-with-bias", func(t *testing.T) {
		srcDesc := memdesc.MakeAny(dtypes.Float32, 2, 3)
		wDesc := memdesc.MakeAny(dtypes.Float32, 2, 3)
		bDesc := memdesc.MakeAny(dtypes.Float32, 2)
		dstDesc := memdesc.MakeAny(dtypes.Float32, 2, 2)
		tpl := backends.Template{
			Class: backends.OpClassInnerProduct,
			In:    []memdesc.Desc{srcDesc, wDesc, bDesc},
			Out:   []memdesc.Desc{dstDesc},
		}
		for _, engine := range []*Engine{newTestEngine(portableFeatures), newTestEngine(avx2Features)} {
			impls := implNames(t, engine, tpl)
			src := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3),
				[]float32{1, 2, 3, 4, 5, 6})
			weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3),
				[]float32{1, 1, 1, 2, 0, -1})
			bias := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatX, 2),
				[]float32{10, 20})
			dst := mustMemory(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 2))
			args := argsOf(src, dst)
			args[backends.Arg(backends.ArgWeights)] = weights
			args[backends.Arg(backends.ArgBias)] = bias
			runPrimitive(t, engine, tpl, impls[0], args)
			assert.Equal(t, []float32{16, 19, 25, 22}, dst.Flat())
		}
	})

	t.Run("wide-output-tiling", func(t *testing.T) {
		e := newTestEngine(portableFeatures)
		const n, k, m = 3, 5, 9
		srcVals := make([]float32, n*k)
		for i := range srcVals {
			srcVals[i] = float32(i%7) - 3
		}
		wVals := make([]float32, m*k)
		for i := range wVals {
			wVals[i] = float32(i%4) - 1
		}
		want := make([]float32, n*m)
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				var acc float32
				for kk := 0; kk < k; kk++ {
					acc += srcVals[i*k+kk] * wVals[j*k+kk]
				}
				want[i*m+j] = acc
			}
		}

		src := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, n, k), srcVals)
		weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, m, k), wVals)
		dst := mustMemory(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, n, m))
		tpl := backends.Template{
			Class: backends.OpClassInnerProduct,
			In:    []memdesc.Desc{src.Desc(), weights.Desc()},
			Out:   []memdesc.Desc{dst.Desc()},
		}
		args := argsOf(src, dst)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, e, tpl, "ref_any", args)
		assert.InDeltaSlice(t, want, dst.Flat().([]float32), 1e-4)
	})

	t.Run("rank-4-input-folds", func(t *testing.T) {
		e := newTestEngine(portableFeatures)
		srcDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 2, 2, 1, 2)
		src := mustMemoryFromFlat(t, srcDesc, iotaF32(8))
		weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, 3, 4),
			[]float32{1, 0, 0, 0, 0, 1, 0, 0, 1, 1, 1, 1})
		dst := mustMemory(t, memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3))
		tpl := backends.Template{
			Class: backends.OpClassInnerProduct,
			In:    []memdesc.Desc{srcDesc, weights.Desc()},
			Out:   []memdesc.Desc{dst.Desc()},
		}
		args := argsOf(src, dst)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, e, tpl, "ref_any", args)
		assert.Equal(t, []float32{0, 1, 6, 4, 5, 22}, dst.Flat())
	})

	t.Run("int32-reference-path", func(t *testing.T) {
		e := newTestEngine(portableFeatures)
		srcDesc := memdesc.Make(dtypes.Int32, memdesc.FormatNC, 2, 2)
		src := mustMemoryFromFlat(t, srcDesc, []int32{1, 2, 3, 4})
		weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Int32, memdesc.FormatNC, 2, 2),
			[]int32{1, 0, 0, 1})
		dst := mustMemory(t, srcDesc)
		tpl := backends.Template{
			Class: backends.OpClassInnerProduct,
			In:    []memdesc.Desc{srcDesc, weights.Desc()},
			Out:   []memdesc.Desc{srcDesc},
		}
		args := argsOf(src, dst)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, e, tpl, "ref_any", args)
		assert.Equal(t, []int32{1, 2, 3, 4}, dst.Flat())
	})
}

func TestConvolution(t *testing.T) {
	e := newTestEngine(portableFeatures)

	t.Run("3x3-sum-filter-with-padding", func(t *testing.T) {
		srcDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 1, 3, 3)
		src := mustMemoryFromFlat(t, srcDesc, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
		weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatOIHW, 1, 1, 3, 3),
			[]float32{1, 1, 1, 1, 1, 1, 1, 1, 1})
		bias := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatX, 1),
			[]float32{0.5})
		dst := mustMemory(t, srcDesc)
		tpl := backends.Template{
			Class:   backends.OpClassConvolution,
			In:      []memdesc.Desc{srcDesc, weights.Desc(), bias.Desc()},
			Out:     []memdesc.Desc{srcDesc},
			Kernel:  []int{3, 3},
			Strides: []int{1, 1},
			Padding: []int{1, 1},
		}
		args := argsOf(src, dst)
		args[backends.Arg(backends.ArgWeights)] = weights
		args[backends.Arg(backends.ArgBias)] = bias
		runPrimitive(t, e, tpl, "ref_any", args)
		assert.Equal(t, []float32{12.5, 21.5, 16.5, 27.5, 45.5, 33.5, 24.5, 39.5, 28.5}, dst.Flat())
	})

	t.Run("strided-no-padding", func(t *testing.T) {
		srcDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 1, 4, 4)
		src := mustMemoryFromFlat(t, srcDesc, iotaF32(16))
		weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatOIHW, 1, 1, 2, 2),
			[]float32{1, 1, 1, 1})
		dstDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 1, 2, 2)
		dst := mustMemory(t, dstDesc)
		tpl := backends.Template{
			Class:   backends.OpClassConvolution,
			In:      []memdesc.Desc{srcDesc, weights.Desc()},
			Out:     []memdesc.Desc{dstDesc},
			Kernel:  []int{2, 2},
			Strides: []int{2, 2},
			Padding: []int{0, 0},
		}
		args := argsOf(src, dst)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, e, tpl, "ref_any", args)
		assert.Equal(t, []float32{10, 18, 42, 50}, dst.Flat())
	})

	t.Run("depthwise-scales-channels", func(t *testing.T) {
		srcDesc := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 1, 2, 2, 2)
		src := mustMemoryFromFlat(t, srcDesc, []float32{1, 2, 3, 4, 5, 6, 7, 8})
		weights := mustMemoryFromFlat(t, memdesc.Make(dtypes.Float32, memdesc.FormatGOIHW, 2, 1, 1, 1, 1),
			[]float32{2, 3})
		dst := mustMemory(t, srcDesc)
		tpl := backends.Template{
			Class:   backends.OpClassConvolution,
			In:      []memdesc.Desc{srcDesc, weights.Desc()},
			Out:     []memdesc.Desc{srcDesc},
			Groups:  2,
			Kernel:  []int{1, 1},
			Strides: []int{1, 1},
			Padding: []int{0, 0},
		}
		args := argsOf(src, dst)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, e, tpl, "ref_any", args)
		assert.Equal(t, []float32{2, 4, 6, 8, 15, 18, 21, 24}, dst.Flat())
	})

	t.Run("blocked-matches-plain", func(t *testing.T) {
		avx2 := newTestEngine(avx2Features)
		srcPlain := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 2, 8, 3, 3)
		dstPlain := memdesc.Make(dtypes.Float32, memdesc.FormatNCHW, 2, 4, 3, 3)
		srcBlocked := memdesc.Make(dtypes.Float32, memdesc.FormatNChw8c, 2, 8, 3, 3)
		dstBlocked := memdesc.Make(dtypes.Float32, memdesc.FormatNChw8c, 2, 4, 3, 3)
		wDesc := memdesc.Make(dtypes.Float32, memdesc.FormatOIHW, 4, 8, 3, 3)

		srcVals := make([]float32, srcPlain.Size())
		for i := range srcVals {
			srcVals[i] = float32(i%7) - 3
		}
		wVals := make([]float32, wDesc.Size())
		for i := range wVals {
			wVals[i] = float32(i%5) - 2
		}
		src := mustMemoryFromFlat(t, srcPlain, srcVals)
		weights := mustMemoryFromFlat(t, wDesc, wVals)
		convTpl := func(src, dst memdesc.Desc) backends.Template {
			return backends.Template{
				Class:   backends.OpClassConvolution,
				In:      []memdesc.Desc{src, wDesc},
				Out:     []memdesc.Desc{dst},
				Kernel:  []int{3, 3},
				Strides: []int{1, 1},
				Padding: []int{1, 1},
			}
		}

		want := mustMemory(t, dstPlain)
		args := argsOf(src, want)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, avx2, convTpl(srcPlain, dstPlain), "ref_any", args)

		blockedSrc := mustMemory(t, srcBlocked)
		runPrimitive(t, avx2, backends.Template{
			Class: backends.OpClassReorder,
			In:    []memdesc.Desc{srcPlain},
			Out:   []memdesc.Desc{srcBlocked},
		}, "reorder", argsOf(src, blockedSrc))
		blockedDst := mustMemory(t, dstBlocked)
		args = argsOf(blockedSrc, blockedDst)
		args[backends.Arg(backends.ArgWeights)] = weights
		runPrimitive(t, avx2, convTpl(srcBlocked, dstBlocked), "jit_avx2", args)
		got := mustMemory(t, dstPlain)
		runPrimitive(t, avx2, backends.Template{
			Class: backends.OpClassReorder,
			In:    []memdesc.Desc{dstBlocked},
			Out:   []memdesc.Desc{dstPlain},
		}, "reorder", argsOf(blockedDst, got))

		assert.InDeltaSlice(t, want.Flat().([]float32), got.Flat().([]float32), 1e-4)
	})
}

// Resized argument views shrink the work without rebuilding the primitive.
func TestDynamicBatchView(t *testing.T) {
	e := newTestEngine(portableFeatures)
	full := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 4, 3)
	view := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 2, 3)

	srcFull := mustMemoryFromFlat(t, full, iotaF32(12))
	dstFull := mustMemory(t, full)
	srcView, err := srcFull.WithDesc(view)
	require.NoError(t, err)
	dstView, err := dstFull.WithDesc(view)
	require.NoError(t, err)

	tpl := backends.Template{
		Class: backends.OpClassEltwise,
		In:    []memdesc.Desc{view},
		Out:   []memdesc.Desc{view},
		Alg:   "linear", Alpha: 2,
	}
	runPrimitive(t, e, tpl, "ref_any", argsOf(srcView, dstView))
	assert.Equal(t, []float32{0, 2, 4, 6, 8, 10, 0, 0, 0, 0, 0, 0}, dstFull.Flat())
}

func TestPrimitiveArgumentChecks(t *testing.T) {
	e := newTestEngine(portableFeatures)
	desc := memdesc.Make(dtypes.Float32, memdesc.FormatNC, 1, 2)
	tpl := backends.Template{
		Class: backends.OpClassEltwise,
		In:    []memdesc.Desc{desc},
		Out:   []memdesc.Desc{desc},
		Alg:   "relu",
	}
	it, err := e.Primitives(tpl)
	require.NoError(t, err)
	prim, err := it.Instantiate()
	require.NoError(t, err)

	err = prim.Execute(e.NewStream(), backends.Args{})
	require.ErrorContains(t, err, "needs Src and Dst")

	other := newTestEngine(portableFeatures)
	src := mustMemoryFromFlat(t, desc, []float32{1, -1})
	dst := mustMemory(t, desc)
	err = prim.Execute(other.NewStream(), argsOf(src, dst))
	require.ErrorContains(t, err, "different engine")
}

func TestEltwiseFmodMatchesMathMod(t *testing.T) {
	got := eltwiseBinaryAlg("fmod")
	require.NotNil(t, got)
	for _, pair := range [][2]float64{{7, 3}, {-7, 3}, {7.5, 2}, {3, -2}} {
		assert.InDelta(t, math.Mod(pair[0], pair[1]), float64(got(float32(pair[0]), float32(pair[1]))), 1e-6)
	}
	assert.Nil(t, eltwiseBinaryAlg("relu"))
}
