// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"math"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// kernelFunc is one bound kernel invocation: arguments in, error out. The layouts come
// from each argument's current descriptor, so dynamic-batch views work unchanged.
type kernelFunc func(args backends.Args) error

// loadF32 reads element i of a flat slice as float32, whatever the element type.
// Bool reads as 0/1. The reference kernels do all math in float32.
func loadF32(flat any, i int) float32 {
	switch s := flat.(type) {
	case []float32:
		return s[i]
	case []float16.Float16:
		return s[i].Float32()
	case []bfloat16.BFloat16:
		return s[i].Float32()
	case []int32:
		return float32(s[i])
	case []int8:
		return float32(s[i])
	case []uint8:
		return float32(s[i])
	case []bool:
		if s[i] {
			return 1
		}
		return 0
	}
	panic(errors.Errorf("cpu engine: unsupported element type %T", flat))
}

// storeF32 writes element i of a flat slice from float32, rounding to nearest-even and
// saturating for the integer types. Bool stores v != 0.
func storeF32(flat any, i int, v float32) {
	switch s := flat.(type) {
	case []float32:
		s[i] = v
	case []float16.Float16:
		s[i] = float16.Fromfloat32(v)
	case []bfloat16.BFloat16:
		s[i] = bfloat16.FromFloat32(v)
	case []int32:
		s[i] = int32(clampRound(v, math.MinInt32, math.MaxInt32))
	case []int8:
		s[i] = int8(clampRound(v, math.MinInt8, math.MaxInt8))
	case []uint8:
		s[i] = uint8(clampRound(v, 0, math.MaxUint8))
	case []bool:
		s[i] = v != 0
	default:
		panic(errors.Errorf("cpu engine: unsupported element type %T", flat))
	}
}

func clampRound(v float32, lo, hi float64) float64 {
	r := math.RoundToEven(float64(v))
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}

// forEachIndex walks all logical indices of dims with idx[0] restricted to
// [start, end), reusing one index slice. fn must not retain idx.
func forEachIndex(dims []int, start, end int, fn func(idx []int)) {
	if len(dims) == 0 {
		if start == 0 {
			fn(nil)
		}
		return
	}
	idx := make([]int, len(dims))
	idx[0] = start
	for idx[0] < end {
		fn(idx)
		// Odometer step over the axes after the first.
		ax := len(dims) - 1
		for ; ax > 0; ax-- {
			idx[ax]++
			if idx[ax] < dims[ax] {
				break
			}
			idx[ax] = 0
		}
		if ax == 0 {
			idx[0]++
		}
	}
}

// parallelIndexWalk splits the walk over the outermost axis across the pool.
func (e *Engine) parallelIndexWalk(dims []int, fn func(idx []int)) {
	if len(dims) == 0 {
		fn(nil)
		return
	}
	size := 1
	for _, d := range dims {
		size *= d
	}
	if size < 4096 || dims[0] == 1 {
		forEachIndex(dims, 0, dims[0], fn)
		return
	}
	e.pool.For(dims[0], func(start, end int) {
		forEachIndex(dims, start, end, fn)
	})
}

// reorderKernel copies src into dst element by element through both indexers. It
// handles any layout pair and converts the element type on the way when they differ.
func (e *Engine) reorderKernel() kernelFunc {
	return func(args backends.Args) error {
		src, dst, err := srcDstArgs(args)
		if err != nil {
			return err
		}
		srcDesc, dstDesc := src.Desc(), dst.Desc()
		srcIx, dstIx := srcDesc.Indexer(), dstDesc.Indexer()
		srcFlat, dstFlat := src.Flat(), dst.Flat()

		// Same layout and element type: one flat copy.
		if srcDesc.DType == dstDesc.DType && srcDesc.SamePartialLayout(dstDesc) {
			return dst.CopyFrom(src)
		}
		if sf, ok := srcFlat.([]float32); ok {
			if df, ok := dstFlat.([]float32); ok {
				e.parallelIndexWalk(srcDesc.Dims, func(idx []int) {
					df[dstIx.At(idx)] = sf[srcIx.At(idx)]
				})
				return nil
			}
		}
		e.parallelIndexWalk(srcDesc.Dims, func(idx []int) {
			storeF32(dstFlat, dstIx.At(idx), loadF32(srcFlat, srcIx.At(idx)))
		})
		return nil
	}
}

// convertKernel casts between element types over identical layouts.
func (e *Engine) convertKernel() kernelFunc {
	return func(args backends.Args) error {
		src, dst, err := srcDstArgs(args)
		if err != nil {
			return err
		}
		srcFlat, dstFlat := src.Flat(), dst.Flat()
		n := src.Desc().PaddedSize()
		e.pool.For(n, func(start, end int) {
			for i := start; i < end; i++ {
				storeF32(dstFlat, i, loadF32(srcFlat, i))
			}
		})
		return nil
	}
}

func srcDstArgs(args backends.Args) (src, dst *backends.Memory, err error) {
	src = args[backends.Arg(backends.ArgSrc)]
	dst = args[backends.Arg(backends.ArgDst)]
	if src == nil || dst == nil {
		return nil, nil, errors.Errorf("cpu engine: primitive needs Src and Dst arguments, got %v", args)
	}
	return src, dst, nil
}

// eltwiseAlg returns the pointwise function for an algorithm name. Unknown names are an
// error at primitive build time, not at execution.
func eltwiseAlg(alg string, alpha, beta float32) (func(x float32) float32, error) {
	switch alg {
	case "relu":
		return func(x float32) float32 {
			if x >= 0 {
				return x
			}
			return alpha * x
		}, nil
	case "gelu":
		return func(x float32) float32 {
			return float32(0.5 * float64(x) * (1 + math.Erf(float64(x)/math.Sqrt2)))
		}, nil
	case "elu":
		return func(x float32) float32 {
			if x >= 0 {
				return x
			}
			return alpha * float32(math.Expm1(float64(x)))
		}, nil
	case "sigmoid":
		return func(x float32) float32 {
			return float32(1 / (1 + math.Exp(-float64(x))))
		}, nil
	case "tanh":
		return func(x float32) float32 { return float32(math.Tanh(float64(x))) }, nil
	case "clamp":
		return func(x float32) float32 { return min(max(x, alpha), beta) }, nil
	case "swish":
		return func(x float32) float32 {
			return x * float32(1/(1+math.Exp(-float64(alpha*x))))
		}, nil
	case "hswish":
		return func(x float32) float32 { return x * min(max(x+3, 0), 6) / 6 }, nil
	case "hsigmoid":
		return func(x float32) float32 { return min(max(x+3, 0), 6) / 6 }, nil
	case "mish":
		return func(x float32) float32 {
			return x * float32(math.Tanh(math.Log1p(math.Exp(float64(x)))))
		}, nil
	case "round":
		return func(x float32) float32 { return float32(math.RoundToEven(float64(x))) }, nil
	case "exp":
		return func(x float32) float32 { return float32(math.Exp(float64(x))) }, nil
	case "sqrt":
		return func(x float32) float32 { return float32(math.Sqrt(float64(x))) }, nil
	case "abs":
		return func(x float32) float32 { return float32(math.Abs(float64(x))) }, nil
	case "erf":
		return func(x float32) float32 { return float32(math.Erf(float64(x))) }, nil
	case "linear":
		return func(x float32) float32 { return alpha*x + beta }, nil
	case "pow":
		return func(x float32) float32 {
			return beta * float32(math.Pow(float64(x), float64(alpha)))
		}, nil
	case "not":
		return func(x float32) float32 {
			if x == 0 {
				return 1
			}
			return 0
		}, nil
	}
	return nil, errors.Errorf("cpu engine: unknown eltwise algorithm %q", alg)
}

// eltwiseBinaryAlg returns the two-operand pointwise function for an algorithm name, or
// nil when the algorithm is unary.
func eltwiseBinaryAlg(alg string) func(x, y float32) float32 {
	switch alg {
	case "fmod":
		return func(x, y float32) float32 { return float32(math.Mod(float64(x), float64(y))) }
	}
	return nil
}

// eltwiseKernel applies the pointwise function. Layouts of all ports are identical by
// candidate construction, so for front-contiguous views it runs over flat storage,
// including the block padding, which is harmless for pointwise math.
func (e *Engine) eltwiseKernel(alg string, alpha, beta float32) (kernelFunc, error) {
	if binary := eltwiseBinaryAlg(alg); binary != nil {
		return func(args backends.Args) error {
			src, dst, err := srcDstArgs(args)
			if err != nil {
				return err
			}
			src2 := args[backends.ArgAt(backends.ArgSrc, 1)]
			if src2 == nil {
				return errors.Errorf("cpu engine: eltwise %q needs a second Src argument", alg)
			}
			sf, s2f, df := src.Flat(), src2.Flat(), dst.Flat()
			e.eltwiseWalk(src, dst, func(srcOff, dstOff int) {
				storeF32(df, dstOff, binary(loadF32(sf, srcOff), loadF32(s2f, srcOff)))
			})
			return nil
		}, nil
	}

	unary, err := eltwiseAlg(alg, alpha, beta)
	if err != nil {
		return nil, err
	}
	return func(args backends.Args) error {
		src, dst, err := srcDstArgs(args)
		if err != nil {
			return err
		}
		if sf, ok := src.Flat().([]float32); ok {
			if df, ok := dst.Flat().([]float32); ok {
				e.eltwiseWalk(src, dst, func(srcOff, dstOff int) {
					df[dstOff] = unary(sf[srcOff])
				})
				return nil
			}
		}
		sf, df := src.Flat(), dst.Flat()
		e.eltwiseWalk(src, dst, func(srcOff, dstOff int) {
			storeF32(df, dstOff, unary(loadF32(sf, srcOff)))
		})
		return nil
	}, nil
}

// eltwiseWalk visits every element of src/dst, which share dims and layout. It walks
// flat storage when the view covers a contiguous front of it and falls back to a
// logical walk for shrunk views whose outermost memory axis is not the batch.
func (e *Engine) eltwiseWalk(src, dst *backends.Memory, fn func(srcOff, dstOff int)) {
	desc := src.Desc()
	n := desc.PaddedSize()
	order := desc.Blocking.Order
	flatOK := len(order) == 0 || order[0] == 0
	if flatOK {
		e.pool.For(n, func(start, end int) {
			for i := start; i < end; i++ {
				fn(i, i)
			}
		})
		return
	}
	srcIx, dstIx := desc.Indexer(), dst.Desc().Indexer()
	e.parallelIndexWalk(desc.Dims, func(idx []int) {
		fn(srcIx.At(idx), dstIx.At(idx))
	})
}

// convKernel is the direct convolution: it addresses every port through its indexer, so
// the same loop serves the planar and the channel-blocked candidates.
func (e *Engine) convKernel(tpl backends.Template) (kernelFunc, error) {
	if len(tpl.Kernel) != 2 || len(tpl.Strides) != 2 || len(tpl.Padding) != 2 {
		return nil, errors.Errorf("cpu engine: convolution needs 2D kernel/strides/padding, got %v/%v/%v",
			tpl.Kernel, tpl.Strides, tpl.Padding)
	}
	groups := max(tpl.Groups, 1)
	return func(args backends.Args) error {
		src, dst, err := srcDstArgs(args)
		if err != nil {
			return err
		}
		weights := args[backends.Arg(backends.ArgWeights)]
		if weights == nil {
			return errors.Errorf("cpu engine: convolution needs a Weights argument")
		}
		bias := args[backends.Arg(backends.ArgBias)]

		srcDesc, dstDesc, wDesc := src.Desc(), dst.Desc(), weights.Desc()
		batch, inC, inH, inW := srcDesc.Dims[0], srcDesc.Dims[1], srcDesc.Dims[2], srcDesc.Dims[3]
		outC, outH, outW := dstDesc.Dims[1], dstDesc.Dims[2], dstDesc.Dims[3]
		kh, kw := tpl.Kernel[0], tpl.Kernel[1]
		sh, sw := tpl.Strides[0], tpl.Strides[1]
		ph, pw := tpl.Padding[0], tpl.Padding[1]
		icPerGroup, ocPerGroup := inC/groups, outC/groups

		srcIx, dstIx, wIx := srcDesc.Indexer(), dstDesc.Indexer(), wDesc.Indexer()
		srcFlat, dstFlat, wFlat := src.Flat(), dst.Flat(), weights.Flat()
		var biasFlat any
		if bias != nil {
			biasFlat = bias.Flat()
		}

		// Weights are [OC, IC/g, KH, KW], or [G, OC/g, IC/g, KH, KW] when grouped.
		wIdx := func(g, oc, ic, y, x int, buf []int) []int {
			if wDesc.Rank() == 5 {
				buf = append(buf[:0], g, oc, ic, y, x)
			} else {
				buf = append(buf[:0], g*ocPerGroup+oc, ic, y, x)
			}
			return buf
		}

		e.pool.For(batch*outC, func(start, end int) {
			srcIdx := make([]int, 4)
			dstIdx := make([]int, 4)
			wBuf := make([]int, 0, 5)
			for no := start; no < end; no++ {
				n, oc := no/outC, no%outC
				g, ocg := oc/ocPerGroup, oc%ocPerGroup
				for oh := 0; oh < outH; oh++ {
					for ow := 0; ow < outW; ow++ {
						var acc float32
						if biasFlat != nil {
							acc = loadF32(biasFlat, oc)
						}
						for ic := 0; ic < icPerGroup; ic++ {
							for ky := 0; ky < kh; ky++ {
								ih := oh*sh - ph + ky
								if ih < 0 || ih >= inH {
									continue
								}
								for kx := 0; kx < kw; kx++ {
									iw := ow*sw - pw + kx
									if iw < 0 || iw >= inW {
										continue
									}
									srcIdx[0], srcIdx[1], srcIdx[2], srcIdx[3] = n, g*icPerGroup+ic, ih, iw
									wBuf = wIdx(g, ocg, ic, ky, kx, wBuf)
									acc += loadF32(srcFlat, srcIx.At(srcIdx)) *
										loadF32(wFlat, wIx.At(wBuf))
								}
							}
						}
						dstIdx[0], dstIdx[1], dstIdx[2], dstIdx[3] = n, oc, oh, ow
						storeF32(dstFlat, dstIx.At(dstIdx), acc)
					}
				}
			}
		})
		return nil
	}, nil
}
