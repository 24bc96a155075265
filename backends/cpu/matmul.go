// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import (
	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Kernel registration priorities: a higher priority wins the slot. Portable kernels
// register at priorityPortable in their package init; architecture-tuned variants
// override them at priorityArch from build-tagged files.
const (
	priorityPortable = iota
	priorityArch
)

// matmulFunc computes dst[n,m] = sum_k src[n,k] * weights[m,k] (+ bias[m]) over dense
// row-major float32 slices. bias may be nil.
type matmulFunc func(e *Engine, src, weights, bias, dst []float32, n, k, m int)

// matmulRegistry keeps the best registered kernel per dtype.
type matmulRegistry struct {
	impls map[dtypes.DType]matmulEntry
}

type matmulEntry struct {
	priority int
	fn       matmulFunc
}

func (r *matmulRegistry) Register(dtype dtypes.DType, priority int, fn matmulFunc) {
	if current, found := r.impls[dtype]; found && current.priority >= priority {
		return
	}
	r.impls[dtype] = matmulEntry{priority: priority, fn: fn}
}

func (r *matmulRegistry) Get(dtype dtypes.DType) matmulFunc {
	return r.impls[dtype].fn
}

var matmulKernels = &matmulRegistry{impls: make(map[dtypes.DType]matmulEntry)}

func init() {
	matmulKernels.Register(dtypes.Float32, priorityPortable, matmulFloat32)
}

// matmulFloat32 is the portable tiled kernel: 4 output columns share one pass over the
// src row, and both operands stream contiguously over k.
func matmulFloat32(e *Engine, src, weights, bias, dst []float32, n, k, m int) {
	e.pool.For(n, func(start, end int) {
		for i := start; i < end; i++ {
			srcRow := src[i*k : (i+1)*k]
			dstRow := dst[i*m : (i+1)*m]
			j := 0
			for ; j+4 <= m; j += 4 {
				w0 := weights[j*k : (j+1)*k]
				w1 := weights[(j+1)*k : (j+2)*k]
				w2 := weights[(j+2)*k : (j+3)*k]
				w3 := weights[(j+3)*k : (j+4)*k]
				var acc0, acc1, acc2, acc3 float32
				for kk, s := range srcRow {
					acc0 += s * w0[kk]
					acc1 += s * w1[kk]
					acc2 += s * w2[kk]
					acc3 += s * w3[kk]
				}
				dstRow[j], dstRow[j+1], dstRow[j+2], dstRow[j+3] = acc0, acc1, acc2, acc3
			}
			for ; j < m; j++ {
				wRow := weights[j*k : (j+1)*k]
				var acc float32
				for kk, s := range srcRow {
					acc += s * wRow[kk]
				}
				dstRow[j] = acc
			}
			if bias != nil {
				for j := range dstRow {
					dstRow[j] += bias[j]
				}
			}
		}
	})
}

// matmulGeneric is the reference path for the non-float32 element types: all math in
// float32 through the element accessors.
func matmulGeneric(e *Engine, src, weights, bias, dst *backends.Memory, n, k, m int) {
	srcFlat, wFlat, dstFlat := src.Flat(), weights.Flat(), dst.Flat()
	var biasFlat any
	if bias != nil {
		biasFlat = bias.Flat()
	}
	e.pool.For(n, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < m; j++ {
				var acc float32
				for kk := 0; kk < k; kk++ {
					acc += loadF32(srcFlat, i*k+kk) * loadF32(wFlat, j*k+kk)
				}
				if biasFlat != nil {
					acc += loadF32(biasFlat, j)
				}
				storeF32(dstFlat, i*m+j, acc)
			}
		}
	})
}

// innerProductKernel binds a fully-connected execution: src of any rank folds to
// [batch, inFeatures], weights are [outFeatures, inFeatures], dst [batch, outFeatures].
// Dimensions are read from the argument descriptors at call time, so a dynamic batch
// limit shrinks the work transparently.
func (e *Engine) innerProductKernel() kernelFunc {
	return func(args backends.Args) error {
		src, dst, err := srcDstArgs(args)
		if err != nil {
			return err
		}
		weights := args[backends.Arg(backends.ArgWeights)]
		if weights == nil {
			return errors.Errorf("cpu engine: inner product needs a Weights argument")
		}
		bias := args[backends.Arg(backends.ArgBias)]

		n := src.Desc().Dims[0]
		k := src.Desc().Size() / n
		m := dst.Desc().Dims[1]
		if wDims := weights.Desc().Dims; len(wDims) != 2 || wDims[0] != m || wDims[1] != k {
			return errors.Errorf("cpu engine: inner product weights %v do not match src %v x dst %v",
				wDims, src.Desc().Dims, dst.Desc().Dims)
		}

		if fn := matmulKernels.Get(src.Desc().DType); fn != nil {
			srcFlat, okS := src.Flat().([]float32)
			wFlat, okW := weights.Flat().([]float32)
			dstFlat, okD := dst.Flat().([]float32)
			var biasFlat []float32
			okB := true
			if bias != nil {
				biasFlat, okB = bias.Flat().([]float32)
			}
			if okS && okW && okD && okB {
				fn(e, srcFlat, wFlat, biasFlat, dstFlat, n, k, m)
				return nil
			}
		}
		matmulGeneric(e, src, weights, bias, dst, n, k, m)
		return nil
	}
}
