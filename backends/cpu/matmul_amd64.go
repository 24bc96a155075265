// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build amd64

package cpu

import "github.com/gomlx/gopjrt/dtypes"

func init() {
	if DetectFeatures().AVX2 {
		matmulKernels.Register(dtypes.Float32, priorityArch, matmulFloat32Wide)
	}
}

// matmulFloat32Wide widens the portable kernel for machines with 256-bit vector units:
// 8 output columns per pass and a 4-way unrolled reduction, which the compiler turns
// into fused multiply-add chains.
func matmulFloat32Wide(e *Engine, src, weights, bias, dst []float32, n, k, m int) {
	e.pool.For(n, func(start, end int) {
		var acc [8]float32
		for i := start; i < end; i++ {
			srcRow := src[i*k : (i+1)*k]
			dstRow := dst[i*m : (i+1)*m]
			j := 0
			for ; j+8 <= m; j += 8 {
				for a := range acc {
					acc[a] = 0
				}
				for a := 0; a < 8; a++ {
					wRow := weights[(j+a)*k : (j+a+1)*k]
					var a0, a1, a2, a3 float32
					kk := 0
					for ; kk+4 <= k; kk += 4 {
						a0 += srcRow[kk] * wRow[kk]
						a1 += srcRow[kk+1] * wRow[kk+1]
						a2 += srcRow[kk+2] * wRow[kk+2]
						a3 += srcRow[kk+3] * wRow[kk+3]
					}
					for ; kk < k; kk++ {
						a0 += srcRow[kk] * wRow[kk]
					}
					acc[a] = a0 + a1 + a2 + a3
				}
				copy(dstRow[j:j+8], acc[:])
			}
			for ; j < m; j++ {
				wRow := weights[j*k : (j+1)*k]
				var a0 float32
				for kk, s := range srcRow {
					a0 += s * wRow[kk]
				}
				dstRow[j] = a0
			}
			if bias != nil {
				for j := range dstRow {
					dstRow[j] += bias[j]
				}
			}
		}
	})
}
