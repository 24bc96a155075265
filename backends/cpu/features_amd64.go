// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build amd64

package cpu

import "golang.org/x/sys/cpu"

// DetectFeatures reads the instruction tiers supported by the host CPU.
func DetectFeatures() Features {
	return Features{
		SSE42:  cpu.X86.HasSSE42,
		AVX:    cpu.X86.HasAVX,
		AVX2:   cpu.X86.HasAVX2,
		AVX512: cpu.X86.HasAVX512F && cpu.X86.HasAVX512VL,
	}
}
