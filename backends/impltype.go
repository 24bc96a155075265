// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strings"

	"github.com/pkg/errors"
)

// ImplType is the bitmask identifier of one kernel implementation: it combines the kernel
// family (reference, generic matmul, generated/vectorized), the instruction-set tier it
// requires, and specialization flags (depthwise, 1x1, Winograd).
//
// The zero value ImplUnknown is a valid tag: it marks implementations whose info string
// could not be classified, and it is also the highest tier of the default selection
// priority so that explicitly requested unknown implementations win.
type ImplType uint32

const (
	ImplUnknown ImplType = 0

	// Kernel families.
	ImplUndef   ImplType = 1 << 0
	ImplReorder ImplType = 1 << 1
	ImplJit     ImplType = 1 << 2
	ImplGemm    ImplType = 1 << 3
	ImplRef     ImplType = 1 << 4

	// Instruction-set tiers.
	ImplAVX512 ImplType = 1 << 8
	ImplAVX2   ImplType = 1 << 9
	ImplAVX    ImplType = 1 << 10
	ImplSSE42  ImplType = 1 << 11
	ImplBlas   ImplType = 1 << 12
	ImplAny    ImplType = 1 << 13
	ImplUni    ImplType = 1 << 14

	// Specializations.
	ImplWinograd ImplType = 1 << 16
	ImplDW       ImplType = 1 << 17
	Impl1x1      ImplType = 1 << 18
)

// Combined tags, the vocabulary the providers and the priority lists speak.
const (
	ImplRefAny     = ImplRef | ImplAny
	ImplGemmAny    = ImplGemm | ImplAny
	ImplGemmBlas   = ImplGemm | ImplBlas
	ImplGemmSSE42  = ImplGemm | ImplSSE42
	ImplGemmAVX    = ImplGemm | ImplAVX
	ImplGemmAVX2   = ImplGemm | ImplAVX2
	ImplGemmAVX512 = ImplGemm | ImplAVX512
	ImplJitGemm    = ImplJit | ImplGemm

	ImplJitSSE42  = ImplJit | ImplSSE42
	ImplJitAVX    = ImplJit | ImplAVX
	ImplJitAVX2   = ImplJit | ImplAVX2
	ImplJitAVX512 = ImplJit | ImplAVX512
	ImplJitUni    = ImplJit | ImplUni

	ImplJitSSE42DW  = ImplJitSSE42 | ImplDW
	ImplJitAVXDW    = ImplJitAVX | ImplDW
	ImplJitAVX2DW   = ImplJitAVX2 | ImplDW
	ImplJitAVX512DW = ImplJitAVX512 | ImplDW
	ImplJitUniDW    = ImplJitUni | ImplDW

	ImplJitSSE421x1  = ImplJitSSE42 | Impl1x1
	ImplJitAVX1x1    = ImplJitAVX | Impl1x1
	ImplJitAVX21x1   = ImplJitAVX2 | Impl1x1
	ImplJitAVX5121x1 = ImplJitAVX512 | Impl1x1
	ImplJitUni1x1    = ImplJitUni | Impl1x1

	ImplJitAVX512Winograd = ImplJitAVX512 | ImplWinograd
)

// searchOrder fixes the token order of the human-readable form: family tokens first, then
// tiers, then specializations. The leading-underscore tokens join without an extra
// separator, yielding strings such as "jit_avx2_1x1".
var searchOrder = []struct {
	bits  ImplType
	token string
}{
	{ImplUndef, "undef"},
	{ImplReorder, "reorder"},
	{ImplJit, "jit"},
	{ImplGemm, "gemm"},
	{ImplRef, "ref"},
	{ImplAVX512, "avx512"},
	{ImplAVX2, "avx2"},
	{ImplAVX, "avx"},
	{ImplSSE42, "sse42"},
	{ImplBlas, "blas"},
	{ImplAny, "any"},
	{ImplUni, "uni"},
	{ImplWinograd, "winograd"},
	{ImplDW, "_dw"},
	{Impl1x1, "_1x1"},
}

// String renders the tag as underscore-joined tokens, e.g. "jit_avx2_1x1" or "gemm_blas".
// ImplUnknown renders as "unknown".
func (t ImplType) String() string {
	if t == ImplUnknown {
		return "unknown"
	}
	var b strings.Builder
	for _, entry := range searchOrder {
		if t&entry.bits != entry.bits {
			continue
		}
		if b.Len() > 0 && entry.token[0] != '_' {
			b.WriteByte('_')
		}
		b.WriteString(entry.token)
	}
	if b.Len() == 0 {
		return "undef"
	}
	return b.String()
}

// implTokens maps individual tokens of an implementation-info string to their bits.
var implTokens = map[string]ImplType{
	"unknown":  ImplUnknown,
	"undef":    ImplUndef,
	"reorder":  ImplReorder,
	"jit":      ImplJit,
	"gemm":     ImplGemm,
	"ref":      ImplRef,
	"avx512":   ImplAVX512,
	"avx2":     ImplAVX2,
	"avx":      ImplAVX,
	"sse42":    ImplSSE42,
	"blas":     ImplBlas,
	"any":      ImplAny,
	"uni":      ImplUni,
	"winograd": ImplWinograd,
	"dw":       ImplDW,
	"1x1":      Impl1x1,
}

// ParseImplType parses an underscore-joined implementation name ("jit_avx2_1x1",
// "gemm_blas", "ref_any") back into its bitmask. Unknown tokens are an error so that a
// mistyped priority entry aborts the build instead of silently matching nothing.
func ParseImplType(name string) (ImplType, error) {
	if name == "" {
		return ImplUnknown, errors.Errorf("empty implementation name")
	}
	var t ImplType
	for _, token := range strings.Split(name, "_") {
		bits, found := implTokens[strings.ToLower(token)]
		if !found {
			return ImplUnknown, errors.Errorf("unknown implementation token %q in %q", token, name)
		}
		t |= bits
	}
	return t, nil
}

// ParseImplInfo classifies a provider's free-form implementation-info string. Unlike
// ParseImplType it never fails: names that cannot be classified map to ImplUnknown,
// which selection treats as its own tier.
func ParseImplInfo(info string) ImplType {
	t, err := ParseImplType(info)
	if err != nil {
		return ImplUnknown
	}
	return t
}

// DefaultPriority is the global implementation preference order used when a node carries
// no per-node priority configuration: specialized generated kernels first within each
// instruction tier (best tier first), then generic matmul variants, then reference.
func DefaultPriority() []ImplType {
	return []ImplType{
		ImplUnknown,
		ImplJitUniDW,
		ImplJitUni1x1,
		ImplJitUni,
		ImplJitAVX512DW,
		ImplJitAVX5121x1,
		ImplJitAVX512,
		ImplJitAVX2DW,
		ImplJitAVX21x1,
		ImplJitAVX2,
		ImplJitAVXDW,
		ImplJitAVX1x1,
		ImplJitAVX,
		ImplJitSSE42DW,
		ImplJitSSE421x1,
		ImplJitSSE42,
		ImplGemmAny,
		ImplGemmBlas,
		ImplGemmAVX512,
		ImplGemmAVX2,
		ImplGemmAVX,
		ImplGemmSSE42,
		ImplJitGemm,
		ImplRefAny,
		ImplRef,
	}
}
