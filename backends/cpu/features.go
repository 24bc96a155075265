// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cpu

import "strings"

// Features is the set of instruction tiers the engine advertises kernels for. The zero
// value advertises none, leaving only the reference kernels.
type Features struct {
	SSE42  bool
	AVX    bool
	AVX2   bool
	AVX512 bool
}

// HasAny reports whether at least one tier is available.
func (f Features) HasAny() bool {
	return f.SSE42 || f.AVX || f.AVX2 || f.AVX512
}

// BestTier returns the name of the best available tier ("avx512" down to "sse42"), or
// "" when none is.
func (f Features) BestTier() string {
	switch {
	case f.AVX512:
		return "avx512"
	case f.AVX2:
		return "avx2"
	case f.AVX:
		return "avx"
	case f.SSE42:
		return "sse42"
	}
	return ""
}

// String implements fmt.Stringer, e.g. "[avx2 sse42]" or "[portable]".
func (f Features) String() string {
	var tiers []string
	if f.AVX512 {
		tiers = append(tiers, "avx512")
	}
	if f.AVX2 {
		tiers = append(tiers, "avx2")
	}
	if f.AVX {
		tiers = append(tiers, "avx")
	}
	if f.SSE42 {
		tiers = append(tiers, "sse42")
	}
	if len(tiers) == 0 {
		return "[portable]"
	}
	return "[" + strings.Join(tiers, " ") + "]"
}
