// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build !amd64

package cpu

// DetectFeatures returns no tiers: the tier vocabulary is x86-specific, so on other
// architectures only the reference kernels are advertised.
func DetectFeatures() Features {
	return Features{}
}
