// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromName(t *testing.T) {
	cases := []struct {
		name string
		want OpKind
	}{
		{"Input", OpInput},
		{"Const", OpInput},
		{"ReLU", OpEltwise},
		{"GELU", OpEltwise},
		{"Sigmoid", OpEltwise},
		{"Swish", OpEltwise},
		{"TanH", OpEltwise},
		{"Logistic", OpEltwise},
		{"Activation", OpEltwise},
		{"FullyConnected", OpFullyConnected},
		{"InnerProduct", OpFullyConnected},
		{"LSTMCell", OpRNNCell},
		{"GRUSequence", OpRNNSeq},
		{"TensorIterator", OpTensorIterator},
		{"Loop", OpTensorIterator},
		{"Memory", OpMemoryOutput},
		{"norm", OpLrn},
		{"SomethingNew", OpUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, KindFromName(c.name), c.name)
	}
}

func TestKindFromNameCaseInsensitive(t *testing.T) {
	assert.Equal(t, KindFromName("RELU"), KindFromName("relu"))
	assert.Equal(t, KindFromName("fullyconnected"), KindFromName("FullyConnected"))
}

func TestTypeAllowsNoOutput(t *testing.T) {
	for _, name := range []string{"Memory", "MemoryInput", "Output", "Reorder", "Convert"} {
		assert.True(t, typeAllowsNoOutput(name), name)
	}
	for _, name := range []string{"ReLU", "Input", "FullyConnected", "TensorIterator"} {
		assert.False(t, typeAllowsNoOutput(name), name)
	}
}
