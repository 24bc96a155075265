// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strconv"
	"strings"

	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Blob is a raw constant buffer attached to a layer: weights or biases, stored as the
// bytes of DType elements in their canonical dense layout.
type Blob struct {
	DType dtypes.DType
	Data  []byte
}

// ByteSize returns the buffer size in bytes.
func (b *Blob) ByteSize() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Layer is one operator of a network description, the unit the node factory consumes.
//
// Type is the textual operator name ("Convolution", "ReLU", ...), matched
// case-insensitively against the alias table of KindFromName. In and Out declare the
// ports: element type and logical dims are mandatory, the layout is usually left as
// memdesc.FormatAny and negotiated during graph configuration.
//
// Params carries the free-form string attributes of the operator. A few keys are
// understood by every node:
//
//   - "PrimitivesPriority": comma-separated "cpu:<impl>" tokens overriding the default
//     implementation preference order for this node.
//   - "InputMemoryFormats", "OutputMemoryFormats": comma-separated "cpu:<format>" tokens
//     restricting the candidate layouts per port.
type Layer struct {
	Name string
	Type string

	In  []memdesc.Desc
	Out []memdesc.Desc

	Params map[string]string

	Weights *Blob
	Biases  *Blob

	// Body is the nested network of a TensorIterator layer, nil for everything else.
	Body *Network
}

// Param returns the named attribute, or def when absent.
func (l *Layer) Param(name, def string) string {
	if v, found := l.Params[name]; found {
		return v
	}
	return def
}

// IntParam returns the named attribute parsed as an int, or def when absent.
func (l *Layer) IntParam(name string, def int) (int, error) {
	v, found := l.Params[name]
	if !found {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(err, "layer %s: param %q", l.Name, name)
	}
	return i, nil
}

// FloatParam returns the named attribute parsed as a float32, or def when absent.
func (l *Layer) FloatParam(name string, def float32) (float32, error) {
	v, found := l.Params[name]
	if !found {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return 0, errors.Wrapf(err, "layer %s: param %q", l.Name, name)
	}
	return float32(f), nil
}

// IntsParam returns the named attribute parsed as a comma-separated int list, or def
// when absent.
func (l *Layer) IntsParam(name string, def []int) ([]int, error) {
	v, found := l.Params[name]
	if !found {
		return def, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "layer %s: param %q", l.Name, name)
		}
		out = append(out, i)
	}
	return out, nil
}

// Connection wires one output port of a layer to one input port of another, both
// referenced by layer name.
type Connection struct {
	From     string
	FromPort int
	To       string
	ToPort   int
}

// Network is a complete description: layers in topological order plus the connections
// between their ports. Graph.Build consumes one.
type Network struct {
	Layers      []*Layer
	Connections []Connection
}
