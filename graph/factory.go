// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/goinfer/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NodeConstructor builds a node variant from its layer description.
type NodeConstructor func(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error)

// ExtensionConstructor is a runtime-pluggable constructor for custom operators. It
// returns (nil, nil) when it does not claim the layer's type, letting the factory fall
// through to the next extension and finally to the built-in table.
type ExtensionConstructor func(layer *Layer, engine backends.Engine, cache *WeightCache) (Node, error)

// builtinConstructors is the process-wide kind table; node variants register themselves
// during package initialization via RegisterNodeKind.
var builtinConstructors = map[OpKind]NodeConstructor{}

// RegisterNodeKind binds a constructor to an operator kind. Call it from an init
// function; registering the same kind twice panics, that is a programming error.
func RegisterNodeKind(kind OpKind, constructor NodeConstructor) {
	if _, found := builtinConstructors[kind]; found {
		panic("graph: node constructor for kind " + kind.String() + " registered twice")
	}
	builtinConstructors[kind] = constructor
}

// Factory creates nodes from layer descriptions: extensions are consulted first, in
// registration order, so custom operators can claim any type name (including names the
// built-in table knows); then the built-in kind table. A layer neither path claims is
// an error.
type Factory struct {
	extensions []ExtensionConstructor
}

// NewFactory returns a factory over the built-in kind table with no extensions.
func NewFactory() *Factory {
	return &Factory{}
}

// RegisterExtension appends a runtime-pluggable constructor.
func (f *Factory) RegisterExtension(constructor ExtensionConstructor) {
	f.extensions = append(f.extensions, constructor)
}

// Create builds the node for the layer and injects the graph context into it.
func (f *Factory) Create(layer *Layer, ctx *GraphContext) (Node, error) {
	node, err := f.create(layer, ctx)
	if err != nil {
		return nil, err
	}
	node.SetGraphContext(ctx)
	return node, nil
}

func (f *Factory) create(layer *Layer, ctx *GraphContext) (Node, error) {
	for _, ext := range f.extensions {
		node, err := ext(layer, ctx.Engine, ctx.Cache)
		if err != nil {
			return nil, errors.Wrapf(err, "extension constructor for layer %s of type %s", layer.Name, layer.Type)
		}
		if node != nil {
			klog.V(1).Infof("layer %s of type %s claimed by an extension", layer.Name, layer.Type)
			return node, nil
		}
	}
	constructor, found := builtinConstructors[KindFromName(layer.Type)]
	if !found {
		return nil, errors.Errorf("unsupported operation of type %s with name %s", layer.Type, layer.Name)
	}
	return constructor(layer, ctx.Engine, ctx.Cache)
}
