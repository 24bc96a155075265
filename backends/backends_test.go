// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	name   string
	config string
}

func (e *stubEngine) Name() string                              { return e.name }
func (e *stubEngine) Description() string                       { return "stub engine for tests" }
func (e *stubEngine) Primitives(tpl Template) (PrimIter, error) { return nil, nil }
func (e *stubEngine) NewStream() Stream                         { return nil }
func (e *stubEngine) Finalize()                                 {}

func TestRegistry(t *testing.T) {
	Register("stub-a", func(config string) Engine {
		return &stubEngine{name: "stub-a", config: config}
	})
	Register("stub-b", func(config string) Engine {
		return &stubEngine{name: "stub-b", config: config}
	})

	engine := NewWithConfig("stub-b:opt1,opt2")
	require.Equal(t, "stub-b", engine.Name())
	require.Equal(t, "opt1,opt2", engine.(*stubEngine).config)

	// Without a name prefix the first registered engine is used and the whole
	// string is its configuration.
	engine = NewWithConfig("")
	require.Equal(t, "stub-a", engine.Name())

	require.Panics(t, func() { NewWithConfig("no-such-engine:x") })
}
