// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"
	"strings"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/pkg/errors"
)

// PortConfig describes one port of a candidate configuration: the memory descriptor
// (possibly still ANY during negotiation), whether the port carries constant data, and
// the in-place aliasing index.
type PortConfig struct {
	Desc memdesc.Desc

	// Constant marks ports whose content never changes between executions.
	Constant bool

	// InPlace is the index of the port on the opposite side whose buffer this port
	// shares, or -1 for a port with its own storage. A set index must reference a port
	// whose descriptor is layout-compatible with this one.
	InPlace int
}

// Config pairs the ordered input and output port configurations of one candidate.
type Config struct {
	// DynBatchSupport reports whether the implementation tolerates shrinking the
	// leading batch dimension of its activation arguments between executions.
	DynBatchSupport bool

	InConfs  []PortConfig
	OutConfs []PortConfig
}

// Clone returns a deep copy, descriptors included.
func (c Config) Clone() Config {
	clone := Config{
		DynBatchSupport: c.DynBatchSupport,
		InConfs:         slices.Clone(c.InConfs),
		OutConfs:        slices.Clone(c.OutConfs),
	}
	for i := range clone.InConfs {
		clone.InConfs[i].Desc = clone.InConfs[i].Desc.Clone()
	}
	for i := range clone.OutConfs {
		clone.OutConfs[i].Desc = clone.OutConfs[i].Desc.Clone()
	}
	return clone
}

// PrimDesc is one candidate (configuration, implementation) pairing of a node.
type PrimDesc struct {
	Config   Config
	ImplType backends.ImplType
}

// Clone returns a deep copy.
func (pd *PrimDesc) Clone() *PrimDesc {
	return &PrimDesc{Config: pd.Config.Clone(), ImplType: pd.ImplType}
}

// ParsePrimitivesPriority parses a comma-separated list of "cpu:<impl>" tokens into
// implementation types, in order. Entries without the "cpu:" prefix belong to other
// device plugins and are silently skipped. "cpu:unknown" is accepted (it parses to the
// unknown type); any other unrecognized implementation token is an error.
func ParsePrimitivesPriority(value string) ([]backends.ImplType, error) {
	var priorities []backends.ImplType
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if !strings.HasPrefix(entry, "cpu:") {
			continue
		}
		impl, err := backends.ParseImplType(strings.TrimPrefix(entry, "cpu:"))
		if err != nil {
			return nil, errors.Wrapf(err, "unsupported CPU implementation %q", entry)
		}
		priorities = append(priorities, impl)
	}
	return priorities, nil
}

// ParseMemoryFormats parses a comma-separated list of "cpu:<format>" tokens into
// layout tags. Entries without the "cpu:" prefix are skipped; an unrecognized format
// token is an error.
func ParseMemoryFormats(value string) ([]memdesc.Format, error) {
	var formats []memdesc.Format
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if !strings.HasPrefix(entry, "cpu:") {
			continue
		}
		format, err := memdesc.ParseFormat(strings.TrimPrefix(entry, "cpu:"))
		if err != nil {
			return nil, errors.Wrapf(err, "unsupported CPU memory format %q", entry)
		}
		formats = append(formats, format)
	}
	return formats, nil
}
