// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"
	"strings"

	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/goinfer/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// InitSupportedPrimDescs enumerates the engine's candidate implementations for every
// registered template and records one PrimDesc per candidate. Port descriptors are
// stored uninitialized: the block structure each implementation wants is kept, concrete
// strides are left open until finalization. The call is idempotent.
func (b *BaseNode) InitSupportedPrimDescs() error {
	if len(b.supportedPrimDescs) > 0 {
		return nil
	}
	if len(b.templates) == 0 {
		// Pass-through node: a single candidate built from the declared ports, no
		// engine behind it. ANY layouts stay open for negotiation.
		config := Config{DynBatchSupport: true}
		for _, d := range b.inDescs {
			config.InConfs = append(config.InConfs, PortConfig{Desc: d.Clone(), InPlace: -1})
		}
		outInPlace := -1
		if b.CanBeInPlace() {
			outInPlace = 0
		}
		for _, d := range b.outDescs {
			config.OutConfs = append(config.OutConfs, PortConfig{Desc: d.Clone(), InPlace: outInPlace})
		}
		b.supportedPrimDescs = append(b.supportedPrimDescs, PrimDesc{Config: config, ImplType: backends.ImplUnknown})
		b.candMeta = append(b.candMeta, candMeta{template: -1})
		return nil
	}
	for ti, dt := range b.templates {
		it, err := b.engine.Primitives(dt.tpl)
		if err != nil {
			return errors.Wrapf(err, "node %s", b.name)
		}
		for ; it.Ok(); it.Next() {
			config := Config{DynBatchSupport: true}
			for i := 0; i < dt.dataIns; i++ {
				config.InConfs = append(config.InConfs, PortConfig{
					Desc:    it.SrcDesc(i).Uninitialized(),
					InPlace: -1,
				})
			}
			var weights []memdesc.Desc
			for i := dt.dataIns; i < it.NumSrcs(); i++ {
				weights = append(weights, it.SrcDesc(i))
			}
			outInPlace := -1
			if b.CanBeInPlace() {
				outInPlace = 0
			}
			for i := 0; i < it.NumDsts(); i++ {
				config.OutConfs = append(config.OutConfs, PortConfig{
					Desc:    it.DstDesc(i).Uninitialized(),
					InPlace: outInPlace,
				})
			}
			b.supportedPrimDescs = append(b.supportedPrimDescs, PrimDesc{
				Config:   config,
				ImplType: backends.ParseImplInfo(it.ImplInfo()),
			})
			b.candMeta = append(b.candMeta, candMeta{template: ti, weights: weights})
		}
	}
	return nil
}

// FilterSupportedPrimDescs drops the candidates whose port layouts do not match the
// node's declared format hints. Comparison is structural: block dims and axis order,
// without strides. Declaring more hints than a candidate has ports is an error.
func (b *BaseNode) FilterSupportedPrimDescs() error {
	if len(b.inputFormatHints) == 0 && len(b.outputFormatHints) == 0 {
		return nil
	}
	keptDescs := b.supportedPrimDescs[:0]
	keptMeta := b.candMeta[:0]
	for i := range b.supportedPrimDescs {
		pd := &b.supportedPrimDescs[i]
		if len(b.inputFormatHints) > len(pd.Config.InConfs) ||
			len(b.outputFormatHints) > len(pd.Config.OutConfs) {
			return errors.Errorf("incorrect number of input or output memory formats for node %s", b.name)
		}
		suitable := true
		for j, hint := range b.inputFormatHints {
			if !pd.Config.InConfs[j].Desc.MatchesFormat(hint) {
				suitable = false
			}
		}
		for j, hint := range b.outputFormatHints {
			if !pd.Config.OutConfs[j].Desc.MatchesFormat(hint) {
				suitable = false
			}
		}
		if suitable {
			keptDescs = append(keptDescs, *pd)
			keptMeta = append(keptMeta, b.candMeta[i])
		}
	}
	b.supportedPrimDescs = keptDescs
	b.candMeta = keptMeta
	return nil
}

// PrimitivesPriority returns the implementation preference order of this node: the
// per-node configured entries first, then the global default order, deduplicated.
func (b *BaseNode) PrimitivesPriority() []backends.ImplType {
	for _, impl := range backends.DefaultPriority() {
		if !slices.Contains(b.implPriorities, impl) {
			b.implPriorities = append(b.implPriorities, impl)
		}
	}
	return b.implPriorities
}

// SelectOptimalPrimDesc picks the candidate to execute using the node's implementation
// priority order.
func (b *BaseNode) SelectOptimalPrimDesc() error {
	return b.selectPreferPrimDesc(b.PrimitivesPriority())
}

// selectPreferPrimDesc walks the priority tiers in order; within the first tier that
// has any candidate, it picks the one whose input layouts match the most parent output
// layouts (first index wins ties). Candidates expecting more inputs than the node has
// parent edges are skipped. If no tier matches anything, candidate 0 is selected; an
// empty candidate list is an error.
func (b *BaseNode) selectPreferPrimDesc(priority []backends.ImplType) error {
	for _, tier := range priority {
		selected := -1
		equalsFormatCount := -1
		for i := range b.supportedPrimDescs {
			pd := &b.supportedPrimDescs[i]
			if pd.ImplType != tier {
				continue
			}
			if len(pd.Config.InConfs) > len(b.parentEdges) {
				continue
			}
			count := 0
			for j := range pd.Config.InConfs {
				parentEdge, err := b.ParentEdgeAt(j)
				if err != nil {
					return err
				}
				parentPD := parentEdge.Parent().base().selectedPD()
				if parentPD == nil || len(parentPD.Config.OutConfs) == 0 {
					continue
				}
				num := parentEdge.InputNum()
				if num < 0 || num >= len(parentPD.Config.OutConfs) {
					num = 0
				}
				if pd.Config.InConfs[j].Desc.EqualAsInit(parentPD.Config.OutConfs[num].Desc) {
					count++
				}
			}
			if count > equalsFormatCount {
				equalsFormatCount = count
				selected = i
			}
		}
		if selected >= 0 {
			b.selectedIdx = selected
			return nil
		}
	}
	if len(b.supportedPrimDescs) == 0 {
		return errors.Errorf("supported primitive descriptors list is empty for node %s", b.name)
	}
	b.selectedIdx = 0
	return nil
}

// CanBeInPlace reports whether the node's output may share its input's buffer: a single
// parent edge whose producer has a single consumer, no constant data flowing into a
// non-constant node, and all output dims equal to the input dims. In-place through a
// reshape parent additionally requires the grandparent to have a single consumer.
func (b *BaseNode) CanBeInPlace() bool {
	// A reorder permutes the layout and a convert rewrites element widths; neither can
	// read and write the same buffer.
	if b.kind == OpReorder || b.kind == OpConvert {
		return false
	}
	if len(b.parentEdges) != 1 {
		return false
	}
	parentEdge := b.parentEdges[0]
	if !parentEdge.Alive() {
		return false
	}
	parent := parentEdge.Parent()
	if len(parent.base().childEdges) != 1 {
		return false
	}
	if parent.IsConstant() && !b.IsConstant() {
		return false
	}
	if parent.Kind() == OpReshape {
		grandEdges := parent.base().parentEdges
		if len(grandEdges) > 0 && grandEdges[0].Alive() &&
			len(grandEdges[0].Parent().base().childEdges) != 1 {
			return false
		}
	}
	dims := parentEdge.Dims()
	for _, child := range b.childEdges {
		if !child.Alive() || !slices.Equal(child.Dims(), dims) {
			return false
		}
	}
	return true
}

// PrimDescType renders the selected implementation for performance reporting:
// underscore-joined implementation tokens plus the precision of input 0 (output 0 for
// source nodes). Uint8 reports as I8; no selection reports as "undef".
func (b *BaseNode) PrimDescType() string {
	pd := b.selectedPD()
	t := backends.ImplUndef
	if pd != nil {
		t = pd.ImplType
	}
	s := t.String()
	if pd != nil {
		switch {
		case len(pd.Config.InConfs) > 0:
			s += "_" + precisionToken(pd.Config.InConfs[0].Desc.DType)
		case len(pd.Config.OutConfs) > 0:
			s += "_" + precisionToken(pd.Config.OutConfs[0].Desc.DType)
		}
	}
	return s
}

func precisionToken(dt dtypes.DType) string {
	switch dt {
	case dtypes.Float32:
		return "FP32"
	case dtypes.Float16:
		return "FP16"
	case dtypes.BFloat16:
		return "BF16"
	case dtypes.Int8, dtypes.Uint8:
		return "I8"
	case dtypes.Int32:
		return "I32"
	case dtypes.Int64:
		return "I64"
	case dtypes.Bool:
		return "BOOL"
	}
	return strings.ToUpper(dt.String())
}

func isInitConfig(config Config) bool {
	for _, pc := range config.InConfs {
		if pc.Desc.IsUninit() {
			return false
		}
	}
	for _, pc := range config.OutConfs {
		if pc.Desc.IsUninit() {
			return false
		}
	}
	return true
}

// InitOptimalPrimDesc finalizes the selected candidate: every port descriptor still
// uninitialized is resolved against the neighbors' selections, then the finished
// configuration is re-validated against the engine and committed.
func (b *BaseNode) InitOptimalPrimDesc() error {
	selected, err := b.SelectedPrimDesc()
	if err != nil {
		return err
	}
	config := selected.Config.Clone()
	if !isInitConfig(config) {
		for i := range config.InConfs {
			desc, err := b.configuredInputDesc(config, i)
			if err != nil {
				return err
			}
			config.InConfs[i].Desc = desc
		}
		for i := range config.OutConfs {
			desc, err := b.configuredOutputDesc(config, i)
			if err != nil {
				return err
			}
			config.OutConfs[i].Desc = desc
		}
	}
	return b.initDescriptor(config)
}

// configuredInputDesc resolves the descriptor of input port idx: keep it when already
// concrete; follow an in-place link to the output it aliases; adopt the parent's
// selected output descriptor when structurally compatible (with this port's element
// type); else derive a dense layout from the parent's block structure, from the port's
// own proposed structure, or finally from the rank default.
func (b *BaseNode) configuredInputDesc(config Config, idx int) (memdesc.Desc, error) {
	own := config.InConfs[idx].Desc
	if !own.IsUninit() {
		return own, nil
	}
	parentEdge, err := b.ParentEdgeAt(idx)
	if err != nil {
		return memdesc.Desc{}, err
	}
	parentNode := parentEdge.Parent()
	parentPD := parentNode.base().selectedPD()
	if parentPD == nil {
		return memdesc.Desc{}, errors.Errorf("cannot get selected primitive descriptor for node %s", parentNode.Name())
	}
	if config.InConfs[idx].InPlace >= 0 {
		aliased, err := b.configuredOutputDesc(config, config.InConfs[idx].InPlace)
		if err != nil {
			return memdesc.Desc{}, err
		}
		if slices.Equal(aliased.Dims, own.Dims) {
			return aliased.WithDType(own.DType), nil
		}
		// Aliased ports with different dims (reshapes) share storage, not layout.
		return defaultDenseDesc(own.DType, own.Dims), nil
	}
	num := parentEdge.InputNum()
	if num >= len(parentPD.Config.OutConfs) {
		num = 0
	}
	if len(parentPD.Config.OutConfs) > 0 {
		parentConf := parentPD.Config.OutConfs[num]
		if parentConf.Desc.IsUninit() && parentConf.InPlace >= 0 {
			// The parent's port is itself an unresolved alias; finalize the parent
			// first and re-read its choice.
			if err := parentNode.InitOptimalPrimDesc(); err != nil {
				return memdesc.Desc{}, err
			}
			parentPD = parentNode.base().selectedPD()
			parentConf = parentPD.Config.OutConfs[num]
		}
		if !parentConf.Desc.IsUninit() {
			adopted := parentConf.Desc.WithDType(own.DType)
			if adopted.EqualAsInit(own) {
				return adopted, nil
			}
		}
		if own.IsAny() && !parentConf.Desc.IsAny() {
			return structureDesc(own.DType, parentConf.Desc), nil
		}
	}
	if !own.IsAny() {
		return own.Initialized(), nil
	}
	return defaultDenseDesc(own.DType, own.Dims), nil
}

// configuredOutputDesc mirrors configuredInputDesc for output port idx, resolving
// against the child's selected input descriptor.
func (b *BaseNode) configuredOutputDesc(config Config, idx int) (memdesc.Desc, error) {
	own := config.OutConfs[idx].Desc
	if !own.IsUninit() {
		return own, nil
	}
	childEdge, err := b.ChildEdgeAt(idx)
	if err != nil {
		return memdesc.Desc{}, err
	}
	childNode := childEdge.Child()
	childPD := childNode.base().selectedPD()
	if childPD == nil {
		return memdesc.Desc{}, errors.Errorf("cannot get selected primitive descriptor for node %s", childNode.Name())
	}
	if config.OutConfs[idx].InPlace >= 0 {
		aliased, err := b.configuredInputDesc(config, config.OutConfs[idx].InPlace)
		if err != nil {
			return memdesc.Desc{}, err
		}
		if slices.Equal(aliased.Dims, own.Dims) {
			return aliased.WithDType(own.DType), nil
		}
		return defaultDenseDesc(own.DType, own.Dims), nil
	}
	num := childEdge.OutputNum()
	if num >= len(childPD.Config.InConfs) {
		num = 0
	}
	if len(childPD.Config.InConfs) > 0 {
		childConf := childPD.Config.InConfs[num]
		if childConf.Desc.IsUninit() && childConf.InPlace >= 0 {
			if err := childNode.InitOptimalPrimDesc(); err != nil {
				return memdesc.Desc{}, err
			}
			childPD = childNode.base().selectedPD()
			childConf = childPD.Config.InConfs[num]
		}
		if !childConf.Desc.IsUninit() {
			adopted := childConf.Desc.WithDType(own.DType)
			if adopted.EqualAsInit(own) {
				return adopted, nil
			}
		}
		if own.IsAny() && !childConf.Desc.IsAny() {
			return structureDesc(own.DType, childConf.Desc), nil
		}
	}
	if !own.IsAny() {
		return own.Initialized(), nil
	}
	return defaultDenseDesc(own.DType, own.Dims), nil
}

// structureDesc builds a dense initialized descriptor with the block structure of ref
// and the given element type.
func structureDesc(dtype dtypes.DType, ref memdesc.Desc) memdesc.Desc {
	return memdesc.FromBlocking(dtype, ref.Dims, ref.Blocking).Initialized()
}

// defaultDenseDesc is the dense layout of last resort for a port nobody constrained.
func defaultDenseDesc(dtype dtypes.DType, dims []int) memdesc.Desc {
	format := memdesc.DefaultFormat(len(dims))
	if format == memdesc.FormatBlocked {
		// Ranks without a named dense tag get an explicit row-major blocking.
		blocking := memdesc.Blocking{
			BlockDims:           slices.Clone(dims),
			Order:               xslices.Iota(0, len(dims)),
			Strides:             make([]int, len(dims)),
			OffsetPaddingToData: make([]int, len(dims)),
		}
		return memdesc.FromBlocking(dtype, dims, blocking).Initialized()
	}
	return memdesc.Make(dtype, format, dims...)
}

// templateWithConfig rebuilds the template a candidate came from, with the (now
// concrete) port descriptors of config and the candidate's internal weight descriptors.
func (b *BaseNode) templateWithConfig(meta candMeta, config Config) backends.Template {
	tpl := b.templates[meta.template].tpl
	in := make([]memdesc.Desc, 0, len(config.InConfs)+len(meta.weights))
	for _, pc := range config.InConfs {
		in = append(in, pc.Desc)
	}
	in = append(in, meta.weights...)
	out := make([]memdesc.Desc, 0, len(config.OutConfs))
	for _, pc := range config.OutConfs {
		out = append(out, pc.Desc)
	}
	tpl.In = in
	tpl.Out = out
	return tpl
}

// initDescriptor commits a fully resolved configuration to the selected candidate.
// Nodes backed by an engine template re-enumerate it with the concrete descriptors and
// require a candidate with the already-selected implementation to still exist.
// Pass-through nodes only validate the configuration against the selected one.
func (b *BaseNode) initDescriptor(config Config) error {
	selected := b.selectedPD()
	if selected == nil {
		return nil
	}
	if len(b.templates) == 0 {
		selCfg := selected.Config
		if len(selCfg.InConfs) != len(config.InConfs) || len(selCfg.OutConfs) != len(config.OutConfs) {
			return nil
		}
		for i := range selCfg.InConfs {
			if !selCfg.InConfs[i].Desc.IsAny() && !selCfg.InConfs[i].Desc.EqualAsInit(config.InConfs[i].Desc) {
				return errors.Errorf("incorrect descriptor for node %s", b.name)
			}
		}
		for i := range selCfg.OutConfs {
			if !selCfg.OutConfs[i].Desc.IsAny() && !selCfg.OutConfs[i].Desc.EqualAsInit(config.OutConfs[i].Desc) {
				return errors.Errorf("incorrect descriptor for node %s", b.name)
			}
		}
		selected.Config = config
		return nil
	}

	meta := b.candMeta[b.selectedIdx]
	it, err := b.engine.Primitives(b.templateWithConfig(meta, config))
	if err != nil {
		return errors.Wrapf(err, "node %s", b.name)
	}
	for ; it.Ok(); it.Next() {
		if backends.ParseImplInfo(it.ImplInfo()) == selected.ImplType {
			selected.Config = config
			return nil
		}
	}
	return errors.Errorf("cannot get the original layer configuration for node %s", b.name)
}

// instantiateSelected re-enumerates the selected candidate's template with the final
// configuration and builds the executable primitive of the selected implementation.
func (b *BaseNode) instantiateSelected() error {
	selected, err := b.SelectedPrimDesc()
	if err != nil {
		return err
	}
	meta := b.candMeta[b.selectedIdx]
	it, err := b.engine.Primitives(b.templateWithConfig(meta, selected.Config))
	if err != nil {
		return errors.Wrapf(err, "node %s", b.name)
	}
	for ; it.Ok(); it.Next() {
		if backends.ParseImplInfo(it.ImplInfo()) != selected.ImplType {
			continue
		}
		prim, err := it.Instantiate()
		if err != nil {
			return errors.Wrapf(err, "node %s", b.name)
		}
		b.primitive = prim
		return nil
	}
	return errors.Errorf("cannot instantiate %s implementation for node %s", selected.ImplType, b.name)
}

// bindArguments points the primitive's arguments at the edge memories: one source per
// input port, one destination per output port (fan-out consumers share the buffer).
func (b *BaseNode) bindArguments() error {
	selected, err := b.SelectedPrimDesc()
	if err != nil {
		return err
	}
	b.primArgs = make(backends.Args, len(selected.Config.InConfs)+len(selected.Config.OutConfs))
	for i := range selected.Config.InConfs {
		e, err := b.ParentEdgeAt(i)
		if err != nil {
			return err
		}
		mem, err := e.Memory()
		if err != nil {
			return errors.Wrapf(err, "source memory was not allocated for node %s from node %s",
				b.name, e.Parent().Name())
		}
		b.primArgs[backends.ArgAt(backends.ArgSrc, i)] = mem
	}
	for i := range selected.Config.OutConfs {
		edges, err := b.ChildEdgesAtPort(i)
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			return errors.Errorf("node %s has no consumer on output port %d", b.name, i)
		}
		mem, err := edges[0].Memory()
		if err != nil {
			return errors.Wrapf(err, "destination memory was not allocated for node %s to node %s",
				b.name, edges[0].Child().Name())
		}
		b.primArgs[backends.ArgAt(backends.ArgDst, i)] = mem
	}
	return nil
}

// CreatePrimitive builds the executable for the selected candidate, materializes its
// internal weights through the cache and binds all arguments. Nodes without engine
// templates have nothing to build.
func (b *BaseNode) CreatePrimitive() error {
	if len(b.templates) == 0 {
		return nil
	}
	if err := b.instantiateSelected(); err != nil {
		return err
	}
	meta := b.candMeta[b.selectedIdx]
	if err := b.prepareMemory(meta.weights); err != nil {
		return err
	}
	if err := b.bindArguments(); err != nil {
		return err
	}
	weightRoles := []backends.ArgRole{backends.ArgWeights, backends.ArgBias}
	for i, mem := range b.internalBlobMemory {
		if i >= len(weightRoles) {
			break
		}
		b.primArgs[backends.Arg(weightRoles[i])] = mem
	}
	return nil
}

// ResolveNotAllocatedEdges materializes the in-place views of this node's edges: every
// NotAllocated edge whose port aliases another port gets a view over the referenced
// edge's memory, described with the port's own descriptor. Edges whose referenced
// memory is not available yet are left for a later pass.
func (b *BaseNode) ResolveNotAllocatedEdges() error {
	selected, err := b.SelectedPrimDesc()
	if err != nil {
		return errors.Errorf("cannot find selected primitive descriptor for node %s", b.name)
	}
	for _, e := range b.parentEdges {
		if !e.Alive() || e.Status() != EdgeNotAllocated {
			continue
		}
		port := e.OutputNum()
		if port >= len(selected.Config.InConfs) || selected.Config.InConfs[port].InPlace < 0 {
			continue
		}
		refEdges, err := b.ChildEdgesAtPort(selected.Config.InConfs[port].InPlace)
		if err != nil {
			return err
		}
		if len(refEdges) == 0 {
			return errors.Errorf("node %s: input %d aliases an output with no edge", b.name, port)
		}
		if refEdges[0].memory == nil {
			continue
		}
		view, err := refEdges[0].memory.WithDesc(selected.Config.InConfs[port].Desc)
		if err != nil {
			return errors.Wrapf(err, "node %s: in-place input %d", b.name, port)
		}
		e.memory = view
		if err := e.changeStatus(EdgeAllocated); err != nil {
			return err
		}
	}
	for _, e := range b.childEdges {
		if !e.Alive() || e.Status() != EdgeNotAllocated {
			continue
		}
		port := e.InputNum()
		if port >= len(selected.Config.OutConfs) || selected.Config.OutConfs[port].InPlace < 0 {
			continue
		}
		ref, err := b.ParentEdgeAt(selected.Config.OutConfs[port].InPlace)
		if err != nil {
			return err
		}
		if ref.memory == nil {
			continue
		}
		view, err := ref.memory.WithDesc(selected.Config.OutConfs[port].Desc)
		if err != nil {
			return errors.Wrapf(err, "node %s: in-place output %d", b.name, port)
		}
		e.memory = view
		if err := e.changeStatus(EdgeAllocated); err != nil {
			return err
		}
	}
	return nil
}
