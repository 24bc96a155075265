// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"hash/fnv"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/goinfer/backends"
	"github.com/gomlx/goinfer/types/memdesc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// WeightCache dedupes identical constant weight blobs across nodes: when a layer is
// replicated (batch splitting, fused subgraphs) every replica materializes the same
// bytes into the same implementation layout, and the cache hands all of them one shared
// read-only buffer instead of one copy each.
//
// Entries are keyed on "<nodeName>_<blobIdx>_<byteSize>_<contentHash>"; two nodes whose
// keys match by construction carry the same weights. FindOrCreate is safe under
// concurrent access; a coarse mutex is enough, materialization is a one-time build cost.
type WeightCache struct {
	mu      sync.Mutex
	entries map[string]*backends.Memory
}

// NewWeightCache returns an empty cache.
func NewWeightCache() *WeightCache {
	return &WeightCache{entries: make(map[string]*backends.Memory)}
}

// FindOrCreate returns the buffer cached under key, invoking create to build it on the
// first request. At most one construction happens per key; later callers share the
// first buffer.
func (c *WeightCache) FindOrCreate(key string, create func() (*backends.Memory, error)) (*backends.Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mem, found := c.entries[key]; found {
		klog.V(2).Infof("weight cache hit for %q (%s)", key, humanize.Bytes(uint64(mem.ByteSize())))
		return mem, nil
	}
	mem, err := create()
	if err != nil {
		return nil, err
	}
	c.entries[key] = mem
	klog.V(2).Infof("weight cache miss for %q, created %s", key, humanize.Bytes(uint64(mem.ByteSize())))
	return mem, nil
}

// Size returns the number of distinct buffers held.
func (c *WeightCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalBytes returns the summed storage of all held buffers.
func (c *WeightCache) TotalBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, mem := range c.entries {
		total += mem.ByteSize()
	}
	return total
}

// blobHash is the content hash of the weight-cache key.
func blobHash(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

// weightCacheKey builds the dedup key of one internal blob.
func weightCacheKey(name string, idx, byteSize int, hash uint64) string {
	return fmt.Sprintf("%s_%d_%d_%d", name, idx, byteSize, hash)
}

// Internal blob indices: weights first, then biases, matching the order of a
// candidate's internal weight descriptors.
const (
	blobWeights = 0
	blobBiases  = 1
)

// gatherBlobs collects the raw blob of the given index from the node and from every
// merged node, in merge order. Weights of merged nodes are concatenated into one
// internal buffer.
func (b *BaseNode) gatherBlobs(idx int) ([]*Blob, error) {
	pick := func(n *BaseNode) *Blob {
		if n.layer == nil {
			return nil
		}
		if idx == blobWeights {
			return n.layer.Weights
		}
		return n.layer.Biases
	}
	blobs := []*Blob{pick(b)}
	for _, m := range b.mergedWith {
		blobs = append(blobs, pick(m.base()))
	}
	for _, blob := range blobs {
		if blob == nil || len(blob.Data) == 0 {
			return nil, errors.Errorf("cannot get internal blob %d for node %s", idx, b.name)
		}
	}
	return blobs, nil
}

// createInternalBlob materializes the blobs of the given index into freshly allocated
// memory laid out as desc, converting element types where the implementation's desired
// precision differs from the stored one.
func (b *BaseNode) createInternalBlob(desc memdesc.Desc, idx int, blobs []*Blob) (*backends.Memory, error) {
	mem, err := backends.NewMemory(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "internal blob %d for node %s", idx, b.name)
	}
	totalElems := 0
	for _, blob := range blobs {
		totalElems += len(blob.Data) / blob.DType.Size()
	}
	if totalElems > desc.Size() {
		return nil, errors.Errorf("internal blob %d for node %s does not fit: destination holds %d elements, blobs carry %d",
			idx, b.name, desc.Size(), totalElems)
	}
	offset := 0
	for _, blob := range blobs {
		n, err := convertBlobInto(mem, offset, blob)
		if err != nil {
			return nil, errors.Wrapf(err, "internal blob %d for node %s", idx, b.name)
		}
		offset += n
	}
	return mem, nil
}

// convertBlobInto copies one blob into mem starting at the given element offset,
// converting to mem's element type. It returns the number of elements written.
func convertBlobInto(mem *backends.Memory, offset int, blob *Blob) (int, error) {
	n := len(blob.Data) / blob.DType.Size()
	dst := mem.Desc().DType
	if blob.DType == dst {
		elemSize := dst.Size()
		copy(mem.Bytes()[offset*elemSize:], blob.Data)
		return n, nil
	}
	// Cross-precision materialization: the master copy is kept in one precision and the
	// selected implementation executes in another.
	switch {
	case blob.DType == dtypes.Float32 && dst == dtypes.BFloat16:
		src := unsafe.Slice((*float32)(unsafe.Pointer(&blob.Data[0])), n)
		flat := mem.Flat().([]bfloat16.BFloat16)
		for i, v := range src {
			flat[offset+i] = bfloat16.FromFloat32(v)
		}
	case blob.DType == dtypes.Float32 && dst == dtypes.Float16:
		src := unsafe.Slice((*float32)(unsafe.Pointer(&blob.Data[0])), n)
		flat := mem.Flat().([]float16.Float16)
		for i, v := range src {
			flat[offset+i] = float16.Fromfloat32(v)
		}
	case blob.DType == dtypes.BFloat16 && dst == dtypes.Float32:
		src := unsafe.Slice((*bfloat16.BFloat16)(unsafe.Pointer(&blob.Data[0])), n)
		flat := mem.Flat().([]float32)
		for i, v := range src {
			flat[offset+i] = v.Float32()
		}
	case blob.DType == dtypes.Bool && dst == dtypes.Int8:
		// Binary weights, bit-per-byte: same width, reinterpreted.
		copy(mem.Bytes()[offset:], blob.Data)
	case blob.DType == dtypes.Int8 && dst == dtypes.Float32:
		src := unsafe.Slice((*int8)(unsafe.Pointer(&blob.Data[0])), n)
		flat := mem.Flat().([]float32)
		for i, v := range src {
			flat[offset+i] = float32(v)
		}
	default:
		return 0, errors.Errorf("no conversion from %s weights to %s", blob.DType, dst)
	}
	return n, nil
}

// prepareMemory materializes every internal weight buffer the selected candidate needs,
// one per descriptor, deduplicated through the weight cache. The resulting buffers are
// shared and must be treated as read-only.
func (b *BaseNode) prepareMemory(weightDescs []memdesc.Desc) error {
	if len(b.internalBlobMemory) > 0 {
		return nil
	}
	for idx, desc := range weightDescs {
		blobs, err := b.gatherBlobs(idx)
		if err != nil {
			return err
		}
		concrete := desc
		if concrete.IsUninit() && !concrete.IsAny() {
			concrete = concrete.Initialized()
		}
		if concrete.IsAny() {
			concrete = memdesc.Make(desc.DType, memdesc.WeightsFormatForDims(desc.Rank(), false), desc.Dims...)
		}
		create := func() (*backends.Memory, error) {
			return b.createInternalBlob(concrete, idx, blobs)
		}
		var mem *backends.Memory
		if b.wcache != nil {
			byteSize := 0
			h := fnv.New64a()
			for _, blob := range blobs {
				byteSize += len(blob.Data)
				_, _ = h.Write(blob.Data)
			}
			mem, err = b.wcache.FindOrCreate(weightCacheKey(b.name, idx, byteSize, h.Sum64()), create)
		} else {
			mem, err = create()
		}
		if err != nil {
			return err
		}
		b.internalBlobMemory = append(b.internalBlobMemory, mem)
	}
	return nil
}
