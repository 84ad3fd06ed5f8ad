// Package indexderive implements the deterministic map from (item,
// randomness, leaf_index) to the NumTrials bit positions an item
// occupies in the conceptually infinite Bloom filter, anchored to the
// batch the item was added in so its indices never move.
package indexderive

import (
	"sort"

	"accumulator.dev/mutatorset/internal/xhash"
)

// Params bundles the window/chunk/trial counts so test configurations
// can shrink them below production defaults (carried from the Config
// type rather than hardcoded as build-time constants).
type Params struct {
	WindowSize uint64
	ChunkSize  uint64
	BatchSize  uint64
	NumTrials  int
}

// BatchIndex returns the batch index for an AOCL leaf index:
// floor(i / BatchSize).
func (p Params) BatchIndex(leafIndex uint64) uint64 {
	return leafIndex / p.BatchSize
}

// Derive computes the NumTrials distinct bit positions item occupies:
// rhs = H(item, H(encode(leaf_index), randomness)); for counter i = 0,
// 1, 2, ..., d_i = H(encode(i), rhs), sample a uniform value in
// [0, WindowSize) from d_i via rejection sampling, offset by the
// window's base, and collect until exactly NumTrials distinct values
// are gathered.
func Derive(item, randomness xhash.Digest, leafIndex uint64, p Params, h xhash.Hasher) []uint64 {
	base := p.BatchIndex(leafIndex) * p.ChunkSize
	inner := h.HashPair(h.EncodeIndex(leafIndex), randomness)
	rhs := h.HashPair(item, inner)

	seen := make(map[uint64]struct{}, p.NumTrials)
	out := make([]uint64, 0, p.NumTrials)
	for i := uint64(0); len(out) < p.NumTrials; i++ {
		di := h.HashPair(h.EncodeIndex(i), rhs)
		sample := h.SampleIndexNotPowerOfTwo(di, p.WindowSize)
		idx := base + sample
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
