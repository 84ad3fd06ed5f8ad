// Package chunk implements Chunk and ChunkDictionary: a CHUNK_SIZE-wide
// slice of the active Bloom window, archived once it slides out, and
// the map from chunk index to the MMR membership proof and chunk
// content a removal record needs to update the set commitment.
package chunk

import (
	"sort"

	"accumulator.dev/mutatorset/internal/mmr"
	"accumulator.dev/mutatorset/internal/xhash"
)

// Chunk is a sparse set of bit positions within a CHUNK_SIZE-wide Bloom
// filter segment, grounded on original_source/chunk.rs's Vec<u32>
// representation; Go's map gives O(1) set/unset/get without the
// linear scans the Rust Vec version does.
type Chunk struct {
	bits map[uint32]struct{}
}

// Empty returns a chunk with no bits set.
func Empty() Chunk {
	return Chunk{bits: make(map[uint32]struct{})}
}

// FromIndices builds a chunk from an explicit bit-position list, the
// inverse of ToIndices, used when deserializing an archived chunk.
func FromIndices(indices []uint32) Chunk {
	c := Empty()
	for _, i := range indices {
		c.bits[i] = struct{}{}
	}
	return c
}

// SetBit sets the bit at index.
func (c Chunk) SetBit(index uint32) {
	c.bits[index] = struct{}{}
}

// UnsetBit clears the bit at index.
func (c Chunk) UnsetBit(index uint32) {
	delete(c.bits, index)
}

// GetBit reports whether the bit at index is set.
func (c Chunk) GetBit(index uint32) bool {
	_, ok := c.bits[index]
	return ok
}

// IsUnset reports whether no bit in the chunk is set.
func (c Chunk) IsUnset() bool {
	return len(c.bits) == 0
}

// Or returns the bitwise union of c and other.
func (c Chunk) Or(other Chunk) Chunk {
	ret := Empty()
	for i := range c.bits {
		ret.bits[i] = struct{}{}
	}
	for i := range other.bits {
		ret.bits[i] = struct{}{}
	}
	return ret
}

// And returns the bitwise intersection of c and other.
func (c Chunk) And(other Chunk) Chunk {
	ret := Empty()
	for i := range c.bits {
		if _, ok := other.bits[i]; ok {
			ret.bits[i] = struct{}{}
		}
	}
	return ret
}

// XorAssign mutates c in place to be the bitwise XOR of c and other.
func (c Chunk) XorAssign(other Chunk) {
	for i := range other.bits {
		if _, ok := c.bits[i]; ok {
			delete(c.bits, i)
		} else {
			c.bits[i] = struct{}{}
		}
	}
}

// ToIndices returns the set bit positions in ascending order.
func (c Chunk) ToIndices() []uint32 {
	out := make([]uint32, 0, len(c.bits))
	for i := range c.bits {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Hash commits to the chunk's content as a leaf digest for the
// SWBF-inactive MMR, hashing the sorted index list the way
// original_source/chunk.rs's Hashable::to_sequence feeds a
// domain-specific hasher; here we feed a general-purpose byte encoding
// through the Hasher collaborator instead of a field-element sequence.
// spec.md §3 describes this as hashing "the dense representation": the
// sorted sparse index list and the dense CHUNK_SIZE-bit vector it
// represents carry the same information, so folding the sparse list
// (O(set bits) instead of O(CHUNK_SIZE)) commits to the same content
// and the set/verify sides here always agree on which form is hashed.
func (c Chunk) Hash(h xhash.Hasher) xhash.Digest {
	indices := c.ToIndices()
	acc := xhash.Zero
	for _, idx := range indices {
		acc = h.HashPair(acc, h.EncodeIndex(uint64(idx)))
	}
	return h.Hash(acc)
}

// Dictionary maps a chunk index (the chunk's position within the
// SWBF-inactive MMR) to the chunk's content and its current membership
// proof against that MMR, matching removal_record.rs's later
// HashMap<u64, (MembershipProof, Chunk)> ChunkDictionary shape (the
// Vec-based accumulation_scheme.rs form was superseded and is not
// followed).
type Dictionary map[uint64]Entry

// Entry pairs a chunk's content with its MMR membership proof.
type Entry struct {
	Proof mmr.MembershipProof
	Chunk Chunk
}

// NewDictionary returns an empty chunk dictionary.
func NewDictionary() Dictionary {
	return make(Dictionary)
}

// Clone deep-copies the dictionary, needed wherever a removal record or
// membership proof is cloned before a batch update mutates it in
// place.
func (d Dictionary) Clone() Dictionary {
	out := make(Dictionary, len(d))
	for k, v := range d {
		out[k] = Entry{Proof: v.Proof.Clone(), Chunk: v.Chunk.cloneBits()}
	}
	return out
}

func (c Chunk) cloneBits() Chunk {
	return c.Clone()
}

// Clone returns an independent copy of c.
func (c Chunk) Clone() Chunk {
	out := Empty()
	for i := range c.bits {
		out.bits[i] = struct{}{}
	}
	return out
}
