// Package xhash is the hash collaborator consumed by the mutator-set core
// (the "H" of spec.md §6): a fixed-width digest type, pairwise hashing,
// index encoding, and the rejection-sampling helper that turns a digest
// into a uniform integer below a non-power-of-two modulus.
package xhash

import "encoding/binary"

// Digest is the output of the system hash. All commitments, leaf hashes,
// and proof elements are digests.
type Digest [32]byte

// Zero is the all-zero digest, used as the default receiver preimage for
// the two-digest addition-record form (SPEC_FULL.md §4.1).
var Zero Digest

// Hasher is the narrow interface the mutator-set core consumes. It mirrors
// the teacher's crypto.CryptoProvider split between a stable interface and
// swappable backends (crypto/provider.go).
type Hasher interface {
	Hash(d Digest) Digest
	HashPair(a, b Digest) Digest
	EncodeIndex(i uint64) Digest
	SampleIndexNotPowerOfTwo(d Digest, modulus uint64) uint64
}

// sampleIndexNotPowerOfTwo implements the rejection-sampling scheme
// described in spec.md §4.1: interpret the leading 8 bytes of the digest
// as a uint64, reject values that fall in the biased remainder above the
// largest multiple of modulus under 2^64, and re-hash (deterministically)
// on rejection instead of consuming fresh entropy.
func sampleIndexNotPowerOfTwo(rehash func(Digest) Digest, d Digest, modulus uint64) uint64 {
	if modulus == 0 {
		panic("xhash: modulus must be positive")
	}
	threshold := (^uint64(0) / modulus) * modulus
	cur := d
	for {
		word := binary.BigEndian.Uint64(cur[:8])
		if word < threshold {
			return word % modulus
		}
		cur = rehash(cur)
	}
}

// encodeIndex pads a uint64 into a digest the way the teacher encodes
// fixed-width integers into hash preimages (node/store/db.go's
// little-endian length-prefixed records), big-endian here since digests
// feed a hash function rather than a byte-comparison index.
func encodeIndex(i uint64) Digest {
	var d Digest
	binary.BigEndian.PutUint64(d[24:], i)
	return d
}
