// Package mutatorset implements the cryptographic accumulator: a
// SetCommitment, AdditionRecord, RemovalRecord, and MembershipProof,
// plus the batch-update protocols that keep proofs and removal records
// valid as the commitment evolves. Grounded throughout on
// original_source/set_commitment.rs and original_source/
// accumulation_scheme.rs and removal_record.rs's update protocols.
package mutatorset

import (
	"accumulator.dev/mutatorset/chunk"
	"accumulator.dev/mutatorset/internal/mmr"
	"accumulator.dev/mutatorset/internal/xhash"
)

// Digest is re-exported so callers don't need to import internal/xhash.
type Digest = xhash.Digest

// AdditionRecord is the public addition input: the canonical
// commitment digest plus the AOCL snapshot it was computed against,
// following accumulation_scheme.rs's AdditionRecord.aocl_snapshot /
// has_matching_aocl.
type AdditionRecord struct {
	CanonicalCommitment Digest

	aoclPeaks []Digest
	aoclCount uint64
}

// MembershipProof is the witness a holder presents to prove an item is
// a member of the set. SenderRandomness and ReceiverPreimage together
// realize the three-digest commitment form; CommitSimple/ProveSimple
// set ReceiverPreimage to the zero digest for the simpler two-digest
// form.
type MembershipProof struct {
	SenderRandomness Digest
	ReceiverPreimage Digest
	AuthPathAOCL     mmr.MembershipProof
	TargetChunks     chunk.Dictionary
	CachedIndices    []uint64
}

// Clone deep-copies the proof: every authentication-path hash is
// copied by value so that holding a proof never aliases state the
// SetCommitment goes on to mutate.
func (p MembershipProof) Clone() MembershipProof {
	out := MembershipProof{
		SenderRandomness: p.SenderRandomness,
		ReceiverPreimage: p.ReceiverPreimage,
		AuthPathAOCL:     p.AuthPathAOCL.Clone(),
		TargetChunks:     p.TargetChunks.Clone(),
	}
	if p.CachedIndices != nil {
		out.CachedIndices = append([]uint64(nil), p.CachedIndices...)
	}
	return out
}

// AdditionEffect is the pre/post-add state the membership-proof and
// removal-record batch-update protocols need to react to a single Add
// call: the AOCL snapshot from just before the append,
// and, when the slide rule fired, the archived chunk's content and the
// SWBF-inactive snapshot from just before it was appended as a new
// leaf. Produced by SetCommitment.AddWithEffect.
type AdditionEffect struct {
	PreAOCLCount uint64
	PreAOCLPeaks []Digest
	Commitment   Digest

	Slid               bool
	ArchivedChunkIndex uint64
	ArchivedChunk      chunk.Chunk
	PreSWBFCount       uint64
	PreSWBFPeaks       []Digest
}

// RemovalDelta is the authoritative record of which SWBF-inactive
// leaves a single Remove call mutated, in the form the MMR batch
// leaf-mutation routine needs to patch every *other* outstanding proof
// that happens to share an ancestor with one of them. Produced by
// SetCommitment.RemoveWithDelta.
type RemovalDelta struct {
	LeafCount uint64
	Mutations []mmr.LeafMutation
}

// RemovalRecord is produced by drop and consumed by remove: the
// NUM_TRIALS bit indices the item occupies, and the dictionary entries
// needed to witness them against the SWBF-inactive MMR.
type RemovalRecord struct {
	Indices      []uint64
	TargetChunks chunk.Dictionary
}

// Clone deep-copies the record.
func (r RemovalRecord) Clone() RemovalRecord {
	return RemovalRecord{
		Indices:      append([]uint64(nil), r.Indices...),
		TargetChunks: r.TargetChunks.Clone(),
	}
}

// Digest hashes the record's sorted indices together with its chunk
// dictionary, letting a removal record itself be committed to (e.g.
// folded into a block's authenticated spend list), ported from
// removal_record.rs's Hashable::to_sequence.
func (r RemovalRecord) Digest(h xhash.Hasher) Digest {
	acc := xhash.Zero
	for _, idx := range r.Indices {
		acc = h.HashPair(acc, h.EncodeIndex(idx))
	}
	for _, chunkIdx := range sortedChunkIndices(r.TargetChunks) {
		entry := r.TargetChunks[chunkIdx]
		acc = h.HashPair(acc, h.EncodeIndex(chunkIdx))
		acc = h.HashPair(acc, entry.Chunk.Hash(h))
	}
	return h.Hash(acc)
}
