package mutatorset

import (
	"accumulator.dev/mutatorset/chunk"
	"accumulator.dev/mutatorset/internal/mmr"
	"accumulator.dev/mutatorset/mserr"
)

// chunkProofRef is a live handle onto one chunk.Dictionary entry's MMR
// proof: since chunk.Dictionary is a plain map, a *mmr.MembershipProof
// taken from a ranged-over value is a pointer into a loop-local copy,
// not into the map. Every batch routine below collects refs, mutates
// through ref.entry.Proof via the raw pointer slice the mmr package
// wants, then calls commit to copy the mutated copies back into their
// owning maps.
type chunkProofRef struct {
	dict  chunk.Dictionary
	idx   uint64
	entry chunk.Entry
}

func (r *chunkProofRef) proof() *mmr.MembershipProof { return &r.entry.Proof }

func commitProofRefs(refs []*chunkProofRef) {
	for _, r := range refs {
		r.dict[r.idx] = r.entry
	}
}

// collectProofRefs returns one ref per entry in d, for dictionaries
// whose digests aren't changing (pure MMR-proof patching).
func collectProofRefs(d chunk.Dictionary) []*chunkProofRef {
	refs := make([]*chunkProofRef, 0, len(d))
	for idx, entry := range d {
		refs = append(refs, &chunkProofRef{dict: d, idx: idx, entry: entry})
	}
	return refs
}

func proofPointers(refs []*chunkProofRef) []*mmr.MembershipProof {
	out := make([]*mmr.MembershipProof, len(refs))
	for i, r := range refs {
		out[i] = r.proof()
	}
	return out
}

// UpdateMembershipProofFromAddition runs §4.4's "on addition" protocol
// for a single proof, against the AdditionEffect produced by the Add
// call that just happened. It returns the idempotence signal callers
// use to decide whether a proof needs to be re-persisted: true when the
// AOCL path grew, when a slide-time chunk entry was inserted, or when
// the window slid and the proof already holds any chunk entry (whether
// or not that entry's MMR path grew); false means the proof is
// unchanged.
func (s *SetCommitment) UpdateMembershipProofFromAddition(item Digest, proof *MembershipProof, eff AdditionEffect) bool {
	oldLen := len(proof.AuthPathAOCL.AuthPath)
	mmr.UpdateFromAppend(&proof.AuthPathAOCL, eff.PreAOCLCount, eff.PreAOCLPeaks, eff.Commitment, s.Hasher)
	changed := len(proof.AuthPathAOCL.AuthPath) != oldLen

	if !eff.Slid {
		return changed
	}

	archivedDigest := eff.ArchivedChunk.Hash(s.Hasher)
	refs := collectProofRefs(proof.TargetChunks)
	for _, r := range refs {
		mmr.UpdateFromAppend(r.proof(), eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
	}
	commitProofRefs(refs)
	if len(refs) > 0 {
		changed = true
	}

	if s.needsArchivedChunk(item, *proof, eff.ArchivedChunkIndex) {
		if _, exists := proof.TargetChunks[eff.ArchivedChunkIndex]; !exists {
			newAP := mmr.ProofForAppendedLeaf(eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
			proof.TargetChunks[eff.ArchivedChunkIndex] = chunk.Entry{Proof: newAP, Chunk: eff.ArchivedChunk.Clone()}
			changed = true
		}
	}
	return changed
}

// BatchUpdateMembershipProofsFromAddition applies
// UpdateMembershipProofFromAddition to every proof, sharing the AOCL
// append cascade and the slide-time chunk-proof cascade across all of
// them in two passes total rather than one per proof: a node holding M
// proofs pays for the cascade once per block, not M times. items and
// proofs must be the same length and pairwise-correspond; a nil proof
// is skipped.
func (s *SetCommitment) BatchUpdateMembershipProofsFromAddition(items []Digest, proofs []*MembershipProof, eff AdditionEffect) []bool {
	changed := make([]bool, len(proofs))

	aoclPtrs := make([]*mmr.MembershipProof, len(proofs))
	aoclOldLens := make([]int, len(proofs))
	for i, p := range proofs {
		if p == nil {
			continue
		}
		aoclPtrs[i] = &p.AuthPathAOCL
		aoclOldLens[i] = len(p.AuthPathAOCL.AuthPath)
	}
	mmr.BatchUpdateFromAppend(aoclPtrs, eff.PreAOCLCount, eff.PreAOCLPeaks, eff.Commitment, s.Hasher)
	for i, p := range proofs {
		if p != nil && len(p.AuthPathAOCL.AuthPath) != aoclOldLens[i] {
			changed[i] = true
		}
	}

	if !eff.Slid {
		return changed
	}

	archivedDigest := eff.ArchivedChunk.Hash(s.Hasher)

	// One cascade computation shared across every chunk-dictionary
	// entry belonging to every proof in the batch.
	var allRefs []*chunkProofRef
	var perProofTouched []bool
	for _, p := range proofs {
		touched := false
		if p != nil {
			refs := collectProofRefs(p.TargetChunks)
			if len(refs) > 0 {
				touched = true
			}
			allRefs = append(allRefs, refs...)
		}
		perProofTouched = append(perProofTouched, touched)
	}
	if len(allRefs) > 0 {
		mmr.BatchUpdateFromAppend(proofPointers(allRefs), eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
		commitProofRefs(allRefs)
	}
	for i, touched := range perProofTouched {
		if touched {
			changed[i] = true
		}
	}

	// The slide-time insertion is identical in content for every proof
	// that needs it: compute the new auth path once, clone it per proof.
	newAP := mmr.ProofForAppendedLeaf(eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
	for i, p := range proofs {
		if p == nil {
			continue
		}
		if !s.needsArchivedChunk(items[i], *p, eff.ArchivedChunkIndex) {
			continue
		}
		if _, exists := p.TargetChunks[eff.ArchivedChunkIndex]; exists {
			continue
		}
		p.TargetChunks[eff.ArchivedChunkIndex] = chunk.Entry{Proof: newAP.Clone(), Chunk: eff.ArchivedChunk.Clone()}
		changed[i] = true
	}
	return changed
}

// UpdateMembershipProofFromRemoval runs §4.4's "on application of
// removal" protocol: locally flip the bits rr.Indices set within any
// chunk this proof already holds, then batch-patch every MMR proof the
// proof holds (whether or not that chunk was itself mutated) against
// delta's authoritative pre-mutation leaves.
func (s *SetCommitment) UpdateMembershipProofFromRemoval(item Digest, proof *MembershipProof, rr RemovalRecord, delta RemovalDelta) (bool, error) {
	indices := s.indicesFor(item, *proof)
	touched := bitsByChunk(rr.Indices, s.Params.ChunkSize)

	if err := requireOwnChunksPresent(proof.TargetChunks, indices, touched, s.Params.ChunkSize, s.CurrentBatchIndex()); err != nil {
		return false, err
	}

	changed := setTouchedBits(proof.TargetChunks, touched)

	refs := collectProofRefs(proof.TargetChunks)
	others := proofPointers(refs)
	for _, m := range delta.Mutations {
		mmr.MutateLeaf(delta.LeafCount, m.LeafIndex, m.OldProof, m.OldLeaf, m.NewLeaf, others, s.Hasher)
	}
	commitProofRefs(refs)
	if len(delta.Mutations) > 0 && len(others) > 0 {
		changed = true
	}
	return changed, nil
}

// BatchUpdateMembershipProofsFromRemoval applies
// UpdateMembershipProofFromRemoval to every proof, sharing one MMR
// batch-mutation pass across all of their chunk-dictionary MMR proofs,
// generalizing the single-proof update across every proof in the batch
// rather than running the mutation pass once per proof.
func (s *SetCommitment) BatchUpdateMembershipProofsFromRemoval(items []Digest, proofs []*MembershipProof, rr RemovalRecord, delta RemovalDelta) ([]bool, error) {
	changed := make([]bool, len(proofs))
	touched := bitsByChunk(rr.Indices, s.Params.ChunkSize)
	currentBatch := s.CurrentBatchIndex()

	var allRefs []*chunkProofRef
	for i, p := range proofs {
		if p == nil {
			continue
		}
		indices := s.indicesFor(items[i], *p)
		if err := requireOwnChunksPresent(p.TargetChunks, indices, touched, s.Params.ChunkSize, currentBatch); err != nil {
			return nil, err
		}
		if setTouchedBits(p.TargetChunks, touched) {
			changed[i] = true
		}
		allRefs = append(allRefs, collectProofRefs(p.TargetChunks)...)
	}

	others := proofPointers(allRefs)
	for _, m := range delta.Mutations {
		mmr.MutateLeaf(delta.LeafCount, m.LeafIndex, m.OldProof, m.OldLeaf, m.NewLeaf, others, s.Hasher)
	}
	commitProofRefs(allRefs)
	if len(delta.Mutations) > 0 && len(others) > 0 {
		changed = markAllTrue(changed)
	}
	return changed, nil
}

// UpdateRemovalRecordFromAddition runs §4.5's "on addition" protocol
// for a single outstanding removal record: identical slide-time insert
// logic to the membership-proof case, but keyed on rr.Indices directly
// since a removal record carries no item/randomness to re-derive them
// from.
func (s *SetCommitment) UpdateRemovalRecordFromAddition(rr *RemovalRecord, eff AdditionEffect) bool {
	if !eff.Slid {
		return false
	}
	changed := false

	archivedDigest := eff.ArchivedChunk.Hash(s.Hasher)
	refs := collectProofRefs(rr.TargetChunks)
	for _, r := range refs {
		mmr.UpdateFromAppend(r.proof(), eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
	}
	commitProofRefs(refs)
	if len(refs) > 0 {
		changed = true
	}

	if rrNeedsChunk(rr.Indices, eff.ArchivedChunkIndex, s.Params.ChunkSize) {
		if _, exists := rr.TargetChunks[eff.ArchivedChunkIndex]; !exists {
			newAP := mmr.ProofForAppendedLeaf(eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
			rr.TargetChunks[eff.ArchivedChunkIndex] = chunk.Entry{Proof: newAP, Chunk: eff.ArchivedChunk.Clone()}
			changed = true
		}
	}
	return changed
}

// BatchUpdateRemovalRecordsFromAddition is the removal-record
// counterpart of BatchUpdateMembershipProofsFromAddition: one shared
// cascade over every chunk-dictionary MMR proof across every record in
// the batch, and one shared archived-chunk auth path cloned into every
// record whose own indices land in the newly archived chunk.
func (s *SetCommitment) BatchUpdateRemovalRecordsFromAddition(rrs []*RemovalRecord, eff AdditionEffect) []bool {
	changed := make([]bool, len(rrs))
	if !eff.Slid {
		return changed
	}

	archivedDigest := eff.ArchivedChunk.Hash(s.Hasher)
	var allRefs []*chunkProofRef
	var perRRTouched []bool
	for _, rr := range rrs {
		touched := false
		if rr != nil {
			refs := collectProofRefs(rr.TargetChunks)
			if len(refs) > 0 {
				touched = true
			}
			allRefs = append(allRefs, refs...)
		}
		perRRTouched = append(perRRTouched, touched)
	}
	if len(allRefs) > 0 {
		mmr.BatchUpdateFromAppend(proofPointers(allRefs), eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
		commitProofRefs(allRefs)
	}
	for i, touched := range perRRTouched {
		if touched {
			changed[i] = true
		}
	}

	newAP := mmr.ProofForAppendedLeaf(eff.PreSWBFCount, eff.PreSWBFPeaks, archivedDigest, s.Hasher)
	for i, rr := range rrs {
		if rr == nil {
			continue
		}
		if !rrNeedsChunk(rr.Indices, eff.ArchivedChunkIndex, s.Params.ChunkSize) {
			continue
		}
		if _, exists := rr.TargetChunks[eff.ArchivedChunkIndex]; exists {
			continue
		}
		rr.TargetChunks[eff.ArchivedChunkIndex] = chunk.Entry{Proof: newAP.Clone(), Chunk: eff.ArchivedChunk.Clone()}
		changed[i] = true
	}
	return changed
}

// UpdateRemovalRecordFromRemoval runs §4.5's "on another removal"
// protocol: the same own-chunk bit-setting logic as the
// membership-proof case, plus one MMR batch update sourced from the
// applied record's authoritative dictionary.
func (s *SetCommitment) UpdateRemovalRecordFromRemoval(rr *RemovalRecord, appliedRR RemovalRecord, delta RemovalDelta) (bool, error) {
	touched := bitsByChunk(appliedRR.Indices, s.Params.ChunkSize)
	if err := requireOwnChunksPresent(rr.TargetChunks, rr.Indices, touched, s.Params.ChunkSize, s.CurrentBatchIndex()); err != nil {
		return false, err
	}
	changed := setTouchedBits(rr.TargetChunks, touched)

	refs := collectProofRefs(rr.TargetChunks)
	others := proofPointers(refs)
	for _, m := range delta.Mutations {
		mmr.MutateLeaf(delta.LeafCount, m.LeafIndex, m.OldProof, m.OldLeaf, m.NewLeaf, others, s.Hasher)
	}
	commitProofRefs(refs)
	if len(delta.Mutations) > 0 && len(others) > 0 {
		changed = true
	}
	return changed, nil
}

// BatchUpdateRemovalRecordsFromRemoval shares one MMR batch-mutation
// pass across every outstanding removal record's chunk-dictionary
// proofs, mirroring BatchUpdateMembershipProofsFromRemoval.
func (s *SetCommitment) BatchUpdateRemovalRecordsFromRemoval(rrs []*RemovalRecord, appliedRR RemovalRecord, delta RemovalDelta) ([]bool, error) {
	changed := make([]bool, len(rrs))
	touched := bitsByChunk(appliedRR.Indices, s.Params.ChunkSize)
	currentBatch := s.CurrentBatchIndex()

	var allRefs []*chunkProofRef
	for i, rr := range rrs {
		if rr == nil {
			continue
		}
		if err := requireOwnChunksPresent(rr.TargetChunks, rr.Indices, touched, s.Params.ChunkSize, currentBatch); err != nil {
			return nil, err
		}
		if setTouchedBits(rr.TargetChunks, touched) {
			changed[i] = true
		}
		allRefs = append(allRefs, collectProofRefs(rr.TargetChunks)...)
	}

	others := proofPointers(allRefs)
	for _, m := range delta.Mutations {
		mmr.MutateLeaf(delta.LeafCount, m.LeafIndex, m.OldProof, m.OldLeaf, m.NewLeaf, others, s.Hasher)
	}
	commitProofRefs(allRefs)
	if len(delta.Mutations) > 0 && len(others) > 0 {
		changed = markAllTrue(changed)
	}
	return changed, nil
}

// needsArchivedChunk reports whether any of item's derived indices
// fall in the chunk that just got archived, i.e. whether proof needs a
// fresh target-chunk entry inserted for it.
func (s *SetCommitment) needsArchivedChunk(item Digest, proof MembershipProof, archivedChunkIndex uint64) bool {
	for _, b := range s.indicesFor(item, proof) {
		if b/s.Params.ChunkSize == archivedChunkIndex {
			return true
		}
	}
	return false
}

// rrNeedsChunk is needsArchivedChunk's removal-record counterpart,
// operating directly on the record's own (already derived) indices.
func rrNeedsChunk(indices []uint64, archivedChunkIndex, chunkSize uint64) bool {
	for _, b := range indices {
		if b/chunkSize == archivedChunkIndex {
			return true
		}
	}
	return false
}

// bitsByChunk partitions a sorted index list into chunk-local bit
// positions, the grouping the update protocols share
// (SetCommitment.RemoveWithDelta does the same grouping inline).
func bitsByChunk(indices []uint64, chunkSize uint64) map[uint64][]uint32 {
	out := make(map[uint64][]uint32)
	for _, b := range indices {
		idx := b / chunkSize
		out[idx] = append(out[idx], uint32(b%chunkSize))
	}
	return out
}

// setTouchedBits sets, within every dictionary entry touched has a
// grouping for, the corresponding local bit positions, reporting
// whether any entry was actually present and mutated.
func setTouchedBits(dict chunk.Dictionary, touched map[uint64][]uint32) bool {
	changed := false
	for idx, bits := range touched {
		entry, ok := dict[idx]
		if !ok {
			continue
		}
		newChunk := entry.Chunk.Clone()
		for _, bit := range bits {
			newChunk.SetBit(bit)
		}
		entry.Chunk = newChunk
		dict[idx] = entry
		changed = true
	}
	return changed
}

// markAllTrue returns a copy of changed with every element set, used
// by the batch protocols once a shared cascade pass is known to have
// touched at least one proof's chunk dictionary.
func markAllTrue(changed []bool) []bool {
	out := make([]bool, len(changed))
	for i := range out {
		out[i] = true
	}
	return out
}

// requireOwnChunksPresent enforces §7's MissingChunkOnUpdate: if the
// item's own derived indices include an already-archived chunk that
// the removal being applied also touches, the proof's dictionary must
// already hold an entry for it (inserted at the slide that archived
// it); if it doesn't, the proof is stale and the caller must re-derive
// it from archival state.
func requireOwnChunksPresent(dict chunk.Dictionary, ownIndices []uint64, touched map[uint64][]uint32, chunkSize, currentBatch uint64) error {
	for _, b := range ownIndices {
		idx := b / chunkSize
		if idx >= currentBatch {
			continue
		}
		if _, touchedHere := touched[idx]; !touchedHere {
			continue
		}
		if _, ok := dict[idx]; !ok {
			return mserr.Newf(mserr.MissingChunkOnUpdate, "removal touched archived chunk %d which this proof expected to hold but does not", idx)
		}
	}
	return nil
}
