package mutatorset

import (
	"accumulator.dev/mutatorset/activewindow"
	"accumulator.dev/mutatorset/chunk"
	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/mmr"
	"accumulator.dev/mutatorset/internal/xhash"
	"accumulator.dev/mutatorset/mserr"
)

// SetCommitment is the core accumulator: a pair of MMRs (AOCL,
// SWBF-inactive) plus an ActiveWindow, grounded on
// original_source/set_commitment.rs's SetCommitment<H, M> struct.
type SetCommitment struct {
	Params indexderive.Params
	Hasher xhash.Hasher

	AOCL         mmr.Forest
	SWBFInactive mmr.Forest
	Window       *activewindow.ActiveWindow
}

// New returns an empty set commitment backed by peaks-only
// accumulators. The in-memory core itself does not persist or roll
// back state; see archival for that.
func New(params indexderive.Params, h xhash.Hasher) *SetCommitment {
	return NewWithForests(params, h, mmr.NewAccumulator(), mmr.NewAccumulator())
}

// NewWithForests returns a set commitment backed by caller-supplied
// Forest implementations, letting the archival wrapper swap in
// *mmr.Archival for both AOCL and SWBF-inactive so it can revert
// additions and removals.
func NewWithForests(params indexderive.Params, h xhash.Hasher, aocl, swbfInactive mmr.Forest) *SetCommitment {
	return &SetCommitment{
		Params:       params,
		Hasher:       h,
		AOCL:         aocl,
		SWBFInactive: swbfInactive,
		Window:       activewindow.New(params.WindowSize, params.ChunkSize),
	}
}

// CurrentBatchIndex is the chunk index at which the active window
// currently begins.
func (s *SetCommitment) CurrentBatchIndex() uint64 {
	return s.Params.BatchIndex(s.AOCL.CountLeaves())
}

func (s *SetCommitment) commitDigest(item, senderRandomness, receiverPreimage Digest) Digest {
	receiverDigest := s.Hasher.Hash(receiverPreimage)
	inner := s.Hasher.HashPair(senderRandomness, receiverDigest)
	return s.Hasher.HashPair(item, inner)
}

// Commit returns the AdditionRecord for (item, senderRandomness,
// receiverPreimage) without mutating the commitment, using the
// three-digest canonical-commitment form H(item, H(senderRandomness,
// H(receiverPreimage))). The record captures the current AOCL
// peaks/leaf count as the snapshot Add gates against.
func (s *SetCommitment) Commit(item, senderRandomness, receiverPreimage Digest) AdditionRecord {
	return AdditionRecord{
		CanonicalCommitment: s.commitDigest(item, senderRandomness, receiverPreimage),
		aoclPeaks:           append([]Digest(nil), s.AOCL.GetPeaks()...),
		aoclCount:           s.AOCL.CountLeaves(),
	}
}

// CommitSimple wraps Commit with the zero digest as receiver preimage,
// giving the simpler two-digest form H(item, randomness) for callers
// that don't need a separate receiver preimage.
func (s *SetCommitment) CommitSimple(item, randomness Digest) AdditionRecord {
	return s.Commit(item, randomness, xhash.Zero)
}

func peaksEqual(a, b []Digest) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Add appends record's commitment to the AOCL, sliding the active
// window when the slide rule fires. The AOCL snapshot gate is checked
// first; a mismatch is a fatal precondition violation.
func (s *SetCommitment) Add(record AdditionRecord) error {
	_, err := s.AddWithEffect(record)
	return err
}

// AddWithEffect behaves exactly like Add but also returns the
// AdditionEffect the membership-proof and removal-record
// batch-update protocols need: the pre-add AOCL/SWBF
// snapshot, and, if the slide rule fired, the archived chunk's content
// and index. The archived chunk's bit content only exists transiently
// inside ActiveWindow.Slide, so any caller that intends to keep proofs
// current across this Add must capture it here rather than recompute
// it later.
func (s *SetCommitment) AddWithEffect(record AdditionRecord) (AdditionEffect, error) {
	preAOCLCount := s.AOCL.CountLeaves()
	preAOCLPeaks := s.AOCL.GetPeaks()
	if record.aoclCount != preAOCLCount || !peaksEqual(record.aoclPeaks, preAOCLPeaks) {
		return AdditionEffect{}, mserr.New(mserr.PreconditionViolation, "addition record's aocl snapshot does not match current state")
	}

	eff := AdditionEffect{
		PreAOCLCount: preAOCLCount,
		PreAOCLPeaks: preAOCLPeaks,
		Commitment:   record.CanonicalCommitment,
	}

	s.AOCL.Append(record.CanonicalCommitment, s.Hasher)
	n := s.AOCL.CountLeaves()
	if n%s.Params.BatchSize == 0 {
		eff.Slid = true
		eff.PreSWBFCount = s.SWBFInactive.CountLeaves()
		eff.PreSWBFPeaks = s.SWBFInactive.GetPeaks()
		eff.ArchivedChunkIndex = n/s.Params.BatchSize - 1
		eff.ArchivedChunk = s.Window.Slide()
		s.SWBFInactive.Append(eff.ArchivedChunk.Hash(s.Hasher), s.Hasher)
	}
	return eff, nil
}

// Prove produces the MembershipProof for an item about to be committed
// via Add with the same (senderRandomness, receiverPreimage). The AOCL
// authentication path is computed as the path *after* the append, so
// callers must call Prove before Add for the same item (the common
// "prove then add" ordering).
func (s *SetCommitment) Prove(item, senderRandomness, receiverPreimage Digest, cacheIndices bool) MembershipProof {
	commitment := s.commitDigest(item, senderRandomness, receiverPreimage)
	authPath := mmr.ProofForAppendedLeaf(s.AOCL.CountLeaves(), s.AOCL.GetPeaks(), commitment, s.Hasher)
	proof := MembershipProof{
		SenderRandomness: senderRandomness,
		ReceiverPreimage: receiverPreimage,
		AuthPathAOCL:     authPath,
		TargetChunks:     chunk.NewDictionary(),
	}
	if cacheIndices {
		proof.CachedIndices = indexderive.Derive(item, senderRandomness, authPath.LeafIndex, s.Params, s.Hasher)
	}
	return proof
}

// ProveSimple wraps Prove with the zero receiver preimage, pairing with
// CommitSimple.
func (s *SetCommitment) ProveSimple(item, randomness Digest, cacheIndices bool) MembershipProof {
	return s.Prove(item, randomness, xhash.Zero, cacheIndices)
}

func (s *SetCommitment) indicesFor(item Digest, proof MembershipProof) []uint64 {
	if proof.CachedIndices != nil {
		return proof.CachedIndices
	}
	return indexderive.Derive(item, proof.SenderRandomness, proof.AuthPathAOCL.LeafIndex, s.Params, s.Hasher)
}

// Verify checks a MembershipProof against the current commitment
// state: the AOCL authentication path, every target chunk's proof
// against the SWBF-inactive peaks, and that at least one derived index
// is unset in its chunk or the active window. It never errors: a
// negative result is a normal outcome, not a fault.
func (s *SetCommitment) Verify(item Digest, proof MembershipProof) bool {
	commitment := s.commitDigest(item, proof.SenderRandomness, proof.ReceiverPreimage)
	if !mmr.Verify(s.AOCL.GetPeaks(), s.AOCL.CountLeaves(), commitment, proof.AuthPathAOCL, s.Hasher) {
		return false
	}

	indices := s.indicesFor(item, proof)
	currentBatch := s.CurrentBatchIndex()
	swbfPeaks := s.SWBFInactive.GetPeaks()
	swbfCount := s.SWBFInactive.CountLeaves()

	anyUnset := false
	for _, b := range indices {
		chunkIdx := b / s.Params.ChunkSize
		if chunkIdx < currentBatch {
			entry, ok := proof.TargetChunks[chunkIdx]
			if !ok {
				return false
			}
			if !mmr.Verify(swbfPeaks, swbfCount, entry.Chunk.Hash(s.Hasher), entry.Proof, s.Hasher) {
				return false
			}
			if !entry.Chunk.GetBit(uint32(b % s.Params.ChunkSize)) {
				anyUnset = true
			}
		} else {
			windowPos := b - currentBatch*s.Params.ChunkSize
			if !s.Window.GetBit(windowPos) {
				anyUnset = true
			}
		}
	}
	return anyUnset
}

// Drop returns the RemovalRecord that retires item's membership,
// deriving indices from the proof (using the cache if present) and
// carrying the proof's target chunks verbatim.
func (s *SetCommitment) Drop(item Digest, proof MembershipProof) RemovalRecord {
	indices := s.indicesFor(item, proof)
	return RemovalRecord{
		Indices:      append([]uint64(nil), indices...),
		TargetChunks: proof.TargetChunks.Clone(),
	}
}

// Remove applies a RemovalRecord: active-window indices are set
// directly; archived indices mutate the corresponding SWBF-inactive MMR
// leaves in one batch pass, touched chunks processed in sorted order so
// the result is independent of map iteration order. The record's chunk
// dictionary must validate against the current
// SWBF-inactive peaks, or the operation is a fatal precondition
// violation.
func (s *SetCommitment) Remove(rr RemovalRecord) error {
	_, err := s.RemoveWithDelta(rr)
	return err
}

// RemoveWithDelta behaves exactly like Remove but also returns the
// RemovalDelta the batch-update protocols need: a (proof, old leaf, new
// leaf) triple for every SWBF-inactive leaf this call touched, in the
// order the mutations were applied, each proof valid against the forest
// as left by the mutations before it. Outstanding membership
// proofs and removal records that hold an MMR proof sharing an
// ancestor with one of these leaves, but were not themselves involved
// in rr, still need patching — exactly what
// mmr.BatchMutateLeafAndUpdateMPs's "others" parameter is for.
func (s *SetCommitment) RemoveWithDelta(rr RemovalRecord) (RemovalDelta, error) {
	swbfPeaks := s.SWBFInactive.GetPeaks()
	swbfCount := s.SWBFInactive.CountLeaves()
	for idx, entry := range rr.TargetChunks {
		if !mmr.Verify(swbfPeaks, swbfCount, entry.Chunk.Hash(s.Hasher), entry.Proof, s.Hasher) {
			return RemovalDelta{}, mserr.Newf(mserr.PreconditionViolation, "removal record chunk %d fails to validate against swbf-inactive peaks", idx)
		}
	}

	currentBatch := s.CurrentBatchIndex()
	byChunk := make(map[uint64][]uint32)
	for _, b := range rr.Indices {
		chunkIdx := b / s.Params.ChunkSize
		local := uint32(b % s.Params.ChunkSize)
		if chunkIdx >= currentBatch {
			s.Window.SetBit(b - currentBatch*s.Params.ChunkSize)
		} else {
			byChunk[chunkIdx] = append(byChunk[chunkIdx], local)
		}
	}
	if len(byChunk) == 0 {
		return RemovalDelta{LeafCount: swbfCount}, nil
	}

	// Share one batch mutation pass across every touched chunk: build
	// mutable proof pointers up front so that if one mutated chunk is a
	// sibling of another within the same mountain, the second mutation
	// sees the first's effect on their shared ancestor.
	proofPtrs := make(map[uint64]*mmr.MembershipProof, len(rr.TargetChunks))
	others := make([]*mmr.MembershipProof, 0, len(rr.TargetChunks))
	for idx, entry := range rr.TargetChunks {
		p := entry.Proof.Clone()
		proofPtrs[idx] = &p
		others = append(others, &p)
	}

	delta := RemovalDelta{LeafCount: swbfCount}
	chunkIdxs := sortedChunkIndices(byChunkDictionary(byChunk))
	for _, chunkIdx := range chunkIdxs {
		entry, ok := rr.TargetChunks[chunkIdx]
		if !ok {
			return RemovalDelta{}, mserr.Newf(mserr.MissingChunkOnUpdate, "removal touches chunk %d not present in target_chunks", chunkIdx)
		}
		proofPtr := proofPtrs[chunkIdx]
		oldDigest := entry.Chunk.Hash(s.Hasher)
		newChunk := entry.Chunk.Clone()
		for _, bitPos := range byChunk[chunkIdx] {
			newChunk.SetBit(bitPos)
		}
		newDigest := newChunk.Hash(s.Hasher)

		// Record the leaf's proof as patched by the earlier mutations
		// of this call (proofPtr, not the record's original entry.Proof):
		// replaying the mutations in order against other outstanding
		// proofs needs each one anchored on the forest it was applied to.
		delta.Mutations = append(delta.Mutations, mmr.LeafMutation{
			LeafIndex: chunkIdx,
			OldProof:  proofPtr.Clone(),
			OldLeaf:   oldDigest,
			NewLeaf:   newDigest,
		})

		newRoot, ok := mmr.MutateLeaf(swbfCount, chunkIdx, *proofPtr, oldDigest, newDigest, others, s.Hasher)
		if !ok {
			return RemovalDelta{}, mserr.Newf(mserr.PreconditionViolation, "mmr leaf mutation failed for chunk %d", chunkIdx)
		}
		if !s.SWBFInactive.MutateLeaf(chunkIdx, newDigest, *proofPtr, s.Hasher) {
			return RemovalDelta{}, mserr.Newf(mserr.PreconditionViolation, "accumulator rejected leaf mutation for chunk %d", chunkIdx)
		}
		_ = newRoot

		rr.TargetChunks[chunkIdx] = chunk.Entry{Proof: *proofPtr, Chunk: newChunk}
	}
	return delta, nil
}

// byChunkDictionary adapts the plain map[uint64][]uint32 used while
// partitioning indices into a chunk.Dictionary purely so
// sortedChunkIndices can be reused for deterministic iteration order;
// the Entry values are never read.
func byChunkDictionary(m map[uint64][]uint32) chunk.Dictionary {
	d := make(chunk.Dictionary, len(m))
	for k := range m {
		d[k] = chunk.Entry{}
	}
	return d
}

// Hash folds the AOCL peaks, SWBF-inactive peaks, and active window
// into one digest, suitable for embedding in a host's block-header
// commitment.
func (s *SetCommitment) Hash() Digest {
	aoclRoot := mmr.BagPeaks(s.AOCL.GetPeaks(), s.Hasher)
	swbfRoot := mmr.BagPeaks(s.SWBFInactive.GetPeaks(), s.Hasher)
	windowDigest := s.windowDigest()
	return s.Hasher.HashPair(s.Hasher.HashPair(aoclRoot, swbfRoot), windowDigest)
}

func (s *SetCommitment) windowDigest() Digest {
	acc := xhash.Zero
	for pos := uint64(0); pos < s.Params.WindowSize; pos++ {
		if s.Window.GetBit(pos) {
			acc = s.Hasher.HashPair(acc, s.Hasher.EncodeIndex(pos))
		}
	}
	return s.Hasher.Hash(acc)
}
