package mmr

import "math/bits"

// appendCascade replays the carry-propagation Accumulator.Append performs
// for a single new leaf, recording at each step the pre-merge carry
// digest and the existing peak it merges with. UpdateFromAppend and
// BatchUpdateFromAppend use this shared log so a batch of proofs pays
// for the cascade once.
type cascadeStep struct {
	height      uint64
	carryBefore Digest
	existing    Digest
}

func appendCascade(oldLeafCount uint64, oldPeaks []Digest, newLeaf Digest, h Hasher) []cascadeStep {
	sizes := decompose(oldLeafCount)
	heights := make([]uint64, len(sizes))
	for i, s := range sizes {
		heights[i] = uint64(bits.TrailingZeros64(s))
	}
	var log []cascadeStep
	carry := newLeaf
	carryHeight := uint64(0)
	i := len(oldPeaks) - 1
	for i >= 0 && heights[i] == carryHeight {
		log = append(log, cascadeStep{height: carryHeight, carryBefore: carry, existing: oldPeaks[i]})
		carry = h.HashPair(oldPeaks[i], carry)
		carryHeight++
		i--
	}
	return log
}

// ProofForAppendedLeaf builds the membership proof for the leaf being
// appended itself. Unlike an existing proof, which gets absorbed as the
// "existing/left" operand of whichever cascade step reaches its own
// mountain height, the new leaf plays the "carry/right" operand at
// every step of its own append cascade, so its path is simply the
// existing-side digest at each step, in order.
func ProofForAppendedLeaf(oldLeafCount uint64, oldPeaks []Digest, newLeaf Digest, h Hasher) MembershipProof {
	log := appendCascade(oldLeafCount, oldPeaks, newLeaf, h)
	path := make([]Digest, len(log))
	for i, step := range log {
		path[i] = step.existing
	}
	return MembershipProof{LeafIndex: oldLeafCount, AuthPath: path}
}

// UpdateFromAppend extends proof so it remains valid after a single new
// leaf is appended to an MMR that had oldLeafCount leaves and oldPeaks
// peaks. It is a no-op when the proof's mountain survives the append
// without merging into a bigger one.
func UpdateFromAppend(proof *MembershipProof, oldLeafCount uint64, oldPeaks []Digest, newLeaf Digest, h Hasher) {
	BatchUpdateFromAppend([]*MembershipProof{proof}, oldLeafCount, oldPeaks, newLeaf, h)
}

// BatchUpdateFromAppend applies UpdateFromAppend to every proof in
// proofs, sharing one cascade computation: batching membership-proof
// maintenance across many outstanding proofs is the whole point of the
// batch-update protocols.
func BatchUpdateFromAppend(proofs []*MembershipProof, oldLeafCount uint64, oldPeaks []Digest, newLeaf Digest, h Hasher) {
	log := appendCascade(oldLeafCount, oldPeaks, newLeaf, h)
	for _, p := range proofs {
		if p == nil {
			continue
		}
		ph := uint64(len(p.AuthPath))
		if ph >= uint64(len(log)) {
			continue
		}
		p.AuthPath = append(p.AuthPath, log[ph].carryBefore)
		for step := ph + 1; step < uint64(len(log)); step++ {
			p.AuthPath = append(p.AuthPath, log[step].existing)
		}
	}
}

// MutateLeaf replaces the digest of the leaf at leafIndex (proven valid
// by oldProof against oldLeaf) with newLeaf, patching every proof in
// others whose authentication path references the mutated leaf's
// ancestors as a sibling, and returns the mutated mountain's new root.
// This is the MMR half of the RemovalRecord batch-update protocol:
// flipping a bit in a SWBF-inactive chunk mutates that chunk's MMR
// leaf, which can invalidate other outstanding membership proofs that
// happen to share an ancestor with it.
func MutateLeaf(leafCount uint64, leafIndex uint64, oldProof MembershipProof, oldLeaf, newLeaf Digest, others []*MembershipProof, h Hasher) (newRoot Digest, ok bool) {
	_, height, local, valid := mountainOf(leafIndex, leafCount)
	if !valid || uint64(len(oldProof.AuthPath)) != height {
		return Digest{}, false
	}
	ph := int(height)
	oldAnc := make([]Digest, ph+1)
	newAnc := make([]Digest, ph+1)
	oldAnc[0], newAnc[0] = oldLeaf, newLeaf
	idx := local
	for l := 0; l < ph; l++ {
		sib := oldProof.AuthPath[l]
		if idx%2 == 0 {
			oldAnc[l+1] = h.HashPair(oldAnc[l], sib)
			newAnc[l+1] = h.HashPair(newAnc[l], sib)
		} else {
			oldAnc[l+1] = h.HashPair(sib, oldAnc[l])
			newAnc[l+1] = h.HashPair(sib, newAnc[l])
		}
		idx /= 2
	}

	for _, p := range others {
		if p == nil || len(p.AuthPath) != ph {
			continue
		}
		_, _, otherLocal, otherValid := mountainOf(p.LeafIndex, leafCount)
		if !otherValid {
			continue
		}
		diff := local ^ otherLocal
		if diff == 0 {
			continue
		}
		l := 63 - bits.LeadingZeros64(diff)
		if l >= ph {
			continue
		}
		p.AuthPath[l] = newAnc[l]
	}
	return newAnc[ph], true
}

// BatchMutateLeafAndUpdateMPs applies MutateLeaf for each (leafIndex,
// newLeaf) mutation in order against the same "others" set, so proofs
// patched by an earlier mutation in the batch are patched further by
// later ones (each mutation's OldProof is used as given), matching set_commitment.rs's batch_mutate_leaf_and_
// update_mps naming (§6).
func BatchMutateLeafAndUpdateMPs(leafCount uint64, mutations []LeafMutation, others []*MembershipProof, h Hasher) bool {
	for _, m := range mutations {
		if _, ok := MutateLeaf(leafCount, m.LeafIndex, m.OldProof, m.OldLeaf, m.NewLeaf, others, h); !ok {
			return false
		}
	}
	return true
}

// LeafMutation bundles the inputs BatchMutateLeafAndUpdateMPs needs for
// a single leaf's value change.
type LeafMutation struct {
	LeafIndex uint64
	OldProof  MembershipProof
	OldLeaf   Digest
	NewLeaf   Digest
}
