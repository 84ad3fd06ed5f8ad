package mmr

// Accumulator is the peaks-only MMR collaborator: it never retains leaf
// or internal-node data, only the current forest of peak digests and
// the leaf count. This is all a SetCommitment's AOCL and SWBF-inactive
// components need for commitment purposes.
type Accumulator struct {
	leafCount uint64
	peaks     []peakEntry
}

// NewAccumulator returns an empty MMR.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// CountLeaves returns the number of leaves appended so far.
func (a *Accumulator) CountLeaves() uint64 { return a.leafCount }

// GetPeaks returns the current peak digests, largest mountain first.
func (a *Accumulator) GetPeaks() []Digest {
	out := make([]Digest, len(a.peaks))
	for i, p := range a.peaks {
		out[i] = p.digest
	}
	return out
}

// ToAccumulator is a no-op identity for the Accumulator itself; it
// exists so both MMR variants satisfy the same "can be reduced to an
// accumulator" surface the mutator set core relies on (§6).
func (a *Accumulator) ToAccumulator() *Accumulator {
	return &Accumulator{leafCount: a.leafCount, peaks: append([]peakEntry(nil), a.peaks...)}
}

// Append adds a new leaf, merging trailing equal-height peaks the way a
// binary counter propagates carries; this produces exactly the
// peaks/leaf-count pair the Archival variant's explicit tree also
// produces, verified by mmr_test.go against Archival-generated peaks.
func (a *Accumulator) Append(leaf Digest, h Hasher) {
	a.peaks = append(a.peaks, peakEntry{height: 0, digest: leaf})
	a.leafCount++
	for len(a.peaks) >= 2 && a.peaks[len(a.peaks)-1].height == a.peaks[len(a.peaks)-2].height {
		right := a.peaks[len(a.peaks)-1]
		left := a.peaks[len(a.peaks)-2]
		a.peaks = a.peaks[:len(a.peaks)-2]
		a.peaks = append(a.peaks, peakEntry{height: left.height + 1, digest: h.HashPair(left.digest, right.digest)})
	}
}

// MutateLeaf replaces the peak containing leafIndex's leaf, given the
// membership proof for the leaf's old value and its new digest.
// Accumulator has no tree to descend, so it recomputes the mountain's
// root purely from leaf+proof, exactly like Verify but keeping the
// recomputed root instead of just comparing it.
func (a *Accumulator) MutateLeaf(leafIndex uint64, newLeaf Digest, proof MembershipProof, h Hasher) bool {
	mIdx, height, local, ok := mountainOf(leafIndex, a.leafCount)
	if !ok || mIdx >= len(a.peaks) || uint64(len(proof.AuthPath)) != height {
		return false
	}
	cur := newLeaf
	idx := local
	for _, sib := range proof.AuthPath {
		if idx%2 == 0 {
			cur = h.HashPair(cur, sib)
		} else {
			cur = h.HashPair(sib, cur)
		}
		idx /= 2
	}
	a.peaks[mIdx].digest = cur
	return true
}

// Verify checks a membership proof against this accumulator's current
// state.
func (a *Accumulator) Verify(leaf Digest, proof MembershipProof, h Hasher) bool {
	return Verify(a.GetPeaks(), a.leafCount, leaf, proof, h)
}
