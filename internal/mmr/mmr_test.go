package mmr

import (
	"testing"

	"accumulator.dev/mutatorset/internal/xhash"
)

func leafDigest(i uint64) Digest {
	return xhash.SHA3{}.EncodeIndex(i)
}

func TestArchivalProofVerifiesAfterAppends(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	const n = 13
	for i := uint64(0); i < n; i++ {
		ar.Append(leafDigest(i), h)
	}
	peaks := ar.GetPeaks()
	for i := uint64(0); i < n; i++ {
		proof, ok := ar.Proof(i)
		if !ok {
			t.Fatalf("Proof(%d) failed", i)
		}
		if !Verify(peaks, ar.CountLeaves(), leafDigest(i), proof, h) {
			t.Fatalf("Verify failed for leaf %d", i)
		}
	}
}

func TestAccumulatorMatchesArchivalPeaks(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	acc := NewAccumulator()
	for i := uint64(0); i < 20; i++ {
		d := leafDigest(i)
		ar.Append(d, h)
		acc.Append(d, h)
	}
	ap := ar.GetPeaks()
	cp := acc.GetPeaks()
	if len(ap) != len(cp) {
		t.Fatalf("peak count mismatch: %d vs %d", len(ap), len(cp))
	}
	for i := range ap {
		if ap[i] != cp[i] {
			t.Fatalf("peak %d mismatch", i)
		}
	}
}

func TestProofForAppendedLeafVerifiesImmediately(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	for i := uint64(0); i < 9; i++ {
		ar.Append(leafDigest(i), h)
	}
	oldPeaks := ar.GetPeaks()
	oldCount := ar.CountLeaves()
	newLeaf := leafDigest(9)

	proof := ProofForAppendedLeaf(oldCount, oldPeaks, newLeaf, h)
	ar.Append(newLeaf, h)

	if !Verify(ar.GetPeaks(), ar.CountLeaves(), newLeaf, proof, h) {
		t.Fatalf("proof for freshly appended leaf failed to verify")
	}

	archivalProof, ok := ar.Proof(oldCount)
	if !ok {
		t.Fatalf("archival Proof failed for newly appended leaf")
	}
	if len(archivalProof.AuthPath) != len(proof.AuthPath) {
		t.Fatalf("auth path length mismatch: archival=%d computed=%d", len(archivalProof.AuthPath), len(proof.AuthPath))
	}
	for i := range archivalProof.AuthPath {
		if archivalProof.AuthPath[i] != proof.AuthPath[i] {
			t.Fatalf("auth path entry %d mismatch", i)
		}
	}
}

func TestUpdateFromAppendKeepsProofValid(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	for i := uint64(0); i < 7; i++ {
		ar.Append(leafDigest(i), h)
	}
	proof, ok := ar.Proof(3)
	if !ok {
		t.Fatalf("Proof(3) failed")
	}
	oldPeaks := ar.GetPeaks()
	oldCount := ar.CountLeaves()

	newLeaf := leafDigest(7)
	ar.Append(newLeaf, h)
	UpdateFromAppend(&proof, oldCount, oldPeaks, newLeaf, h)

	if !Verify(ar.GetPeaks(), ar.CountLeaves(), leafDigest(3), proof, h) {
		t.Fatalf("updated proof failed to verify after append")
	}
}

func TestBatchUpdateFromAppendAcrossManyAppends(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	const initial = 5
	for i := uint64(0); i < initial; i++ {
		ar.Append(leafDigest(i), h)
	}
	proofs := make([]*MembershipProof, initial)
	for i := uint64(0); i < initial; i++ {
		p, ok := ar.Proof(i)
		if !ok {
			t.Fatalf("Proof(%d) failed", i)
		}
		proofs[i] = &p
	}

	for i := uint64(initial); i < initial+9; i++ {
		oldPeaks := ar.GetPeaks()
		oldCount := ar.CountLeaves()
		newLeaf := leafDigest(i)
		ar.Append(newLeaf, h)
		BatchUpdateFromAppend(proofs, oldCount, oldPeaks, newLeaf, h)
	}

	peaks := ar.GetPeaks()
	count := ar.CountLeaves()
	for i := uint64(0); i < initial; i++ {
		if !Verify(peaks, count, leafDigest(i), *proofs[i], h) {
			t.Fatalf("proof for leaf %d failed after batch of appends", i)
		}
	}
}

func TestMutateLeafUpdatesSiblingProofs(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	const n = 8
	for i := uint64(0); i < n; i++ {
		ar.Append(leafDigest(i), h)
	}

	others := make([]*MembershipProof, n)
	for i := uint64(0); i < n; i++ {
		p, _ := ar.Proof(i)
		others[i] = &p
	}

	target := uint64(2)
	oldProof := *others[target]
	newLeaf := xhash.SHA3{}.EncodeIndex(999)
	oldLeaf, ok := ar.MutateLeafRaw(target, newLeaf, h)
	if !ok {
		t.Fatalf("archival MutateLeaf failed")
	}
	if oldLeaf != leafDigest(target) {
		t.Fatalf("unexpected old leaf returned")
	}

	newRoot, ok := MutateLeaf(n, target, oldProof, oldLeaf, newLeaf, others, h)
	if !ok {
		t.Fatalf("MutateLeaf protocol failed")
	}
	peaks := ar.GetPeaks()
	found := false
	for _, p := range peaks {
		if p == newRoot {
			found = true
		}
	}
	if !found {
		t.Fatalf("mutated root %v not among archival peaks", newRoot)
	}

	for i := uint64(0); i < n; i++ {
		leaf := leafDigest(i)
		if i == target {
			leaf = newLeaf
		}
		if !Verify(peaks, n, leaf, *others[i], h) {
			t.Fatalf("proof for leaf %d invalid after mutation", i)
		}
	}
}

func TestRemoveLastLeafRestoresPriorState(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	for i := uint64(0); i < 6; i++ {
		ar.Append(leafDigest(i), h)
	}
	beforePeaks := ar.GetPeaks()
	ar.Append(leafDigest(6), h)
	if !ar.RemoveLastLeaf(h) {
		t.Fatalf("RemoveLastLeaf failed")
	}
	afterPeaks := ar.GetPeaks()
	if ar.CountLeaves() != 6 {
		t.Fatalf("expected 6 leaves after revert, got %d", ar.CountLeaves())
	}
	if len(beforePeaks) != len(afterPeaks) {
		t.Fatalf("peak count mismatch after revert")
	}
	for i := range beforePeaks {
		if beforePeaks[i] != afterPeaks[i] {
			t.Fatalf("peak %d differs after revert", i)
		}
	}
}

func TestBagPeaksDeterministic(t *testing.T) {
	h := xhash.SHA3{}
	ar := NewArchival()
	for i := uint64(0); i < 5; i++ {
		ar.Append(leafDigest(i), h)
	}
	a := BagPeaks(ar.GetPeaks(), h)
	b := BagPeaks(ar.GetPeaks(), h)
	if a != b {
		t.Fatalf("BagPeaks not deterministic")
	}
}
