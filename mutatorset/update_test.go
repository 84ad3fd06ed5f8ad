package mutatorset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/xhash"
)

// TestUpdateFromAdditionKeepsProofValid checks that a proof updated via
// UpdateMembershipProofFromAddition keeps verifying across both slide
// and non-slide additions.
func TestUpdateFromAdditionKeepsProofValid(t *testing.T) {
	h := xhash.SHA3{}
	params := testParams()
	s := New(params, h)

	it := item(1)
	randomness := item(2)
	proof := s.ProveSimple(it, randomness, true)
	record := s.CommitSimple(it, randomness)
	eff, err := s.AddWithEffect(record)
	require.NoError(t, err)
	require.True(t, s.Verify(it, proof), "expected freshly added proof to verify before any further adds")

	for i := byte(0); i < 20; i++ {
		filler := item(50 + i)
		fr := item(80 + i)
		fillerProof := s.ProveSimple(filler, fr, true)
		rec := s.CommitSimple(filler, fr)
		eff, err = s.AddWithEffect(rec)
		require.NoErrorf(t, err, "filler add %d", i)
		s.UpdateMembershipProofFromAddition(it, &proof, eff)
		s.UpdateMembershipProofFromAddition(filler, &fillerProof, eff)
		require.Truef(t, s.Verify(it, proof), "proof for original item failed to verify after add %d (batch index %d)", i, s.CurrentBatchIndex())
	}
}

// TestUpdateFromRemovalOfDifferentItem checks that removing one item's
// proof leaves an unrelated item's proof verifying, and that the removed
// item's own proof then fails.
func TestUpdateFromRemovalOfDifferentItem(t *testing.T) {
	h := xhash.SHA3{}
	params := testParams()
	s := New(params, h)

	itX := item(1)
	rndX := item(2)
	proofX := s.ProveSimple(itX, rndX, true)
	recX := s.CommitSimple(itX, rndX)
	effX, err := s.AddWithEffect(recX)
	require.NoError(t, err, "add x")

	itZ := item(3)
	rndZ := item(4)
	proofZ := s.ProveSimple(itZ, rndZ, true)
	recZ := s.CommitSimple(itZ, rndZ)
	effZ, err := s.AddWithEffect(recZ)
	require.NoError(t, err, "add z")
	s.UpdateMembershipProofFromAddition(itX, &proofX, effZ)
	s.UpdateMembershipProofFromAddition(itZ, &proofZ, effZ)
	_ = effX

	require.True(t, s.Verify(itX, proofX), "expected both proofs to verify before any removal")
	require.True(t, s.Verify(itZ, proofZ), "expected both proofs to verify before any removal")

	rrZ := s.Drop(itZ, proofZ)
	delta, err := s.RemoveWithDelta(rrZ)
	require.NoError(t, err, "remove z")

	_, err = s.UpdateMembershipProofFromRemoval(itX, &proofX, rrZ, delta)
	require.NoError(t, err, "update from removal")

	require.True(t, s.Verify(itX, proofX), "expected proof x to still verify after removing z")
	require.False(t, s.Verify(itZ, proofZ), "expected proof z to fail verification after being removed")
}

// TestRemoveAfterSlideWithRefreshedProof checks that once a proof's
// target chunks are kept current across a slide via
// UpdateMembershipProofFromAddition, Drop+Remove against it succeeds
// (unlike TestRemoveAfterSlideNeedsRefreshedChunkProof's stale-proof
// case in set_commitment_test.go).
func TestRemoveAfterSlideWithRefreshedProof(t *testing.T) {
	h := xhash.SHA3{}
	params := testParams()
	s := New(params, h)

	it := item(5)
	randomness := item(6)
	proof := s.ProveSimple(it, randomness, true)
	record := s.CommitSimple(it, randomness)
	_, err := s.AddWithEffect(record)
	require.NoError(t, err)

	for i := byte(0); i < 5; i++ {
		filler := item(50 + i)
		fr := item(60 + i)
		rec := s.CommitSimple(filler, fr)
		eff, err := s.AddWithEffect(rec)
		require.NoErrorf(t, err, "filler add %d", i)
		s.UpdateMembershipProofFromAddition(it, &proof, eff)
	}
	require.GreaterOrEqualf(t, s.CurrentBatchIndex(), uint64(3), "test setup invariant broken")
	require.True(t, s.Verify(it, proof), "expected refreshed proof to still verify after the slide")

	rr := s.Drop(it, proof)
	require.NoError(t, s.Remove(rr), "expected remove to succeed with a refreshed chunk proof")
	require.False(t, s.Verify(it, proof), "expected proof to fail verification after removal")
}

// TestBatchUpdateEquivalentToSequential checks that proofs updated
// through the batch-update API verify and match those updated by the
// single-proof API in a loop: the same AOCL authentication paths and the
// same number of target chunks.
func TestBatchUpdateEquivalentToSequential(t *testing.T) {
	h := xhash.SHA3{}
	params := testParams()

	const n = 8
	build := func() (*SetCommitment, []Digest, []MembershipProof) {
		s := New(params, h)
		items := make([]Digest, n)
		proofs := make([]MembershipProof, n)
		for i := 0; i < n; i++ {
			items[i] = item(byte(100 + i))
			randomness := item(byte(150 + i))
			proofs[i] = s.ProveSimple(items[i], randomness, true)
			rec := s.CommitSimple(items[i], randomness)
			eff, err := s.AddWithEffect(rec)
			require.NoErrorf(t, err, "seed add %d", i)
			for j := 0; j <= i; j++ {
				s.UpdateMembershipProofFromAddition(items[j], &proofs[j], eff)
			}
		}
		return s, items, proofs
	}

	sSeq, items, proofsSeq := build()
	sBatch, _, proofsBatch := build()

	triggerItem := item(222)
	triggerRnd := item(223)
	recTrigger := sSeq.CommitSimple(triggerItem, triggerRnd)
	effSeq, err := sSeq.AddWithEffect(recTrigger)
	require.NoError(t, err, "trigger add (seq)")
	for i := range proofsSeq {
		sSeq.UpdateMembershipProofFromAddition(items[i], &proofsSeq[i], effSeq)
	}

	recTrigger2 := sBatch.CommitSimple(triggerItem, triggerRnd)
	effBatch, err := sBatch.AddWithEffect(recTrigger2)
	require.NoError(t, err, "trigger add (batch)")
	proofPtrs := make([]*MembershipProof, n)
	for i := range proofsBatch {
		proofPtrs[i] = &proofsBatch[i]
	}
	sBatch.BatchUpdateMembershipProofsFromAddition(items, proofPtrs, effBatch)

	for i := 0; i < n; i++ {
		require.Truef(t, sSeq.Verify(items[i], proofsSeq[i]), "sequential proof %d failed to verify", i)
		require.Truef(t, sBatch.Verify(items[i], proofsBatch[i]), "batch proof %d failed to verify", i)
		require.Equalf(t, proofsSeq[i].AuthPathAOCL.AuthPath, proofsBatch[i].AuthPathAOCL.AuthPath,
			"proof %d: sequential and batch AOCL auth paths diverge", i)
		require.Equalf(t, len(proofsSeq[i].TargetChunks), len(proofsBatch[i].TargetChunks),
			"proof %d: sequential and batch target-chunk dictionaries diverge in size", i)
	}
}

// TestBatchAddThenBatchRemove runs a larger add/remove mix: every proof
// is kept current through every add, then every item is removed in turn
// with every remaining proof updated through each removal. The window
// (256 bits, four 64-bit chunks) is wide enough that no surviving item
// has all of its indices set by earlier removals, so no Bloom-filter
// false positive occurs in this trace.
func TestBatchAddThenBatchRemove(t *testing.T) {
	h := xhash.SHA3{}
	params := indexderive.Params{WindowSize: 256, ChunkSize: 64, BatchSize: 2, NumTrials: 8}
	s := New(params, h)

	const n = 24
	items := make([]Digest, n)
	proofs := make([]MembershipProof, n)
	removed := make([]bool, n)

	for i := 0; i < n; i++ {
		items[i] = item(byte(i + 1))
		randomness := item(byte(i + 200))
		proofs[i] = s.ProveSimple(items[i], randomness, true)
		rec := s.CommitSimple(items[i], randomness)
		eff, err := s.AddWithEffect(rec)
		require.NoErrorf(t, err, "add %d", i)
		for j := 0; j <= i; j++ {
			s.UpdateMembershipProofFromAddition(items[j], &proofs[j], eff)
		}
	}

	for i := 0; i < n; i++ {
		require.Truef(t, s.Verify(items[i], proofs[i]), "proof %d failed to verify before any removal", i)
	}

	for i := 0; i < n; i++ {
		rr := s.Drop(items[i], proofs[i])
		delta, err := s.RemoveWithDelta(rr)
		require.NoErrorf(t, err, "remove %d", i)
		removed[i] = true
		for j := 0; j < n; j++ {
			if removed[j] {
				continue
			}
			_, err := s.UpdateMembershipProofFromRemoval(items[j], &proofs[j], rr, delta)
			require.NoErrorf(t, err, "update proof %d from removal of %d", j, i)
		}
		for j := 0; j < n; j++ {
			want := !removed[j]
			got := s.Verify(items[j], proofs[j])
			require.Equalf(t, want, got, "after removing item %d: item %d verify state", i, j)
		}
	}
}
