package main

import (
	"testing"

	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/xhash"
	"accumulator.dev/mutatorset/mutatorset"
)

func TestProofRoundTripsThroughJSONEncoding(t *testing.T) {
	h := xhash.SHA3{}
	params := indexderive.Params{WindowSize: 16, ChunkSize: 4, BatchSize: 2, NumTrials: 6}
	s := mutatorset.New(params, h)

	var item, randomness xhash.Digest
	item[0] = 1
	randomness[0] = 2

	proof := s.ProveSimple(item, randomness, true)
	rec := s.CommitSimple(item, randomness)
	if err := s.Add(rec); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// Push the item past a slide so TargetChunks is non-empty, exercising
	// the chunk-dictionary leg of the encoding.
	for i := 0; i < 5; i++ {
		var filler xhash.Digest
		filler[0] = byte(50 + i)
		var fr xhash.Digest
		fr[0] = byte(60 + i)
		frec := s.CommitSimple(filler, fr)
		eff, err := s.AddWithEffect(frec)
		if err != nil {
			t.Fatalf("filler add failed: %v", err)
		}
		s.UpdateMembershipProofFromAddition(item, &proof, eff)
	}
	if !s.Verify(item, proof) {
		t.Fatalf("expected proof to verify before round trip")
	}

	f := encodeProof(proof)
	back, err := decodeProof(f)
	if err != nil {
		t.Fatalf("decodeProof failed: %v", err)
	}
	if !s.Verify(item, back) {
		t.Fatalf("expected decoded proof to still verify")
	}

	rr := s.Drop(item, back)
	rrFile := encodeRemovalRecord(rr)
	rrBack, err := decodeRemovalRecord(rrFile)
	if err != nil {
		t.Fatalf("decodeRemovalRecord failed: %v", err)
	}
	if len(rrBack.Indices) != len(rr.Indices) {
		t.Fatalf("removal record indices length mismatch after round trip")
	}
	if len(rrBack.TargetChunks) != len(rr.TargetChunks) {
		t.Fatalf("removal record target chunk count mismatch after round trip")
	}
}
