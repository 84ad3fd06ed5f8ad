package indexderive

import (
	"testing"

	"accumulator.dev/mutatorset/internal/xhash"
)

func testParams() Params {
	return Params{WindowSize: 30000, ChunkSize: 1500, BatchSize: 10, NumTrials: 160}
}

func TestDeriveShapeAndRange(t *testing.T) {
	h := xhash.SHA3{}
	p := testParams()
	item := h.EncodeIndex(1215)
	randomness := h.EncodeIndex(1776)
	leafIndex := uint64(23)

	indices := Derive(item, randomness, leafIndex, p, h)
	if len(indices) != p.NumTrials {
		t.Fatalf("expected %d indices, got %d", p.NumTrials, len(indices))
	}

	base := p.BatchIndex(leafIndex) * p.ChunkSize
	seen := make(map[uint64]bool)
	for i, idx := range indices {
		if idx < base || idx >= base+p.WindowSize {
			t.Fatalf("index %d out of range [%d, %d)", idx, base, base+p.WindowSize)
		}
		if seen[idx] {
			t.Fatalf("duplicate index %d", idx)
		}
		seen[idx] = true
		if i > 0 && indices[i-1] >= idx {
			t.Fatalf("indices not sorted at position %d", i)
		}
	}
}

func TestDeriveDeterministic(t *testing.T) {
	h := xhash.SHA3{}
	p := testParams()
	item := h.EncodeIndex(42)
	randomness := h.EncodeIndex(43)

	a := Derive(item, randomness, 7, p, h)
	b := Derive(item, randomness, 7, p, h)
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("derivation not deterministic at %d", i)
		}
	}
}

func TestDeriveAnchorsToBatch(t *testing.T) {
	h := xhash.SHA3{}
	p := testParams()
	item := h.EncodeIndex(1)
	randomness := h.EncodeIndex(2)

	// leaf indices 0..9 share batch index 0.
	first := Derive(item, randomness, 0, p, h)
	base := p.BatchIndex(0) * p.ChunkSize
	for _, idx := range first {
		if idx < base || idx >= base+p.WindowSize {
			t.Fatalf("index escaped anchored window")
		}
	}

	// leaf index 10 belongs to batch index 1, a different base.
	second := Derive(item, randomness, 10, p, h)
	if Derive(item, randomness, 0, p, h)[0] == second[0] && p.BatchIndex(0) != p.BatchIndex(10) {
		// not a strict requirement that the first element differs, just
		// confirm the two derivations are independent in general.
		_ = second
	}
}

func TestDeriveDiffersByItem(t *testing.T) {
	h := xhash.SHA3{}
	p := testParams()
	randomness := h.EncodeIndex(9)
	a := Derive(h.EncodeIndex(1), randomness, 0, p, h)
	b := Derive(h.EncodeIndex(2), randomness, 0, p, h)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different items to derive different indices")
	}
}
