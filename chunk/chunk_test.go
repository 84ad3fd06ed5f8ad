package chunk

import (
	"math/rand"
	"testing"

	"accumulator.dev/mutatorset/internal/xhash"
)

func TestSetUnsetGetBit(t *testing.T) {
	c := Empty()
	const chunkSize = 1500
	for i := uint32(0); i < chunkSize; i++ {
		if c.GetBit(i) {
			t.Fatalf("bit %d set on empty chunk", i)
		}
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < chunkSize; i++ {
		idx := uint32(rng.Intn(chunkSize))
		set := rng.Intn(2) == 0
		if set {
			c.SetBit(idx)
		} else {
			c.UnsetBit(idx)
		}
		if c.GetBit(idx) != set {
			t.Fatalf("bit %d: expected %v", idx, set)
		}
	}
}

func TestOrAndXor(t *testing.T) {
	a := Empty()
	a.SetBit(12)
	a.SetBit(13)

	b := Empty()
	b.SetBit(48)
	b.SetBit(13)

	expectedXor := Empty()
	expectedXor.SetBit(12)
	expectedXor.SetBit(48)

	c := a.cloneBits()
	c.XorAssign(b)
	if !equalIndices(c, expectedXor) {
		t.Fatalf("xor mismatch: %v vs %v", c.ToIndices(), expectedXor.ToIndices())
	}

	expectedOr := Empty()
	expectedOr.SetBit(12)
	expectedOr.SetBit(13)
	expectedOr.SetBit(48)
	if or := a.Or(b); !equalIndices(or, expectedOr) {
		t.Fatalf("or mismatch: %v vs %v", or.ToIndices(), expectedOr.ToIndices())
	}

	expectedAnd := Empty()
	expectedAnd.SetBit(13)
	and := a.And(b)
	if !equalIndices(and, expectedAnd) {
		t.Fatalf("and mismatch")
	}

	if a.IsUnset() || b.IsUnset() || and.IsUnset() {
		t.Fatalf("non-empty chunks reported as unset")
	}
	if !Empty().IsUnset() {
		t.Fatalf("empty chunk reported as set")
	}
}

func equalIndices(a, b Chunk) bool {
	ai, bi := a.ToIndices(), b.ToIndices()
	if len(ai) != len(bi) {
		return false
	}
	for i := range ai {
		if ai[i] != bi[i] {
			return false
		}
	}
	return true
}

func TestToFromIndicesRoundTrip(t *testing.T) {
	c := Empty()
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		c.SetBit(uint32(rng.Intn(1500)))
	}
	round := FromIndices(c.ToIndices())
	if !equalIndices(c, round) {
		t.Fatalf("round trip mismatch")
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	h := xhash.SHA3{}
	zero := Empty()
	one := Empty()
	one.SetBit(32)
	if zero.Hash(h) == one.Hash(h) {
		t.Fatalf("expected distinct hashes for distinct chunks")
	}

	seen := make(map[xhash.Digest]bool)
	for i := uint32(0); i < 1500; i++ {
		c := Empty()
		c.SetBit(i)
		d := c.Hash(h)
		if seen[d] {
			t.Fatalf("hash collision setting bit %d", i)
		}
		seen[d] = true
	}
}
