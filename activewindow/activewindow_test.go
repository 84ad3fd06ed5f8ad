package activewindow

import "testing"

func TestSlideArchivesLowBitsAndShifts(t *testing.T) {
	w := New(30000, 1500)
	w.SetBit(10)    // in the archived prefix
	w.SetBit(1500)  // just past the prefix, should shift to 0
	w.SetBit(29999) // top bit, should shift to 28499

	archived := w.Slide()
	if !archived.GetBit(10) {
		t.Fatalf("expected bit 10 archived")
	}
	if !w.GetBit(0) {
		t.Fatalf("expected bit 1500 to shift to position 0")
	}
	if !w.GetBit(28499) {
		t.Fatalf("expected bit 29999 to shift to position 28499")
	}
	if w.GetBit(10) {
		t.Fatalf("bit 10 should no longer be set after slide")
	}
}

func TestCloneIndependence(t *testing.T) {
	w := New(30000, 1500)
	w.SetBit(5)
	c := w.Clone()
	w.SetBit(6)
	if c.GetBit(6) {
		t.Fatalf("clone should not observe mutations to original")
	}
	if !c.Equal(c.Clone()) {
		t.Fatalf("clone should equal itself")
	}
	if w.Equal(c) {
		t.Fatalf("diverged windows should not be equal")
	}
}
