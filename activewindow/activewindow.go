// Package activewindow implements the sliding live segment of the
// conceptually infinite Bloom filter: a WindowSize-bit array that
// periodically archives its oldest ChunkSize bits into a Chunk for the
// SWBF-inactive MMR.
package activewindow

import "accumulator.dev/mutatorset/chunk"

// ActiveWindow is a sparse bit array over [0, WindowSize).
type ActiveWindow struct {
	windowSize uint64
	chunkSize  uint64
	bits       map[uint64]struct{}
}

// New returns an all-zero active window of the given width, dividing
// evenly into chunkSize-wide chunks (windowSize must be a multiple of
// chunkSize).
func New(windowSize, chunkSize uint64) *ActiveWindow {
	return &ActiveWindow{windowSize: windowSize, chunkSize: chunkSize, bits: make(map[uint64]struct{})}
}

// SetBit sets the bit at position (relative to the window's current
// start, i.e. already offset by the current batch index).
func (w *ActiveWindow) SetBit(pos uint64) {
	w.bits[pos] = struct{}{}
}

// GetBit reports whether the bit at pos is set.
func (w *ActiveWindow) GetBit(pos uint64) bool {
	_, ok := w.bits[pos]
	return ok
}

// Slide archives the low ChunkSize bits as a Chunk, shifts the
// remainder down by ChunkSize, and zeroes the newly exposed high bits:
// archive the low bits, shift the remainder down, zero the high bits.
func (w *ActiveWindow) Slide() chunk.Chunk {
	archived := chunk.Empty()
	next := make(map[uint64]struct{})
	for pos := range w.bits {
		if pos < w.chunkSize {
			archived.SetBit(uint32(pos))
			continue
		}
		next[pos-w.chunkSize] = struct{}{}
	}
	w.bits = next
	return archived
}

// Clone deep-copies the window, used by the archival wrapper's undo log
// and by tests comparing snapshots.
func (w *ActiveWindow) Clone() *ActiveWindow {
	out := &ActiveWindow{windowSize: w.windowSize, chunkSize: w.chunkSize, bits: make(map[uint64]struct{}, len(w.bits))}
	for k := range w.bits {
		out.bits[k] = struct{}{}
	}
	return out
}

// SetBits returns the currently-set bit positions, unordered, for
// callers (the archival store) that need to serialize the window.
func (w *ActiveWindow) SetBits() []uint64 {
	out := make([]uint64, 0, len(w.bits))
	for pos := range w.bits {
		out = append(out, pos)
	}
	return out
}

// FromBits rebuilds a window of the given width from a persisted set-bit
// list, the inverse of SetBits used when restoring from a snapshot.
func FromBits(positions []uint64, windowSize, chunkSize uint64) *ActiveWindow {
	w := New(windowSize, chunkSize)
	for _, pos := range positions {
		w.SetBit(pos)
	}
	return w
}

// Equal reports whether w and other represent the same set bits.
func (w *ActiveWindow) Equal(other *ActiveWindow) bool {
	if len(w.bits) != len(other.bits) {
		return false
	}
	for k := range w.bits {
		if _, ok := other.bits[k]; !ok {
			return false
		}
	}
	return true
}
