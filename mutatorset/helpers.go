package mutatorset

import (
	"sort"

	"accumulator.dev/mutatorset/chunk"
)

// sortedChunkIndices returns d's keys in ascending order, used wherever
// a dictionary must be walked deterministically (removal-record
// hashing, batch chunk mutation within a single remove call).
func sortedChunkIndices(d chunk.Dictionary) []uint64 {
	out := make([]uint64, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
