package main

import (
	"encoding/hex"
	"fmt"

	"accumulator.dev/mutatorset/chunk"
	"accumulator.dev/mutatorset/internal/mmr"
	"accumulator.dev/mutatorset/internal/xhash"
	"accumulator.dev/mutatorset/mutatorset"
)

// The CLI's proof/record files are a JSON field-list encoding local to
// this command, not a protocol wire format (spec.md's Non-goals
// exclude "no wire encoding beyond field lists"): chunk.Chunk and
// mmr.MembershipProof keep their fields unexported, so this package
// translates to/from plain JSON-able structs using each type's public
// accessors (ToIndices, Clone, etc.) rather than reflecting over
// private state.

type mmrProofFile struct {
	LeafIndex uint64   `json:"leaf_index"`
	AuthPath  []string `json:"auth_path"`
}

type chunkEntryFile struct {
	Proof mmrProofFile `json:"proof"`
	Bits  []uint32     `json:"bits"`
}

type proofFile struct {
	SenderRandomness string                    `json:"sender_randomness"`
	ReceiverPreimage string                    `json:"receiver_preimage"`
	AOCL             mmrProofFile              `json:"aocl_auth_path"`
	TargetChunks     map[string]chunkEntryFile `json:"target_chunks"`
	CachedIndices    []uint64                  `json:"cached_indices,omitempty"`
}

type removalRecordFile struct {
	Indices      []uint64                  `json:"indices"`
	TargetChunks map[string]chunkEntryFile `json:"target_chunks"`
}

func encodeDigest(d xhash.Digest) string { return hex.EncodeToString(d[:]) }

func decodeDigest(s string) (xhash.Digest, error) {
	var d xhash.Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("digest must be %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

func encodeMMRProof(p mmr.MembershipProof) mmrProofFile {
	path := make([]string, len(p.AuthPath))
	for i, d := range p.AuthPath {
		path[i] = encodeDigest(d)
	}
	return mmrProofFile{LeafIndex: p.LeafIndex, AuthPath: path}
}

func decodeMMRProof(f mmrProofFile) (mmr.MembershipProof, error) {
	path := make([]xhash.Digest, len(f.AuthPath))
	for i, s := range f.AuthPath {
		d, err := decodeDigest(s)
		if err != nil {
			return mmr.MembershipProof{}, fmt.Errorf("auth_path[%d]: %w", i, err)
		}
		path[i] = d
	}
	return mmr.MembershipProof{LeafIndex: f.LeafIndex, AuthPath: path}, nil
}

func encodeChunkDictionary(d chunk.Dictionary) map[string]chunkEntryFile {
	out := make(map[string]chunkEntryFile, len(d))
	for idx, entry := range d {
		out[fmt.Sprint(idx)] = chunkEntryFile{
			Proof: encodeMMRProof(entry.Proof),
			Bits:  entry.Chunk.ToIndices(),
		}
	}
	return out
}

func decodeChunkDictionary(m map[string]chunkEntryFile) (chunk.Dictionary, error) {
	out := chunk.NewDictionary()
	for key, entry := range m {
		var idx uint64
		if _, err := fmt.Sscanf(key, "%d", &idx); err != nil {
			return nil, fmt.Errorf("target_chunks key %q: %w", key, err)
		}
		proof, err := decodeMMRProof(entry.Proof)
		if err != nil {
			return nil, fmt.Errorf("target_chunks[%s].proof: %w", key, err)
		}
		out[idx] = chunk.Entry{Proof: proof, Chunk: chunk.FromIndices(entry.Bits)}
	}
	return out, nil
}

func encodeProof(p mutatorset.MembershipProof) proofFile {
	return proofFile{
		SenderRandomness: encodeDigest(p.SenderRandomness),
		ReceiverPreimage: encodeDigest(p.ReceiverPreimage),
		AOCL:             encodeMMRProof(p.AuthPathAOCL),
		TargetChunks:     encodeChunkDictionary(p.TargetChunks),
		CachedIndices:    p.CachedIndices,
	}
}

func decodeProof(f proofFile) (mutatorset.MembershipProof, error) {
	senderRandomness, err := decodeDigest(f.SenderRandomness)
	if err != nil {
		return mutatorset.MembershipProof{}, fmt.Errorf("sender_randomness: %w", err)
	}
	receiverPreimage, err := decodeDigest(f.ReceiverPreimage)
	if err != nil {
		return mutatorset.MembershipProof{}, fmt.Errorf("receiver_preimage: %w", err)
	}
	aocl, err := decodeMMRProof(f.AOCL)
	if err != nil {
		return mutatorset.MembershipProof{}, fmt.Errorf("aocl_auth_path: %w", err)
	}
	targetChunks, err := decodeChunkDictionary(f.TargetChunks)
	if err != nil {
		return mutatorset.MembershipProof{}, err
	}
	return mutatorset.MembershipProof{
		SenderRandomness: senderRandomness,
		ReceiverPreimage: receiverPreimage,
		AuthPathAOCL:     aocl,
		TargetChunks:     targetChunks,
		CachedIndices:    f.CachedIndices,
	}, nil
}

func encodeRemovalRecord(rr mutatorset.RemovalRecord) removalRecordFile {
	return removalRecordFile{Indices: rr.Indices, TargetChunks: encodeChunkDictionary(rr.TargetChunks)}
}

func decodeRemovalRecord(f removalRecordFile) (mutatorset.RemovalRecord, error) {
	targetChunks, err := decodeChunkDictionary(f.TargetChunks)
	if err != nil {
		return mutatorset.RemovalRecord{}, err
	}
	return mutatorset.RemovalRecord{Indices: f.Indices, TargetChunks: targetChunks}, nil
}
