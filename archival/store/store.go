// Package store is the bbolt-backed persistence adapter for
// ArchivalMutatorSet (SPEC_FULL.md §2: "go.etcd.io/bbolt backs
// archival/store, the opaque key-value layout §6 requires for the
// archival variant"), laid out the way node/store/db.go lays out its
// buckets.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"accumulator.dev/mutatorset/archival"
	"accumulator.dev/mutatorset/chunk"
	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/xhash"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketManifest     = []byte("manifest")
	bucketAoclLeaves   = []byte("aocl_leaves")
	bucketSwbfChunks   = []byte("swbf_chunks")
	bucketActiveWindow = []byte("active_window")
)

const manifestKey = "manifest"
const windowKey = "window"

// Manifest is the JSON-encoded header persisted alongside the bucketed
// leaf data: the parameters needed to reconstruct indexderive.Params,
// mirroring node/store/manifest.go's SchemaVersion-plus-scalar-fields
// shape. The hash backend is not recorded; Load uses the Hasher its
// caller passes.
type Manifest struct {
	SchemaVersion uint32 `json:"schema_version"`
	WindowSize    uint64 `json:"window_size"`
	ChunkSize     uint64 `json:"chunk_size"`
	BatchSize     uint64 `json:"batch_size"`
	NumTrials     int    `json:"num_trials"`
}

const SchemaVersionV1 uint32 = 1

// Store is a bbolt-backed snapshot adapter: Persist overwrites every
// bucket's contents with the archival set's current state in one
// transaction, and Load rebuilds an ArchivalMutatorSet from the most
// recent snapshot. This follows node/store/db.go's Put/Get-whole-value
// style rather than incremental per-mutation diffs, since the archival
// wrapper's own in-memory undo log (not the store) is what a live reorg
// consults — the store only needs to survive a process restart.
type Store struct {
	db  *bolt.DB
	log *zap.Logger
}

// Open creates or opens the bbolt file at path, creating the buckets
// used below if they don't already exist.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketManifest, bucketAoclLeaves, bucketSwbfChunks, bucketActiveWindow} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &Store{db: bdb, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func leafKey(idx uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], idx)
	return b[:]
}

// clearBucket empties b by collecting its keys first, since bbolt does
// not allow deleting through Bucket.Delete while a ForEach over the same
// bucket is in progress.
func clearBucket(b *bolt.Bucket) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Persist overwrites the store's buckets with a, keyed by params (the
// accumulator must always be reopened with the same parameters it was
// persisted under).
func (s *Store) Persist(a *archival.ArchivalMutatorSet, params indexderive.Params) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		mb, err := json.Marshal(Manifest{
			SchemaVersion: SchemaVersionV1,
			WindowSize:    params.WindowSize,
			ChunkSize:     params.ChunkSize,
			BatchSize:     params.BatchSize,
			NumTrials:     params.NumTrials,
		})
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if err := tx.Bucket(bucketManifest).Put([]byte(manifestKey), mb); err != nil {
			return err
		}

		aoclBucket := tx.Bucket(bucketAoclLeaves)
		if err := clearBucket(aoclBucket); err != nil {
			return fmt.Errorf("clear aocl bucket: %w", err)
		}
		for i, leaf := range a.AOCLLeaves() {
			if err := aoclBucket.Put(leafKey(uint64(i)), leaf[:]); err != nil {
				return fmt.Errorf("put aocl leaf %d: %w", i, err)
			}
		}

		swbfBucket := tx.Bucket(bucketSwbfChunks)
		if err := clearBucket(swbfBucket); err != nil {
			return fmt.Errorf("clear swbf bucket: %w", err)
		}
		for chunkIdx := range a.History {
			cur, ok := a.History.Current(chunkIdx)
			if !ok {
				continue
			}
			if err := swbfBucket.Put(leafKey(chunkIdx), encodeChunk(cur)); err != nil {
				return fmt.Errorf("put swbf chunk %d: %w", chunkIdx, err)
			}
		}

		windowBucket := tx.Bucket(bucketActiveWindow)
		if err := windowBucket.Put([]byte(windowKey), encodeIndices(a.Core.Window.SetBits())); err != nil {
			return fmt.Errorf("put active window: %w", err)
		}
		return nil
	})
}

// Load reconstructs an ArchivalMutatorSet from the store's most recent
// snapshot. The undo log does not survive a restart (it is runtime-only
// reorg state, not committed chain state): a process that restarts mid
// reorg must re-derive any further reverts from the host chain's own
// records, exactly as node/store/reorg.go's ReorgToTip recomputes a walk
// from persisted block data rather than an in-memory undo stack.
func Load(path string, h xhash.Hasher, log *zap.Logger) (*archival.ArchivalMutatorSet, indexderive.Params, error) {
	if log == nil {
		log = zap.NewNop()
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, indexderive.Params{}, fmt.Errorf("open bbolt: %w", err)
	}
	defer bdb.Close()

	var params indexderive.Params
	var aoclLeaves []xhash.Digest
	chunks := make(map[uint64]chunk.Chunk)
	var windowBits []uint64

	err = bdb.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketManifest)
		if mb == nil {
			return fmt.Errorf("store not initialized: missing manifest bucket")
		}
		raw := mb.Get([]byte(manifestKey))
		if raw == nil {
			return fmt.Errorf("store not initialized: missing manifest")
		}
		var m Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		if m.SchemaVersion > SchemaVersionV1 {
			return fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
		}
		params = indexderive.Params{WindowSize: m.WindowSize, ChunkSize: m.ChunkSize, BatchSize: m.BatchSize, NumTrials: m.NumTrials}

		aoclBucket := tx.Bucket(bucketAoclLeaves)
		var keys []uint64
		if err := aoclBucket.ForEach(func(k, v []byte) error {
			keys = append(keys, binary.BigEndian.Uint64(k))
			return nil
		}); err != nil {
			return err
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		aoclLeaves = make([]xhash.Digest, len(keys))
		for i, k := range keys {
			v := aoclBucket.Get(leafKey(k))
			if len(v) != 32 {
				return fmt.Errorf("aocl leaf %d: bad length %d", k, len(v))
			}
			var d xhash.Digest
			copy(d[:], v)
			aoclLeaves[i] = d
		}

		swbfBucket := tx.Bucket(bucketSwbfChunks)
		if err := swbfBucket.ForEach(func(k, v []byte) error {
			idx := binary.BigEndian.Uint64(k)
			c, err := decodeChunk(v)
			if err != nil {
				return fmt.Errorf("swbf chunk %d: %w", idx, err)
			}
			chunks[idx] = c
			return nil
		}); err != nil {
			return err
		}

		windowBucket := tx.Bucket(bucketActiveWindow)
		if v := windowBucket.Get([]byte(windowKey)); v != nil {
			windowBits, err = decodeIndices64(v)
			if err != nil {
				return fmt.Errorf("active window: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, indexderive.Params{}, err
	}

	a := archival.New(params, h, log)
	a.RestoreFromSnapshot(aoclLeaves, chunks, windowBits, h)
	return a, params, nil
}

func encodeChunk(c chunk.Chunk) []byte {
	indices := c.ToIndices()
	buf := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.BigEndian.PutUint32(buf[4*i:], idx)
	}
	return buf
}

func decodeChunk(b []byte) (chunk.Chunk, error) {
	if len(b)%4 != 0 {
		return chunk.Chunk{}, fmt.Errorf("bad chunk encoding length %d", len(b))
	}
	indices := make([]uint32, len(b)/4)
	for i := range indices {
		indices[i] = binary.BigEndian.Uint32(b[4*i:])
	}
	return chunk.FromIndices(indices), nil
}

func encodeIndices(indices []uint64) []byte {
	buf := make([]byte, 8*len(indices))
	for i, idx := range indices {
		binary.BigEndian.PutUint64(buf[8*i:], idx)
	}
	return buf
}

func decodeIndices64(b []byte) ([]uint64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("bad index encoding length %d", len(b))
	}
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(b[8*i:])
	}
	return out, nil
}
