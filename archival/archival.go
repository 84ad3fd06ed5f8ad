// Package archival implements ArchivalMutatorSet (spec.md §4.7,
// component C10): the same SetCommitment operations, backed by fully
// persisted MMRs instead of peaks-only accumulators, plus a chunk
// history and an undo log so a block's addition or removal can be
// rolled back exactly for chain reorganizations.
//
// Grounded on node/store/undo.go's undo-record shape and
// node/store/reorg.go's revert-to-fork-point loop, applied here to
// mutator-set chunks instead of blocks/UTXOs (SPEC_FULL.md §4 item 5).
package archival

import (
	"accumulator.dev/mutatorset/activewindow"
	"accumulator.dev/mutatorset/chunk"
	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/mmr"
	"accumulator.dev/mutatorset/internal/xhash"
	"accumulator.dev/mutatorset/mserr"
	"accumulator.dev/mutatorset/mutatorset"

	"go.uber.org/zap"
)

// ChunkHistory records, for every chunk index the SWBF-inactive MMR has
// ever archived, the sequence of Chunk values that leaf has taken:
// entry 0 is the value snapshotted when the window slid it out, later
// entries are successive Remove mutations (SPEC_FULL.md §4 item 5,
// grounded on original_source/set_commitment.rs's remove_helper/
// add_helper undo-information return values).
type ChunkHistory map[uint64][]chunk.Chunk

func newChunkHistory() ChunkHistory { return make(ChunkHistory) }

func (h ChunkHistory) push(idx uint64, c chunk.Chunk) {
	h[idx] = append(h[idx], c.Clone())
}

// pop drops the most recent value recorded for idx, used by
// RevertRemove; an index with only its original slide-time value left
// is retained (RevertAdd alone un-archives a chunk entirely).
func (h ChunkHistory) pop(idx uint64) {
	seq := h[idx]
	if len(seq) == 0 {
		return
	}
	h[idx] = seq[:len(seq)-1]
}

func (h ChunkHistory) dropChunk(idx uint64) {
	delete(h, idx)
}

// Current returns the chunk index's most recently recorded value.
func (h ChunkHistory) Current(idx uint64) (chunk.Chunk, bool) {
	seq := h[idx]
	if len(seq) == 0 {
		return chunk.Chunk{}, false
	}
	return seq[len(seq)-1], true
}

type undoKind int

const (
	undoAdd undoKind = iota
	undoRemove
)

// undoEntry is one reversible step. preWindow is always captured
// because both Add (on a slide) and Remove (on an active-window bit
// set) are the only two operations that ever mutate ActiveWindow, and
// restoring the whole window verbatim is simpler and no less correct
// than replaying the shift/bit-set in reverse.
type undoEntry struct {
	kind        undoKind
	addEff      mutatorset.AdditionEffect
	removeDelta mutatorset.RemovalDelta
	preWindow   *activewindow.ActiveWindow
}

// ArchivalMutatorSet wraps a SetCommitment backed by full archival MMRs
// (every leaf and internal node persisted, per spec.md §4.7) with a
// chunk history and an undo log, giving the host chain RevertAdd/
// RevertRemove for reorgs.
type ArchivalMutatorSet struct {
	Core *mutatorset.SetCommitment

	aocl *mmr.Archival
	swbf *mmr.Archival

	History ChunkHistory

	undo []undoEntry
	log  *zap.Logger
}

// New returns an empty archival mutator set. A nil logger is replaced
// with zap.NewNop(): the in-memory core itself stays silent (spec.md
// §5), but the wrapper's apply and revert steps log through it.
func New(params indexderive.Params, h xhash.Hasher, log *zap.Logger) *ArchivalMutatorSet {
	if log == nil {
		log = zap.NewNop()
	}
	aocl := mmr.NewArchival()
	swbf := mmr.NewArchival()
	return &ArchivalMutatorSet{
		Core:    mutatorset.NewWithForests(params, h, aocl, swbf),
		aocl:    aocl,
		swbf:    swbf,
		History: newChunkHistory(),
		log:     log,
	}
}

// UndoDepth reports how many operations can currently be reverted.
func (a *ArchivalMutatorSet) UndoDepth() int { return len(a.undo) }

// AOCLLeaves returns every AOCL leaf digest in append order, for the
// store's snapshot persistence.
func (a *ArchivalMutatorSet) AOCLLeaves() []xhash.Digest { return a.aocl.Leaves() }

// RestoreFromSnapshot replaces a's AOCL, SWBF-inactive, chunk history,
// and active window with the persisted state the caller (archival/store)
// read back from its bbolt buckets. The undo log is left empty: a
// restored process starts with no revertable history, the same way
// node/store/reorg.go's ReorgToTip rebuilds chain position from
// persisted block data rather than a carried-over in-memory stack.
func (a *ArchivalMutatorSet) RestoreFromSnapshot(aoclLeaves []xhash.Digest, chunks map[uint64]chunk.Chunk, windowBits []uint64, h xhash.Hasher) {
	a.aocl = mmr.LoadLeaves(aoclLeaves, h)

	count := uint64(len(chunks))
	swbfLeaves := make([]xhash.Digest, count)
	history := newChunkHistory()
	for idx, c := range chunks {
		swbfLeaves[idx] = c.Hash(h)
		history.push(idx, c)
	}
	a.swbf = mmr.LoadLeaves(swbfLeaves, h)
	a.History = history

	a.Core.AOCL = a.aocl
	a.Core.SWBFInactive = a.swbf
	a.Core.Window = activewindow.FromBits(windowBits, a.Core.Params.WindowSize, a.Core.Params.ChunkSize)
	a.undo = nil
}

// ApplyAdd runs Core.Add, recording the chunk-history and undo-log
// entries needed for a subsequent RevertAdd.
func (a *ArchivalMutatorSet) ApplyAdd(record mutatorset.AdditionRecord) (mutatorset.AdditionEffect, error) {
	preWindow := a.Core.Window.Clone()
	eff, err := a.Core.AddWithEffect(record)
	if err != nil {
		return mutatorset.AdditionEffect{}, err
	}
	if eff.Slid {
		a.History.push(eff.ArchivedChunkIndex, eff.ArchivedChunk)
	}
	a.undo = append(a.undo, undoEntry{kind: undoAdd, addEff: eff, preWindow: preWindow})
	a.log.Debug("applied addition",
		zap.Uint64("aocl_leaves", a.Core.AOCL.CountLeaves()),
		zap.Bool("slid", eff.Slid),
	)
	return eff, nil
}

// RevertAdd reverses the most recently applied operation, which must
// have been an addition (callers track this themselves, the way a
// reorg walks undo records strictly in LIFO order against the chain it
// knows it applied).
func (a *ArchivalMutatorSet) RevertAdd() error {
	if len(a.undo) == 0 {
		return mserr.New(mserr.EmptySet, "no undo history to revert")
	}
	last := a.undo[len(a.undo)-1]
	if last.kind != undoAdd {
		return mserr.New(mserr.PreconditionViolation, "most recent applied operation was not an addition")
	}
	a.undo = a.undo[:len(a.undo)-1]

	if last.addEff.Slid {
		a.swbf.RemoveLastLeaf(a.Core.Hasher)
		a.History.dropChunk(last.addEff.ArchivedChunkIndex)
	}
	a.aocl.RemoveLastLeaf(a.Core.Hasher)
	a.Core.Window = last.preWindow
	a.log.Debug("reverted addition", zap.Uint64("aocl_leaves", a.Core.AOCL.CountLeaves()))
	return nil
}

// ApplyRemove runs Core.Remove, recording the chunk-history and
// undo-log entries needed for a subsequent RevertRemove.
func (a *ArchivalMutatorSet) ApplyRemove(rr mutatorset.RemovalRecord) (mutatorset.RemovalDelta, error) {
	preWindow := a.Core.Window.Clone()
	delta, err := a.Core.RemoveWithDelta(rr)
	if err != nil {
		return mutatorset.RemovalDelta{}, err
	}
	for _, m := range delta.Mutations {
		if entry, ok := rr.TargetChunks[m.LeafIndex]; ok {
			a.History.push(m.LeafIndex, entry.Chunk)
		}
	}
	a.undo = append(a.undo, undoEntry{kind: undoRemove, removeDelta: delta, preWindow: preWindow})
	a.log.Debug("applied removal",
		zap.Int("indices", len(rr.Indices)),
		zap.Int("chunks_mutated", len(delta.Mutations)),
	)
	return delta, nil
}

// RevertRemove reverses the most recently applied operation, which
// must have been a removal.
func (a *ArchivalMutatorSet) RevertRemove() error {
	if len(a.undo) == 0 {
		return mserr.New(mserr.EmptySet, "no undo history to revert")
	}
	last := a.undo[len(a.undo)-1]
	if last.kind != undoRemove {
		return mserr.New(mserr.PreconditionViolation, "most recent applied operation was not a removal")
	}
	a.undo = a.undo[:len(a.undo)-1]

	for _, m := range last.removeDelta.Mutations {
		a.swbf.MutateLeafRaw(m.LeafIndex, m.OldLeaf, a.Core.Hasher)
		a.History.pop(m.LeafIndex)
	}
	a.Core.Window = last.preWindow
	a.log.Debug("reverted removal", zap.Int("chunks_restored", len(last.removeDelta.Mutations)))
	return nil
}

// ApplyBlock applies every addition then every removal in the order
// given, in one call, recording undo history for each step along the
// way (SPEC_FULL.md §4 item 6: a mining-loop-style batch driver,
// grounded on original_source/mine_loop.rs's repeated prove/commit/add
// loop and node/chainstate.go's single-entry-point block-apply shape).
// It returns one AdditionEffect per addition and one RemovalDelta per
// removal, in order, so the caller can drive its own outstanding
// membership-proof and removal-record batch updates afterward.
func (a *ArchivalMutatorSet) ApplyBlock(adds []mutatorset.AdditionRecord, removes []mutatorset.RemovalRecord) ([]mutatorset.AdditionEffect, []mutatorset.RemovalDelta, error) {
	effs := make([]mutatorset.AdditionEffect, 0, len(adds))
	for _, rec := range adds {
		eff, err := a.ApplyAdd(rec)
		if err != nil {
			return effs, nil, err
		}
		effs = append(effs, eff)
	}

	deltas := make([]mutatorset.RemovalDelta, 0, len(removes))
	for _, rr := range removes {
		delta, err := a.ApplyRemove(rr)
		if err != nil {
			return effs, deltas, err
		}
		deltas = append(deltas, delta)
	}

	a.log.Info("applied block", zap.Int("adds", len(adds)), zap.Int("removes", len(removes)))
	return effs, deltas, nil
}
