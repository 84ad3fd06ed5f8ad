package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"accumulator.dev/mutatorset/archival"
	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/xhash"
)

func TestCollectorGathersWithoutError(t *testing.T) {
	h := xhash.SHA3{}
	params := indexderive.Params{WindowSize: 16, ChunkSize: 4, BatchSize: 2, NumTrials: 6}
	a := archival.New(params, h, nil)

	for i := 0; i < 5; i++ {
		var item, randomness xhash.Digest
		item[0] = byte(i + 1)
		randomness[0] = byte(i + 100)
		rec := a.Core.CommitSimple(item, randomness)
		if _, err := a.ApplyAdd(rec); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	NewCollector(a, params, reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"mutatorset_aocl_leaves_total",
		"mutatorset_swbf_inactive_leaves_total",
		"mutatorset_active_window_set_ratio",
		"mutatorset_slides_total",
		"mutatorset_undo_depth",
	} {
		if !names[want] {
			t.Errorf("expected metric %s to be registered", want)
		}
	}
}
