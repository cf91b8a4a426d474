package engine

import (
	"time"

	"github.com/cuemby/catalogsync/pkg/state"
	"github.com/cuemby/catalogsync/pkg/types"
)

// checkpointTracker advances a persisted completed/total batch counter
// as each batch of a push succeeds, so a crash mid-run does not force a
// re-push of already-confirmed SKUs. It is deleted once the run
// completes, since the checkpoint only exists to recover an
// interrupted run.
type checkpointTracker struct {
	store     state.CheckpointStore
	storeID   int
	total     int
	completed int
}

func newCheckpointTracker(store state.CheckpointStore, storeID, total int) *checkpointTracker {
	return &checkpointTracker{store: store, storeID: storeID, total: total}
}

func (c *checkpointTracker) advance() {
	c.completed++
	_ = c.store.Save(c.storeID, types.CheckpointRecord{
		CompletedBatches: c.completed,
		TotalBatches:     c.total,
		UpdatedAt:        time.Now(),
	})
}

func (c *checkpointTracker) finish() {
	_ = c.store.Delete(c.storeID)
}
