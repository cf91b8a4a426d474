package engine

import (
	"context"

	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/types"
)

// The background worker (pkg/bgworker) and the hybrid orchestrator
// (pkg/hybrid) both need the same fetch/view/push building blocks Run
// uses internally, without running Run's full diff-against-state
// pipeline. These exported wrappers let them reuse the Engine's shared
// dependencies (state, governor, batcher, breakers) instead of each
// re-implementing the fetch and push plumbing.

// FetchInventory fetches one store's SoT inventory through the SoT
// circuit breaker, classifying any failure by dependency.
func (e *Engine) FetchInventory(ctx context.Context, store types.Store, sotClient sot.Client) ([]types.InventoryRecord, error) {
	return e.fetchInventory(ctx, store, sotClient)
}

// FetchDetails fetches SoT product details for ids through the SoT
// circuit breaker, chunked by the SoT client itself.
func (e *Engine) FetchDetails(ctx context.Context, ids []int, sotClient sot.Client) ([]types.ProductDetail, error) {
	return e.fetchDetails(ctx, ids, sotClient)
}

// BuildSkuView aggregates inventory and details into per-SKU views.
func BuildSkuView(inventory []types.InventoryRecord, details []types.ProductDetail, skuField string) []types.SkuView {
	return buildSkuView(inventory, details, skuField)
}

// ApplyForceZeroRule applies the invalid-price force-zero contract
// to a slice of SKU views.
func ApplyForceZeroRule(views []types.SkuView) ([]types.SkuView, []string) {
	return applyForceZeroRule(views)
}

// LoadState returns the persisted state for storeID.
func (e *Engine) LoadState(storeID int) (types.StateMap, error) {
	return e.state.Load(storeID)
}

// SaveState persists state for storeID.
func (e *Engine) SaveState(storeID int, state types.StateMap) error {
	return e.state.Save(storeID, state)
}

// PushAdaptiveBatches pushes the given item and inventory updates
// through the same two-phase push Run uses, with batch size and delay
// taken from the adaptive batcher rather than a fixed plan. It does
// not touch persisted state; callers (pkg/hybrid, pkg/bgworker) own
// marking SKUs synced.
func (e *Engine) PushAdaptiveBatches(ctx context.Context, store types.Store, marketClient marketplace.Client, items []types.ItemUpdate, inventory []types.InventoryUpdate) error {
	venueKey := rategovernor.VenueKey(e.venueBaseURL(store), store.VenueID, store.Login)
	batchSize := e.batcher.BatchSize(venueKey)
	total := estimatedBatchCount(len(items), batchSize) + estimatedBatchCount(len(inventory), batchSize)
	cp := newCheckpointTracker(e.checkpoints, store.ID, total)
	defer cp.finish()
	return e.pushPhases(ctx, store, marketClient, items, inventory, types.ModeDelta, true, cp)
}
