package engine

import (
	"time"

	"github.com/cuemby/catalogsync/pkg/types"
)

// diffResult is the output of diffing a run's final SKU views against
// the previous persisted state.
type diffResult struct {
	items     []types.ItemUpdate
	inventory []types.InventoryUpdate
	nextState types.StateMap
}

// diff emits item/inventory updates for new, changed and force-full
// SKUs, then a disabling update for every SKU present in prev but
// absent from views, and builds the state map that should be persisted
// once the push succeeds.
func diff(views []types.SkuView, prev types.StateMap, forceFull bool, now time.Time) diffResult {
	nowMs := now.UnixMilli()
	nextState := make(types.StateMap, len(views))
	var items []types.ItemUpdate
	var inventory []types.InventoryUpdate

	seen := make(map[string]bool, len(views))
	for _, v := range views {
		seen[v.SKU] = true
		prevEntry, existed := prev[v.SKU]

		emitItem := forceFull || !existed || prevEntry.Enabled != v.Enabled || !priceEqual(prevEntry.Price, v.Price)
		emitInventory := forceFull || !existed || prevEntry.Quantity != v.Quantity

		if emitItem {
			items = append(items, types.ItemUpdate{SKU: v.SKU, Enabled: v.Enabled, Price: priceOrZero(v.Price)})
		}
		if emitInventory {
			inventory = append(inventory, types.InventoryUpdate{SKU: v.SKU, Inventory: v.Quantity})
		}

		nextState[v.SKU] = types.StateEntry{
			Quantity:            v.Quantity,
			Enabled:             v.Enabled,
			Price:               v.Price,
			LastSeen:            nowMs,
			SyncedToMarketplace: existed && prevEntry.SyncedToMarketplace,
		}
	}

	// Missing-SKU detection: a SKU present in
	// the prior state but absent from this run's view is disabled and
	// zeroed, never deleted, so the disable signal survives a restart.
	for sku, prevEntry := range prev {
		if seen[sku] {
			continue
		}
		items = append(items, types.ItemUpdate{SKU: sku, Enabled: false, Price: priceOrZero(prevEntry.Price)})
		inventory = append(inventory, types.InventoryUpdate{SKU: sku, Inventory: 0})
		nextState[sku] = types.StateEntry{
			Quantity:            0,
			Enabled:             false,
			Price:               prevEntry.Price,
			LastSeen:            nowMs,
			SyncedToMarketplace: prevEntry.SyncedToMarketplace,
		}
	}

	return diffResult{items: items, inventory: inventory, nextState: nextState}
}

func priceEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func priceOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// bootstrapStateMap builds the state map written directly by a
// bootstrap run, without any marketplace traffic.
func bootstrapStateMap(views []types.SkuView, now time.Time) types.StateMap {
	out := make(types.StateMap, len(views))
	nowMs := now.UnixMilli()
	for _, v := range views {
		out[v.SKU] = types.StateEntry{
			Quantity: v.Quantity,
			Enabled:  v.Enabled,
			Price:    v.Price,
			LastSeen: nowMs,
		}
	}
	return out
}

func truncate[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[:limit]
}

func splitBatches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	if size <= 0 {
		return nil
	}
	var batches [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}
