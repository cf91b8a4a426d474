package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/catalogsync/pkg/batcher"
	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/state"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, state.Store) {
	t.Helper()
	dir := t.TempDir()

	stateStore, err := state.NewFileStateStore(filepath.Join(dir, "state"), state.WriteModeAtomic)
	require.NoError(t, err)
	checkpoints, err := state.NewFileCheckpointStore(filepath.Join(dir, "checkpoints"), state.WriteModeAtomic)
	require.NoError(t, err)
	governor, err := rategovernor.New(filepath.Join(dir, "rate-limits.json"), rategovernor.DefaultConfig())
	require.NoError(t, err)
	b, err := batcher.New(filepath.Join(dir, "adaptive-batch.json"), batcher.DefaultConfig())
	require.NoError(t, err)

	e := New(Config{
		SKUField:   "usr_column_514",
		PhasePause: 0,
		FirstSync:  BatchPlan{BatchSize: 200, Delay: 0},
		Delta:      BatchPlan{BatchSize: 200, Delay: 0},
	}, Dependencies{
		State:                     stateStore,
		Checkpoints:               checkpoints,
		Governor:                  governor,
		Batcher:                   b,
		Breakers:                  breaker.NewRegistry(),
		DefaultMarketplaceBaseURL: "https://marketplace.example",
	})
	return e, stateStore
}

func ptr(f float64) *float64 { return &f }

func testStore() types.Store {
	return types.Store{ID: 1, Name: "demo", VenueID: "venue-1", Login: "user", Password: "pass", Enabled: true}
}

// S1: first-ever delta becomes force-full.
func TestFirstEverDeltaBecomesForceFull(t *testing.T) {
	e, _ := newTestEngine(t)
	sotClient := &fakeSoT{
		inventory: []types.InventoryRecord{{ProductID: 1, Rest: 5}, {ProductID: 2, Rest: 0}},
		details: []types.ProductDetail{
			{ProductID: 1, Price: ptr(100), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "A"}}},
			{ProductID: 2, Price: ptr(200), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "B"}}},
		},
	}
	market := &fakeMarketplace{}

	result, err := e.Run(context.Background(), testStore(), sotClient, market, types.ModeDelta, Options{})
	require.NoError(t, err)
	require.Equal(t, types.ModeForceFull, result.Mode)
	require.Equal(t, types.OutcomeSuccess, result.Outcome)

	require.ElementsMatch(t, []types.ItemUpdate{
		{SKU: "A", Enabled: true, Price: 100},
		{SKU: "B", Enabled: false, Price: 200},
	}, market.items)
	require.ElementsMatch(t, []types.InventoryUpdate{
		{SKU: "A", Inventory: 5},
		{SKU: "B", Inventory: 0},
	}, market.inventory)

	saved, err := e.state.Load(1)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Equal(t, 5, saved["A"].Quantity)
	require.True(t, saved["A"].Enabled)
	require.Equal(t, 0, saved["B"].Quantity)
	require.False(t, saved["B"].Enabled)
}

// S2: invalid price forces disable.
func TestInvalidPriceForcesDisable(t *testing.T) {
	e, _ := newTestEngine(t)
	sotClient := &fakeSoT{
		inventory: []types.InventoryRecord{{ProductID: 3, Rest: 7}},
		details: []types.ProductDetail{
			{ProductID: 3, Price: nil, Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "C"}}},
		},
	}
	market := &fakeMarketplace{}

	result, err := e.Run(context.Background(), testStore(), sotClient, market, types.ModeDelta, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.ForcedZeroPrice)

	require.Equal(t, []types.ItemUpdate{{SKU: "C", Enabled: false, Price: 0}}, market.items)
	require.Equal(t, []types.InventoryUpdate{{SKU: "C", Inventory: 0}}, market.inventory)

	saved, err := e.state.Load(1)
	require.NoError(t, err)
	require.Equal(t, 0, saved["C"].Quantity)
	require.False(t, saved["C"].Enabled)
	require.NotNil(t, saved["C"].Price)
	require.Equal(t, 0.0, *saved["C"].Price)
}

// S3: pure delta.
func TestPureDelta(t *testing.T) {
	e, stateStore := newTestEngine(t)
	require.NoError(t, stateStore.Save(1, types.StateMap{
		"A": {Quantity: 10, Enabled: true, Price: ptr(100)},
	}))

	sotClient := &fakeSoT{
		inventory: []types.InventoryRecord{{ProductID: 1, Rest: 5}},
		details: []types.ProductDetail{
			{ProductID: 1, Price: ptr(100), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "A"}}},
		},
	}
	market := &fakeMarketplace{}

	result, err := e.Run(context.Background(), testStore(), sotClient, market, types.ModeDelta, Options{})
	require.NoError(t, err)
	require.Equal(t, types.ModeDelta, result.Mode)

	require.Empty(t, market.items)
	require.Equal(t, []types.InventoryUpdate{{SKU: "A", Inventory: 5}}, market.inventory)

	saved, err := e.state.Load(1)
	require.NoError(t, err)
	require.Equal(t, 5, saved["A"].Quantity)
}

// S4: missing SKU disabled.
func TestMissingSkuDisabled(t *testing.T) {
	e, stateStore := newTestEngine(t)
	require.NoError(t, stateStore.Save(1, types.StateMap{
		"A": {Quantity: 10, Enabled: true, Price: ptr(100)},
		"Z": {Quantity: 4, Enabled: true, Price: ptr(50)},
	}))

	sotClient := &fakeSoT{
		inventory: []types.InventoryRecord{{ProductID: 1, Rest: 10}},
		details: []types.ProductDetail{
			{ProductID: 1, Price: ptr(100), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "A"}}},
		},
	}
	market := &fakeMarketplace{}

	_, err := e.Run(context.Background(), testStore(), sotClient, market, types.ModeDelta, Options{})
	require.NoError(t, err)

	require.Contains(t, market.items, types.ItemUpdate{SKU: "Z", Enabled: false, Price: 50})
	require.Contains(t, market.inventory, types.InventoryUpdate{SKU: "Z", Inventory: 0})

	saved, err := e.state.Load(1)
	require.NoError(t, err)
	require.Equal(t, 0, saved["Z"].Quantity)
	require.False(t, saved["Z"].Enabled)
	require.Equal(t, 50.0, *saved["Z"].Price)
}

// S6: limited run does not persist full state.
func TestLimitedRunDoesNotPersistState(t *testing.T) {
	e, stateStore := newTestEngine(t)
	prior := types.StateMap{"A": {Quantity: 1, Enabled: true, Price: ptr(10)}}
	require.NoError(t, stateStore.Save(1, prior))

	var inventory []types.InventoryRecord
	var details []types.ProductDetail
	for i := 1; i <= 300; i++ {
		inventory = append(inventory, types.InventoryRecord{ProductID: i, Rest: i})
		details = append(details, types.ProductDetail{
			ProductID: i, Price: ptr(10),
			Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: skuName(i)}},
		})
	}
	sotClient := &fakeSoT{inventory: inventory, details: details}
	market := &fakeMarketplace{}

	result, err := e.Run(context.Background(), testStore(), sotClient, market, types.ModeDelta, Options{Limit: 50})
	require.NoError(t, err)
	require.LessOrEqual(t, result.ItemUpdates, 50)
	require.LessOrEqual(t, result.InventoryUpdates, 50)

	saved, err := e.state.Load(1)
	require.NoError(t, err)
	require.Equal(t, prior, saved, "limited run must not overwrite the full state file")
}

// S5: a 429 with Retry-After is retried to success, shrinks the
// adaptive batch size, and does not double-push the batch.
func TestRateLimitedBatchRetriesToSuccess(t *testing.T) {
	e, _ := newTestEngine(t)
	sotClient := &fakeSoT{
		inventory: []types.InventoryRecord{{ProductID: 1, Rest: 5}},
		details: []types.ProductDetail{
			{ProductID: 1, Price: ptr(100), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "A"}}},
		},
	}
	market := &rateLimitOnceMarketplace{retryAfter: "1"}

	store := testStore()
	venueKey := rategovernor.VenueKey("https://marketplace.example", store.VenueID, store.Login)
	sizeBefore := e.batcher.BatchSize(venueKey)

	result, err := e.Run(context.Background(), store, sotClient, market, types.ModeDelta, Options{})
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSuccess, result.Outcome)

	require.Equal(t, []types.ItemUpdate{{SKU: "A", Enabled: true, Price: 100}}, market.items,
		"the rejected batch must be re-pushed exactly once")
	require.Less(t, e.batcher.BatchSize(venueKey), sizeBefore)
}

// Empty SoT inventory is a hard error: no marketplace traffic, no state change.
func TestEmptyInventoryAbortsWithoutSideEffects(t *testing.T) {
	e, stateStore := newTestEngine(t)
	prior := types.StateMap{"A": {Quantity: 1, Enabled: true, Price: ptr(10)}}
	require.NoError(t, stateStore.Save(1, prior))

	sotClient := &fakeSoT{invErr: &sot.EmptyInventoryError{StoreID: 1}}
	market := &fakeMarketplace{}

	_, err := e.Run(context.Background(), testStore(), sotClient, market, types.ModeDelta, Options{})
	require.Error(t, err)
	require.Empty(t, market.items)
	require.Empty(t, market.inventory)

	saved, err := e.state.Load(1)
	require.NoError(t, err)
	require.Equal(t, prior, saved)
}

func skuName(i int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return string(letters[i%26]) + string(letters[(i/26)%26]) + string(rune('0'+i%10))
}
