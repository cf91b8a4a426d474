package hybrid

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/catalogsync/pkg/batcher"
	"github.com/cuemby/catalogsync/pkg/bgworker"
	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/engine"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/state"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeSoT struct {
	inventory []types.InventoryRecord
	details   []types.ProductDetail
}

func (f *fakeSoT) Authenticate(ctx context.Context) error { return nil }
func (f *fakeSoT) Inventory(ctx context.Context, storeID int) ([]types.InventoryRecord, error) {
	return f.inventory, nil
}
func (f *fakeSoT) Products(ctx context.Context, ids []int) ([]types.ProductDetail, error) {
	return f.details, nil
}

type fakeMarketplace struct {
	items      []types.ItemUpdate
	inventory  []types.InventoryUpdate
	listedSKUs []string
	listErr    error
}

func (f *fakeMarketplace) PushItems(ctx context.Context, venueID string, items []types.ItemUpdate) error {
	f.items = append(f.items, items...)
	return nil
}
func (f *fakeMarketplace) PushInventory(ctx context.Context, venueID string, updates []types.InventoryUpdate) error {
	f.inventory = append(f.inventory, updates...)
	return nil
}
func (f *fakeMarketplace) ListItems(ctx context.Context, venueID string) ([]string, error) {
	return f.listedSKUs, f.listErr
}

func ptr(f float64) *float64 { return &f }

func testStore() types.Store {
	return types.Store{ID: 9, Name: "demo", VenueID: "venue-9", Login: "user", Password: "pass", Enabled: true}
}

func newTestEngine(t *testing.T) *engine.Engine {
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

	return engine.New(engine.Config{
		SKUField:   "usr_column_514",
		PhasePause: 0,
		FirstSync:  engine.BatchPlan{BatchSize: 200, Delay: 0},
		Delta:      engine.BatchPlan{BatchSize: 200, Delay: 0},
	}, engine.Dependencies{
		State:                     stateStore,
		Checkpoints:               checkpoints,
		Governor:                  governor,
		Batcher:                   b,
		Breakers:                  breaker.NewRegistry(),
		DefaultMarketplaceBaseURL: "https://marketplace.example",
	})
}

func TestRunBootstrapsIntrospectsAndPushesPriority(t *testing.T) {
	eng := newTestEngine(t)
	sotClient := &fakeSoT{
		inventory: []types.InventoryRecord{
			{ProductID: 1, Rest: 100}, // high stock, high value -> top priority
			{ProductID: 2, Rest: 0},   // out of stock -> score 0, excluded
		},
		details: []types.ProductDetail{
			{ProductID: 1, Price: ptr(75), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "A"}}},
			{ProductID: 2, Price: ptr(10), Extensions: []types.ExtensionField{{Field: "usr_column_514", Value: "B"}}},
		},
	}
	market := &fakeMarketplace{listedSKUs: []string{"B"}}

	dir := t.TempDir()
	progressPath := filepath.Join(dir, ".bg-worker-progress-9.json")
	// Leave StartDelay at its default (1h) so the background worker's
	// own iteration does not race with this test's assertions below.
	bgCfg := bgworker.DefaultConfig()

	result, err := Run(context.Background(), testStore(), sotClient, market, eng, DefaultConfig(), bgCfg, progressPath)
	require.NoError(t, err)
	require.False(t, result.AlreadyInitialized)
	require.Equal(t, 2, result.BootstrappedSKUs)
	require.Equal(t, 1, result.IntrospectedSynced)
	require.Equal(t, 1, result.PrioritySynced)

	require.ElementsMatch(t, []types.ItemUpdate{{SKU: "A", Enabled: true, Price: 75}}, market.items)

	state, err := eng.LoadState(9)
	require.NoError(t, err)
	require.True(t, state["A"].SyncedToMarketplace, "priority-pushed SKU must be marked synced")
	require.True(t, state["B"].SyncedToMarketplace, "introspected SKU must be marked synced")
}

func TestRunIsNoOpWhenStateAlreadyExists(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.SaveState(9, types.StateMap{"A": {Quantity: 1, Enabled: true, Price: ptr(10)}}))

	market := &fakeMarketplace{}
	dir := t.TempDir()
	result, err := Run(context.Background(), testStore(), &fakeSoT{}, market, eng, DefaultConfig(), bgworker.DefaultConfig(), filepath.Join(dir, "progress.json"))
	require.NoError(t, err)
	require.True(t, result.AlreadyInitialized)
	require.Empty(t, market.items)
}
