package hybrid

import (
	"context"
	"fmt"

	"github.com/cuemby/catalogsync/pkg/bgworker"
	"github.com/cuemby/catalogsync/pkg/engine"
	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/priority"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/types"
)

// Config tunes the priority sync stage.
type Config struct {
	PriorityLimit   int // default 500
	PriorityWeights priority.Weights
}

// DefaultConfig returns the documented default.
func DefaultConfig() Config {
	return Config{
		PriorityLimit:   500,
		PriorityWeights: priority.DefaultWeights(),
	}
}

// Result summarizes what the orchestrator did, for logging and the
// hybrid-init CLI command's output.
type Result struct {
	AlreadyInitialized bool
	BootstrappedSKUs   int
	IntrospectedSynced int
	PrioritySynced     int
}

// Run performs first-time store initialization: bootstrap, best-effort
// introspection, priority push, then hands off to a BackgroundWorker
// goroutine it
// starts and returns (it does not wait for the worker to finish; the
// worker runs for the lifetime of the process). If store already has
// persisted state, Run no-ops.
func Run(ctx context.Context, store types.Store, sotClient sot.Client, marketClient marketplace.Client, eng *engine.Engine, cfg Config, bgCfg bgworker.Config, progressPath string) (Result, error) {
	logger := log.WithStoreID(store.ID).With().Str("component", "hybrid-orchestrator").Logger()

	existing, err := eng.LoadState(store.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load state: %w", err)
	}
	if len(existing) > 0 {
		logger.Info().Int("skus", len(existing)).Msg("state already exists, hybrid init is a no-op")
		return Result{AlreadyInitialized: true}, nil
	}

	// Step 1: bootstrap. No marketplace calls; this turns every
	// subsequent scheduled run into an ordinary delta.
	bootstrapResult, err := eng.Run(ctx, store, sotClient, marketClient, types.ModeBootstrap, engine.Options{})
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: %w", err)
	}
	if bootstrapResult.Outcome != types.OutcomeSuccess {
		return Result{}, fmt.Errorf("bootstrap did not succeed: outcome=%s", bootstrapResult.Outcome)
	}

	state, err := eng.LoadState(store.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load bootstrapped state: %w", err)
	}
	result := Result{BootstrappedSKUs: len(state)}
	logger.Info().Int("skus", result.BootstrappedSKUs).Msg("bootstrap complete")

	// Step 2: best-effort introspection.
	introspected, err := marketClient.ListItems(ctx, store.VenueID)
	if err != nil {
		logger.Warn().Err(err).Msg("marketplace introspection failed, continuing without it")
	}
	for _, sku := range introspected {
		entry, ok := state[sku]
		if !ok {
			continue
		}
		entry.SyncedToMarketplace = true
		state[sku] = entry
		result.IntrospectedSynced++
	}
	if result.IntrospectedSynced > 0 {
		if err := eng.SaveState(store.ID, state); err != nil {
			logger.Error().Err(err).Msg("failed to persist introspection results")
		}
		logger.Info().Int("count", result.IntrospectedSynced).Msg("marked SKUs synced from marketplace introspection")
	}

	// Step 3: priority sync. Re-fetch rather than reuse the bootstrap
	// views: inventory/details are cheap HTTP calls and re-fetching
	// keeps this stage decoupled from bootstrap's internal view
	// construction.
	inventory, err := eng.FetchInventory(ctx, store, sotClient)
	if err != nil {
		return result, fmt.Errorf("fetch inventory for priority sync: %w", err)
	}
	ids := make([]int, len(inventory))
	for i, r := range inventory {
		ids[i] = r.ProductID
	}
	details, err := eng.FetchDetails(ctx, ids, sotClient)
	if err != nil {
		return result, fmt.Errorf("fetch details for priority sync: %w", err)
	}
	views := engine.BuildSkuView(inventory, details, bgCfg.SKUField)
	views, _ = engine.ApplyForceZeroRule(views)

	scored := priority.ScoreAll(views, cfg.PriorityWeights)
	top := priority.TopN(scored, cfg.PriorityLimit)

	if len(top) > 0 {
		items := make([]types.ItemUpdate, len(top))
		inventoryUpdates := make([]types.InventoryUpdate, len(top))
		for i, s := range top {
			price, _ := types.ValidPrice(s.Price)
			items[i] = types.ItemUpdate{SKU: s.SKU, Enabled: s.Enabled, Price: price}
			inventoryUpdates[i] = types.InventoryUpdate{SKU: s.SKU, Inventory: s.Quantity}
		}

		if err := eng.PushAdaptiveBatches(ctx, store, marketClient, items, inventoryUpdates); err != nil {
			return result, fmt.Errorf("priority push: %w", err)
		}

		state, err = eng.LoadState(store.ID)
		if err != nil {
			return result, fmt.Errorf("reload state after priority push: %w", err)
		}
		for _, s := range top {
			entry := state[s.SKU]
			entry.SyncedToMarketplace = true
			state[s.SKU] = entry
		}
		if err := eng.SaveState(store.ID, state); err != nil {
			logger.Error().Err(err).Msg("failed to persist synced flags after priority push")
		}
		result.PrioritySynced = len(top)
		logger.Info().Int("count", result.PrioritySynced).Msg("priority sync push complete")
	}

	// Step 4: start the background worker, non-blocking.
	worker := bgworker.New(store, sotClient, marketClient, eng, bgCfg, progressPath)
	go worker.Run(ctx)
	logger.Info().Msg("background worker started")

	return result, nil
}
