package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cuemby/catalogsync/pkg/batcher"
	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/metrics"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/state"
	"github.com/cuemby/catalogsync/pkg/types"
)

// Result is what one Run call returns: the mode actually run (which
// may have been upgraded from delta to force-full), how many updates
// were pushed, and the terminal state machine value.
type Result struct {
	Mode             types.RunMode
	Outcome          types.RunOutcome
	ItemUpdates      int
	InventoryUpdates int
	ForcedZeroPrice  int
}

// Dependencies are the shared, process-scoped collaborators threaded
// through every Engine run. They are constructed once by the caller
// (the Scheduler/CLI wiring) and passed in, never looked up globally.
type Dependencies struct {
	State       state.Store
	Checkpoints state.CheckpointStore
	Governor    *rategovernor.Governor
	Batcher     *batcher.Batcher
	Breakers    *breaker.Registry

	// DefaultMarketplaceBaseURL is used for venues whose Store does not
	// override BaseURL.
	DefaultMarketplaceBaseURL string
}

// Engine is the per-store sync pipeline. One Engine instance is
// constructed per process and reused across every store's runs;
// per-store SoT/marketplace clients are passed into Run.
type Engine struct {
	cfg                       Config
	state                     state.Store
	checkpoints               state.CheckpointStore
	governor                  *rategovernor.Governor
	batcher                   *batcher.Batcher
	breakers                  *breaker.Registry
	defaultMarketplaceBaseURL string
	now                       func() time.Time
}

// New constructs an Engine from Config and its shared Dependencies.
func New(cfg Config, deps Dependencies) *Engine {
	return &Engine{
		cfg:                       cfg,
		state:                     deps.State,
		checkpoints:               deps.Checkpoints,
		governor:                  deps.Governor,
		batcher:                   deps.Batcher,
		breakers:                  deps.Breakers,
		defaultMarketplaceBaseURL: deps.DefaultMarketplaceBaseURL,
		now:                       time.Now,
	}
}

// Run executes one full pipeline pass for store: load state, fetch
// from the source of truth, diff, and (unless bootstrap or dry-run)
// push the result through the two-phase marketplace path.
func (e *Engine) Run(ctx context.Context, store types.Store, sotClient sot.Client, marketClient marketplace.Client, mode types.RunMode, opts Options) (Result, error) {
	start := e.now()
	logger := log.WithStoreID(store.ID)
	storeLabel := strconv.Itoa(store.ID)
	result := Result{Mode: mode}

	prevState, loadErr := e.state.Load(store.ID)
	if loadErr != nil {
		logger.Error().Err(loadErr).Msg("state load failed, treating as empty")
		prevState = types.StateMap{}
	}

	// Empty prior state upgrades the run to force-full, since a delta
	// against nothing would never catch up.
	if len(prevState) == 0 && mode != types.ModeBootstrap && mode != types.ModeForceFull {
		logger.Warn().Str("from_mode", string(mode)).Msg("no prior state found, upgrading run to force-full")
		mode = types.ModeForceFull
		result.Mode = mode
	}

	inventory, err := e.fetchInventory(ctx, store, sotClient)
	if err != nil {
		return e.finishError(store, result, start, err)
	}

	details, err := e.fetchDetails(ctx, inventoryProductIDs(inventory), sotClient)
	if err != nil {
		return e.finishError(store, result, start, err)
	}

	views := buildSkuView(inventory, details, e.cfg.SKUField)
	finalViews, forced := applyForceZeroRule(views)
	result.ForcedZeroPrice = len(forced)
	if len(forced) > 0 {
		metrics.ForcedZeroPriceTotal.WithLabelValues(storeLabel).Add(float64(len(forced)))
		logger.Warn().
			Int("count", len(forced)).
			Strs("skus", truncate(forced, 20)).
			Msg("forcing zero inventory and disabled state for SKUs with an invalid price")
	}

	now := e.now()

	if mode == types.ModeBootstrap {
		bootstrapState := bootstrapStateMap(finalViews, now)
		if err := e.state.Save(store.ID, bootstrapState); err != nil {
			logger.Error().Err(err).Msg("bootstrap state save failed")
		}
		return e.finishSuccess(store, result, start)
	}

	d := diff(finalViews, prevState, mode == types.ModeForceFull, now)
	items, inventoryUpdates := d.items, d.inventory

	limited := mode == types.ModeLimited || opts.Limit > 0
	if opts.Limit > 0 {
		items = truncate(items, opts.Limit)
		inventoryUpdates = truncate(inventoryUpdates, opts.Limit)
	}
	result.ItemUpdates = len(items)
	result.InventoryUpdates = len(inventoryUpdates)

	if opts.DryRun {
		return e.finishSuccess(store, result, start)
	}

	venueKey := rategovernor.VenueKey(e.venueBaseURL(store), store.VenueID, store.Login)
	planSize, _ := e.batchPlan(mode, opts.UseAdaptiveBatcher, venueKey)
	totalBatches := estimatedBatchCount(len(items), planSize) + estimatedBatchCount(len(inventoryUpdates), planSize)
	cp := newCheckpointTracker(e.checkpoints, store.ID, totalBatches)

	if err := e.pushPhases(ctx, store, marketClient, items, inventoryUpdates, mode, opts.UseAdaptiveBatcher, cp); err != nil {
		return e.finishError(store, result, start, err)
	}
	cp.finish()

	if !limited {
		if err := e.state.Save(store.ID, d.nextState); err != nil {
			logger.Error().Err(err).Msg("state save failed after run")
		}
	}

	return e.finishSuccess(store, result, start)
}

func (e *Engine) fetchInventory(ctx context.Context, store types.Store, sotClient sot.Client) ([]types.InventoryRecord, error) {
	var records []types.InventoryRecord
	err := e.breakers.SoT().Execute(func() error {
		var opErr error
		records, opErr = sotClient.Inventory(ctx, store.ID)
		return opErr
	})
	if err != nil {
		return nil, classifySoTError(err)
	}
	return records, nil
}

func (e *Engine) fetchDetails(ctx context.Context, ids []int, sotClient sot.Client) ([]types.ProductDetail, error) {
	var details []types.ProductDetail
	err := e.breakers.SoT().Execute(func() error {
		var opErr error
		details, opErr = sotClient.Products(ctx, ids)
		return opErr
	})
	if err != nil {
		return nil, classifySoTError(err)
	}
	return details, nil
}

func classifySoTError(err error) error {
	var coe *breaker.CircuitOpenError
	if errors.As(err, &coe) {
		return &types.DependencyError{Dependency: types.DependencySoT, Kind: "circuit-open", Err: err}
	}
	var empty *sot.EmptyInventoryError
	if errors.As(err, &empty) {
		return types.NewSoTError("empty-inventory", err)
	}
	var short *sot.ShortDetailResponseError
	if errors.As(err, &short) {
		return types.NewSoTError("partial-details", err)
	}
	return types.NewSoTError("fetch-failed", err)
}

func (e *Engine) finishSuccess(store types.Store, result Result, start time.Time) (Result, error) {
	result.Outcome = types.OutcomeSuccess
	e.recordOutcome(store, result, start)
	return result, nil
}

func (e *Engine) finishError(store types.Store, result Result, start time.Time, err error) (Result, error) {
	result.Outcome = types.OutcomeError
	e.recordOutcome(store, result, start)

	var depErr *types.DependencyError
	if errors.As(err, &depErr) {
		metrics.DependencyErrorsTotal.WithLabelValues(strconv.Itoa(store.ID), string(depErr.Dependency)).Inc()
	}
	return result, err
}

func (e *Engine) recordOutcome(store types.Store, result Result, start time.Time) {
	storeLabel := strconv.Itoa(store.ID)
	metrics.RunsTotal.WithLabelValues(storeLabel, string(result.Outcome)).Inc()
	metrics.RunDuration.WithLabelValues(storeLabel, string(result.Mode)).Observe(e.now().Sub(start).Seconds())
}

func estimatedBatchCount(n, size int) int {
	if size <= 0 || n == 0 {
		if n == 0 {
			return 0
		}
		return 1
	}
	return (n + size - 1) / size
}
