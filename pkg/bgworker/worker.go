package bgworker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/catalogsync/pkg/engine"
	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/metrics"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/rs/zerolog"
)

// Config tunes one store's Worker.
type Config struct {
	DailyLimit    int           // default 500
	StartDelay    time.Duration // default 1h, lets priority sync settle first
	BatchInterval time.Duration // default 24h
	SKUField      string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DailyLimit:    500,
		StartDelay:    1 * time.Hour,
		BatchInterval: 24 * time.Hour,
		SKUField:      "usr_column_514",
	}
}

// Progress is the on-disk shape written to
// ".bg-worker-progress-<id>.json" after every iteration.
type Progress struct {
	TotalItems             int       `json:"totalItems"`
	SyncedItems            int       `json:"syncedItems"`
	RemainingItems         int       `json:"remainingItems"`
	PercentComplete        float64   `json:"percentComplete"`
	EstimatedDaysRemaining float64   `json:"estimatedDaysRemaining"`
	LastSyncAt             time.Time `json:"lastSyncAt"`
	StartedAt              time.Time `json:"startedAt"`
}

// Worker drains SKUs the marketplace has not yet acknowledged for one
// store, at a bounded daily rate, cooperatively stoppable at batch
// boundaries.
type Worker struct {
	store        types.Store
	sotClient    sot.Client
	marketClient marketplace.Client
	engine       *engine.Engine
	cfg          Config
	progressPath string
	logger       zerolog.Logger
	now          func() time.Time

	startedAt time.Time

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// New constructs a Worker for one store. progressPath is the file the
// worker writes its Progress snapshot to after every iteration.
func New(store types.Store, sotClient sot.Client, marketClient marketplace.Client, eng *engine.Engine, cfg Config, progressPath string) *Worker {
	return &Worker{
		store:        store,
		sotClient:    sotClient,
		marketClient: marketClient,
		engine:       eng,
		cfg:          cfg,
		progressPath: progressPath,
		logger:       log.WithStoreID(store.ID).With().Str("component", "background-worker").Logger(),
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Stop requests the worker to exit at the next batch boundary or
// between phases. Run completes the in-flight batch before returning;
// it never cancels mid-batch.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

func (w *Worker) stopRequested() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// Run is the worker's lifecycle: wait the initial
// start delay, then loop forever, one iteration per BatchInterval,
// until Stop is called or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.startedAt = w.now()

	if !w.sleep(ctx, w.cfg.StartDelay) {
		return
	}

	for {
		if w.stopRequested() {
			w.logger.Info().Msg("background worker stopping before next iteration")
			return
		}

		if err := w.runIteration(ctx); err != nil {
			w.logger.Error().Err(err).Msg("background worker iteration failed, will retry next interval")
		}

		if !w.sleep(ctx, w.cfg.BatchInterval) {
			return
		}
	}
}

// sleep waits for d, or returns false early if ctx is cancelled or
// Stop was called.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// runIteration selects the next batch of unsynced SKUs, pushes them,
// and records progress.
func (w *Worker) runIteration(ctx context.Context) error {
	state, err := w.engine.LoadState(w.store.ID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	inventory, err := w.engine.FetchInventory(ctx, w.store, w.sotClient)
	if err != nil {
		return fmt.Errorf("fetch inventory: %w", err)
	}
	ids := make([]int, len(inventory))
	for i, r := range inventory {
		ids[i] = r.ProductID
	}
	details, err := w.engine.FetchDetails(ctx, ids, w.sotClient)
	if err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}

	views := engine.BuildSkuView(inventory, details, w.cfg.SKUField)
	views, forced := engine.ApplyForceZeroRule(views)
	if len(forced) > 0 {
		w.logger.Warn().Int("count", len(forced)).Msg("forcing zero inventory for SKUs with invalid price")
	}

	candidates := w.selectCandidates(views, state)
	total := len(candidates)
	if total > w.cfg.DailyLimit {
		candidates = candidates[:w.cfg.DailyLimit]
	}

	if len(candidates) == 0 {
		w.logger.Debug().Msg("no unsynced candidates this iteration")
		return w.writeProgress(state)
	}

	items := make([]types.ItemUpdate, len(candidates))
	inventoryUpdates := make([]types.InventoryUpdate, len(candidates))
	for i, v := range candidates {
		price, _ := types.ValidPrice(v.Price)
		items[i] = types.ItemUpdate{SKU: v.SKU, Enabled: v.Enabled, Price: price}
		inventoryUpdates[i] = types.InventoryUpdate{SKU: v.SKU, Inventory: v.Quantity}
	}

	if stopRequested := w.stopRequested(); stopRequested {
		return nil
	}

	if err := w.engine.PushAdaptiveBatches(ctx, w.store, w.marketClient, items, inventoryUpdates); err != nil {
		return fmt.Errorf("push candidates: %w", err)
	}

	for _, v := range candidates {
		entry := state[v.SKU]
		entry.SyncedToMarketplace = true
		if entry.LastSeen == 0 {
			entry.LastSeen = w.now().UnixMilli()
		}
		state[v.SKU] = entry
	}
	if err := w.engine.SaveState(w.store.ID, state); err != nil {
		w.logger.Error().Err(err).Msg("failed to persist synced flags after background push")
	}

	return w.writeProgress(state)
}

// selectCandidates picks SKUs present in the current view whose state
// entry either does not exist or lacks syncedToMarketplace=true.
func (w *Worker) selectCandidates(views []types.SkuView, state types.StateMap) []types.SkuView {
	var candidates []types.SkuView
	for _, v := range views {
		entry, ok := state[v.SKU]
		if !ok || !entry.SyncedToMarketplace {
			candidates = append(candidates, v)
		}
	}
	return candidates
}

func (w *Worker) writeProgress(state types.StateMap) error {
	total := len(state)
	synced := 0
	for _, e := range state {
		if e.SyncedToMarketplace {
			synced++
		}
	}
	remaining := total - synced
	percent := 100.0
	if total > 0 {
		percent = (float64(synced) / float64(total)) * 100
	}

	daysRemaining := 0.0
	if w.cfg.DailyLimit > 0 && remaining > 0 {
		daysRemaining = float64(remaining) / float64(w.cfg.DailyLimit)
	}

	progress := Progress{
		TotalItems:             total,
		SyncedItems:            synced,
		RemainingItems:         remaining,
		PercentComplete:        percent,
		EstimatedDaysRemaining: daysRemaining,
		LastSyncAt:             w.now(),
		StartedAt:              w.startedAt,
	}

	metrics.BackgroundWorkerProgress.WithLabelValues(fmt.Sprint(w.store.ID)).Set(percent)

	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	tmp := w.progressPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress temp file: %w", err)
	}
	if err := os.Rename(tmp, w.progressPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}
