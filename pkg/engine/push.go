package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/metrics"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/retry"
	"github.com/cuemby/catalogsync/pkg/types"
)

// batchPlan resolves the batch size and inter-batch delay to use for
// one phase, either from the adaptive batcher (hybrid/background
// paths) or from the mode-appropriate fixed plan.
func (e *Engine) batchPlan(mode types.RunMode, adaptive bool, venueKey string) (int, time.Duration) {
	if adaptive {
		return e.batcher.BatchSize(venueKey), e.batcher.RecommendedDelay(venueKey)
	}
	if mode == types.ModeForceFull || mode == types.ModeBootstrap {
		return e.cfg.FirstSync.BatchSize, e.cfg.FirstSync.Delay
	}
	return e.cfg.Delta.BatchSize, e.cfg.Delta.Delay
}

// pushPhases runs the two-phase push: every item-update batch, then a
// fixed pause, then every inventory-update batch.
func (e *Engine) pushPhases(ctx context.Context, store types.Store, marketClient marketplace.Client, items []types.ItemUpdate, inventory []types.InventoryUpdate, mode types.RunMode, adaptive bool, cp *checkpointTracker) error {
	venueKey := rategovernor.VenueKey(e.venueBaseURL(store), store.VenueID, store.Login)

	if err := e.pushItemBatches(ctx, store, marketClient, items, mode, adaptive, venueKey, cp); err != nil {
		return err
	}

	if len(items) > 0 && len(inventory) > 0 {
		if err := e.sleep(ctx, e.cfg.PhasePause); err != nil {
			return err
		}
	}

	return e.pushInventoryBatches(ctx, store, marketClient, inventory, mode, adaptive, venueKey, cp)
}

func (e *Engine) pushItemBatches(ctx context.Context, store types.Store, marketClient marketplace.Client, items []types.ItemUpdate, mode types.RunMode, adaptive bool, venueKey string, cp *checkpointTracker) error {
	size, delay := e.batchPlan(mode, adaptive, venueKey)
	batches := splitBatches(items, size)
	storeLabel := strconv.Itoa(store.ID)

	for i, batch := range batches {
		if err := e.pushOneBatch(ctx, venueKey, func() error {
			return marketClient.PushItems(ctx, store.VenueID, batch)
		}); err != nil {
			return classifyMarketplaceError(err)
		}
		metrics.ItemsPushedTotal.WithLabelValues(storeLabel, "item").Add(float64(len(batch)))
		cp.advance()
		if i < len(batches)-1 {
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) pushInventoryBatches(ctx context.Context, store types.Store, marketClient marketplace.Client, updates []types.InventoryUpdate, mode types.RunMode, adaptive bool, venueKey string, cp *checkpointTracker) error {
	size, delay := e.batchPlan(mode, adaptive, venueKey)
	batches := splitBatches(updates, size)
	storeLabel := strconv.Itoa(store.ID)

	for i, batch := range batches {
		if err := e.pushOneBatch(ctx, venueKey, func() error {
			return marketClient.PushInventory(ctx, store.VenueID, batch)
		}); err != nil {
			return classifyMarketplaceError(err)
		}
		metrics.ItemsPushedTotal.WithLabelValues(storeLabel, "inventory").Add(float64(len(batch)))
		cp.advance()
		if i < len(batches)-1 {
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// pushOneBatch composes rate-gate, retry and circuit-breaker around a
// single marketplace call. The rate governor is consulted on every
// physical attempt (not just the first), which keeps its gate
// authoritative even across retries of the same batch. A 429 is reported to the governor and the
// batcher from the retrier's OnRetry hook, before the retrier sleeps.
func (e *Engine) pushOneBatch(ctx context.Context, venueKey string, call func() error) error {
	policy := retry.MarketplacePolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		var statusErr *marketplace.StatusError
		if errors.As(err, &statusErr) && statusErr.IsRateLimit() {
			e.governor.OnRateLimited(venueKey, statusErr.RetryAfterRaw)
			e.batcher.OnRateLimit(venueKey)
			metrics.RateLimitHitsTotal.WithLabelValues(venueKey).Inc()
		}
	}
	retrier := retry.New(policy)

	err := e.breakers.Marketplace().Execute(func() error {
		return retrier.Do(ctx, func() error {
			e.governor.WaitForTurn(venueKey)
			return call()
		})
	})
	if err != nil {
		return err
	}

	e.batcher.OnSuccess(venueKey)
	e.governor.OnSuccess(venueKey)
	return nil
}

func classifyMarketplaceError(err error) error {
	var coe *breaker.CircuitOpenError
	if errors.As(err, &coe) {
		return &types.DependencyError{Dependency: types.DependencyMarketplace, Kind: "circuit-open", Err: err}
	}
	return types.NewMarketplaceError("terminal", err)
}

func (e *Engine) venueBaseURL(store types.Store) string {
	if store.BaseURL != "" {
		return store.BaseURL
	}
	return e.defaultMarketplaceBaseURL
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
