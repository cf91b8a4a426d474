package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/catalogsync/pkg/engine"
	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/metrics"
	"github.com/cuemby/catalogsync/pkg/sot"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HealthState is the coarse verdict returned by GET /health.
type HealthState string

const (
	HealthUp       HealthState = "UP"
	HealthError    HealthState = "ERROR"
	HealthDisabled HealthState = "DISABLED"
)

const historyLimit = 50

// ClientFactory builds the per-store SoT/marketplace clients a sweep
// needs. Constructing clients is the caller's concern (credential
// resolution, base URL defaulting); the Scheduler only consumes them.
type ClientFactory func(store types.Store) (sot.Client, marketplace.Client, error)

// Config tunes the Scheduler.
type Config struct {
	// SyncInterval is the period between sweeps.
	SyncInterval time.Duration

	// EngineOptions is passed to every scheduled engine.Run call;
	// scheduled sweeps use the engine's fixed batch plans, not the
	// adaptive batcher (that is reserved for the hybrid priority push
	// and the background worker).
	EngineOptions engine.Options
}

// DefaultConfig returns the documented default.
func DefaultConfig() Config {
	return Config{SyncInterval: 20 * time.Minute}
}

// StoreOutcome is one store's result within a sweep.
type StoreOutcome struct {
	StoreID int
	Name    string
	Result  engine.Result
	Err     error
}

// SweepRecord is one completed sweep, kept in a bounded in-memory
// history for the operator's /metrics/history endpoint.
type SweepRecord struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   types.RunOutcome
	Stores    []StoreOutcome
}

// Scheduler is the top-level sweep loop: on a timer, walk every
// enabled store sequentially and run one SyncEngine pass each.
// Parallelizing across stores is deliberately not done; a single
// ERP tenant backs every store, and concurrent full-catalog pulls
// would multiply its working set for no throughput gain.
type Scheduler struct {
	stores  []types.Store
	engine  *engine.Engine
	clients ClientFactory
	cfg     Config
	logger  zerolog.Logger

	mu                  sync.RWMutex
	running             bool
	stopCh              chan struct{}
	disabled            bool
	lastSweep           SweepRecord
	history             []SweepRecord
	consecutiveFailures map[int]int
}

// New constructs a Scheduler over stores. It does not start the sweep
// loop; call Start for that.
func New(stores []types.Store, eng *engine.Engine, clients ClientFactory, cfg Config) *Scheduler {
	var enabled []types.Store
	for _, s := range stores {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}

	s := &Scheduler{
		stores:              enabled,
		engine:              eng,
		clients:             clients,
		cfg:                 cfg,
		logger:              log.WithComponent("scheduler"),
		stopCh:              make(chan struct{}),
		consecutiveFailures: make(map[int]int),
	}
	if len(enabled) == 0 {
		s.disabled = true
		s.logger.Warn().Msg("no enabled stores configured, scheduler is entering the disabled health state")
	}
	return s
}

// Start begins the periodic sweep loop in a background goroutine. A
// no-op (logged, not an error) if no stores are enabled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.disabled {
		return
	}
	go s.run(ctx)
}

// Stop requests the sweep loop to exit. It does not interrupt a sweep
// already in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes a single sweep across all enabled stores,
// sequentially. It is skipped (returning the prior sweep's record and
// no error) if a previous sweep is still in flight; it is exported so
// single-store mode and the operator's trigger-sync endpoint can drive
// a sweep directly.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepRecord, error) {
	s.mu.Lock()
	if s.running {
		prior := s.lastSweep
		s.mu.Unlock()
		s.logger.Warn().Msg("previous sweep still running, skipping this tick")
		return prior, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	record := SweepRecord{ID: uuid.New().String(), StartedAt: start}

	successCount, failureCount := 0, 0
	for _, store := range s.stores {
		outcome := s.runStore(ctx, store)
		record.Stores = append(record.Stores, outcome)
		if outcome.Err != nil {
			failureCount++
		} else {
			successCount++
		}
	}

	switch {
	case len(s.stores) == 0:
		record.Outcome = types.OutcomeSuccess
	case failureCount == 0:
		record.Outcome = types.OutcomeSuccess
	case successCount == 0:
		record.Outcome = types.OutcomeError
	default:
		record.Outcome = types.OutcomePartial
	}
	record.Duration = time.Since(start)

	metrics.SweepsTotal.WithLabelValues(string(record.Outcome)).Inc()
	metrics.SweepDuration.Observe(record.Duration.Seconds())

	s.mu.Lock()
	s.lastSweep = record
	s.history = append(s.history, record)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("sweep_id", record.ID).
		Str("outcome", string(record.Outcome)).
		Dur("duration", record.Duration).
		Int("stores_succeeded", successCount).
		Int("stores_failed", failureCount).
		Msg("sweep complete")

	return record, nil
}

// runStore runs one store's scheduled engine pass, never letting its
// error propagate to sibling stores.
func (s *Scheduler) runStore(ctx context.Context, store types.Store) StoreOutcome {
	logger := log.WithStoreID(store.ID)
	outcome := StoreOutcome{StoreID: store.ID, Name: store.Name}

	sotClient, marketClient, err := s.clients(store)
	if err != nil {
		outcome.Err = fmt.Errorf("build clients for store %d: %w", store.ID, err)
		s.recordFailure(store.ID)
		logger.Error().Err(err).Msg("failed to construct store clients")
		return outcome
	}

	result, err := s.engine.Run(ctx, store, sotClient, marketClient, types.ModeDelta, s.cfg.EngineOptions)
	outcome.Result = result
	if err != nil {
		outcome.Err = err
		s.recordFailure(store.ID)
		logger.Error().Err(err).Msg("store sync run failed")
		return outcome
	}

	s.recordSuccess(store.ID)
	return outcome
}

func (s *Scheduler) recordFailure(storeID int) {
	s.mu.Lock()
	s.consecutiveFailures[storeID]++
	count := s.consecutiveFailures[storeID]
	s.mu.Unlock()
	metrics.ConsecutiveFailures.WithLabelValues(fmt.Sprint(storeID)).Set(float64(count))
}

func (s *Scheduler) recordSuccess(storeID int) {
	s.mu.Lock()
	s.consecutiveFailures[storeID] = 0
	s.mu.Unlock()
	metrics.ConsecutiveFailures.WithLabelValues(fmt.Sprint(storeID)).Set(0)
}

// Health reports the coarse verdict for GET /health.
func (s *Scheduler) Health() HealthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disabled {
		return HealthDisabled
	}
	switch s.lastSweep.Outcome {
	case types.OutcomeError:
		return HealthError
	case "":
		return HealthUp // no sweep has run yet; startup is healthy by default
	default:
		return HealthUp
	}
}

// History returns a copy of the bounded recent-sweep history, newest
// last.
func (s *Scheduler) History() []SweepRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SweepRecord, len(s.history))
	copy(out, s.history)
	return out
}

// ConsecutiveFailures returns the current per-store consecutive
// failure count, for the operator /metrics/store/:id endpoint.
func (s *Scheduler) ConsecutiveFailures(storeID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures[storeID]
}

// Stores returns the enabled stores this Scheduler sweeps.
func (s *Scheduler) Stores() []types.Store {
	out := make([]types.Store, len(s.stores))
	copy(out, s.stores)
	return out
}
