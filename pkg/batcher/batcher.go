package batcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/rs/zerolog"
)

// Config tunes one venue's AdaptiveBatcher.
type Config struct {
	MinBatchSize      int
	MaxBatchSize      int // hard ceiling: marketplace per-batch payload limit
	InitialBatchSize  int
	IncreaseThreshold int     // consecutive successes required to grow
	IncreaseRate      float64 // multiplicative growth factor
	DecreaseRate      float64 // multiplicative shrink factor on a 429

	NominalDelay       time.Duration
	ConservativeDelay  time.Duration
	ConservativeWindow time.Duration // how long after a 429 the conservative delay applies
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinBatchSize:       10,
		MaxBatchSize:       200,
		InitialBatchSize:   50,
		IncreaseThreshold:  5,
		IncreaseRate:       1.5,
		DecreaseRate:       0.5,
		NominalDelay:       2 * time.Second,
		ConservativeDelay:  15 * time.Second,
		ConservativeWindow: 5 * time.Minute,
	}
}

type venueState struct {
	CurrentBatchSize  int   `json:"currentBatchSize"`
	SuccessStreak     int   `json:"successStreak"`
	FailureStreak     int   `json:"failureStreak"`
	LastRateLimitAtMs int64 `json:"lastRateLimitAtMs"`
	TotalSuccesses    int64 `json:"totalSuccesses"`
	TotalRateLimits   int64 `json:"totalRateLimits"`
}

// Batcher is the process-local, per-venue adaptive batch controller.
type Batcher struct {
	cfg         Config
	persistPath string
	logger      zerolog.Logger
	now         func() time.Time

	mu     sync.Mutex
	venues map[string]*venueState
}

// New creates a Batcher, loading any persisted state from persistPath.
func New(persistPath string, cfg Config) (*Batcher, error) {
	if cfg.MaxBatchSize > 200 {
		cfg.MaxBatchSize = 200 // hard per-batch payload ceiling imposed by the marketplace
	}
	b := &Batcher{
		cfg:         cfg,
		persistPath: persistPath,
		logger:      log.WithComponent("adaptive-batcher"),
		now:         time.Now,
		venues:      make(map[string]*venueState),
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Batcher) venue(venueKey string) *venueState {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.venues[venueKey]
	if !ok {
		v = &venueState{CurrentBatchSize: clamp(b.cfg.InitialBatchSize, b.cfg.MinBatchSize, b.cfg.MaxBatchSize)}
		b.venues[venueKey] = v
	}
	return v
}

// BatchSize returns the current recommended batch size for venueKey.
func (b *Batcher) BatchSize(venueKey string) int {
	v := b.venue(venueKey)
	b.mu.Lock()
	defer b.mu.Unlock()
	return v.CurrentBatchSize
}

// OnSuccess records a successful batch and grows the batch size every
// IncreaseThreshold consecutive successes.
func (b *Batcher) OnSuccess(venueKey string) {
	v := b.venue(venueKey)

	b.mu.Lock()
	v.SuccessStreak++
	v.FailureStreak = 0
	v.TotalSuccesses++
	grew := false
	if v.SuccessStreak >= b.cfg.IncreaseThreshold {
		next := int(math.Floor(float64(v.CurrentBatchSize) * b.cfg.IncreaseRate))
		v.CurrentBatchSize = clamp(next, b.cfg.MinBatchSize, b.cfg.MaxBatchSize)
		v.SuccessStreak = 0
		grew = true
	}
	snapshot := *v
	b.mu.Unlock()

	if grew {
		b.logger.Debug().Str("venue", venueKey).Int("batch_size", snapshot.CurrentBatchSize).Msg("adaptive batch size increased")
	}
	if err := b.persist(); err != nil {
		b.logger.Error().Err(err).Str("venue", venueKey).Msg("failed to persist adaptive batch state")
	}
}

// OnRateLimit records a 429 and shrinks the batch size.
func (b *Batcher) OnRateLimit(venueKey string) {
	v := b.venue(venueKey)

	b.mu.Lock()
	v.SuccessStreak = 0
	v.FailureStreak++
	v.TotalRateLimits++
	v.LastRateLimitAtMs = b.now().UnixMilli()
	next := int(math.Floor(float64(v.CurrentBatchSize) * b.cfg.DecreaseRate))
	v.CurrentBatchSize = clamp(next, b.cfg.MinBatchSize, b.cfg.MaxBatchSize)
	snapshot := *v
	b.mu.Unlock()

	b.logger.Warn().Str("venue", venueKey).Int("batch_size", snapshot.CurrentBatchSize).Msg("adaptive batch size decreased after rate limit")
	if err := b.persist(); err != nil {
		b.logger.Error().Err(err).Str("venue", venueKey).Msg("failed to persist adaptive batch state")
	}
}

// RecommendedDelay returns the inter-batch delay for venueKey: a
// conservative delay if a rate limit happened recently, otherwise the
// nominal delay.
func (b *Batcher) RecommendedDelay(venueKey string) time.Duration {
	v := b.venue(venueKey)
	b.mu.Lock()
	lastRateLimit := v.LastRateLimitAtMs
	b.mu.Unlock()

	if lastRateLimit > 0 && b.now().UnixMilli()-lastRateLimit < b.cfg.ConservativeWindow.Milliseconds() {
		return b.cfg.ConservativeDelay
	}
	return b.cfg.NominalDelay
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (b *Batcher) load() error {
	raw, err := os.ReadFile(b.persistPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read adaptive-batch state: %w", err)
	}

	var persisted map[string]venueState
	if err := json.Unmarshal(raw, &persisted); err != nil {
		b.logger.Warn().Err(err).Msg("adaptive-batch state file corrupt, starting fresh")
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, state := range persisted {
		v := state
		if v.CurrentBatchSize == 0 {
			v.CurrentBatchSize = clamp(b.cfg.InitialBatchSize, b.cfg.MinBatchSize, b.cfg.MaxBatchSize)
		}
		b.venues[key] = &v
	}
	return nil
}

func (b *Batcher) persist() error {
	b.mu.Lock()
	snapshot := make(map[string]venueState, len(b.venues))
	for key, v := range b.venues {
		snapshot[key] = *v
	}
	b.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal adaptive-batch state: %w", err)
	}
	tmp := b.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write adaptive-batch temp file: %w", err)
	}
	if err := os.Rename(tmp, b.persistPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename adaptive-batch state: %w", err)
	}
	return nil
}
