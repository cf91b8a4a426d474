package rategovernor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/rs/zerolog"
	xrate "golang.org/x/time/rate"
)

// Config tunes the governor. Zero-value fields fall back to the
// package defaults.
type Config struct {
	MinInterval        time.Duration
	LearningEnabled    bool
	LearnedCap         time.Duration
	Buffer             time.Duration
	JitterMax          time.Duration
	PostSuccessEnforce bool
}

// DefaultConfig mirrors the marketplace's observed ~900s Retry-After
// behavior.
func DefaultConfig() Config {
	return Config{
		MinInterval:        500 * time.Millisecond,
		LearningEnabled:    true,
		LearnedCap:         15 * time.Minute,
		Buffer:             1 * time.Second,
		JitterMax:          2 * time.Second,
		PostSuccessEnforce: true,
	}
}

// persistedVenueState is the on-disk shape for one venue key.
type persistedVenueState struct {
	NextAllowedAtMs      int64 `json:"nextAllowedAtMs"`
	LearnedMinIntervalMs int64 `json:"learnedMinIntervalMs"`
}

type venueState struct {
	mu                   sync.Mutex
	limiter              *xrate.Limiter
	nextAllowedAtMs      int64
	learnedMinIntervalMs int64
	lastRequestAtMs      int64
}

// Governor is the process-local, per-venue rate gate.
// It is constructed once and threaded through every marketplace caller;
// it is not a global singleton.
type Governor struct {
	cfg         Config
	persistPath string
	logger      zerolog.Logger

	mu     sync.Mutex // guards venues map and persisted file
	venues map[string]*venueState

	now func() time.Time
}

// New creates a Governor, loading any persisted learned intervals from
// persistPath (which may not yet exist).
func New(persistPath string, cfg Config) (*Governor, error) {
	g := &Governor{
		cfg:         cfg,
		persistPath: persistPath,
		logger:      log.WithComponent("rate-governor"),
		venues:      make(map[string]*venueState),
		now:         time.Now,
	}
	if err := g.load(); err != nil {
		return nil, err
	}
	return g, nil
}

// VenueKey builds the persistence/lookup key for a venue.
func VenueKey(baseURL, venueID, user string) string {
	return baseURL + "|" + venueID + "|" + user
}

func (g *Governor) venue(key string) *venueState {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.venues[key]
	if !ok {
		v = &venueState{limiter: xrate.NewLimiter(xrate.Every(g.cfg.MinInterval), 1)}
		g.venues[key] = v
	}
	return v
}

// WaitForTurn blocks until the venue's gate opens, then records the
// request time. Callers for the same venue key serialize through the
// venue's own mutex, so the gate is authoritative even under concurrent
// callers.
func (g *Governor) WaitForTurn(venueKey string) {
	v := g.venue(venueKey)
	v.mu.Lock()
	defer v.mu.Unlock()

	now := g.now()

	// The limiter already encodes "lastRequestAtMs + max(cfgMin,
	// learnedMin)": reserving a token against it gives the same gate
	// without tracking the interval arithmetic by hand.
	reservation := v.limiter.ReserveN(now, 1)
	gateMs := now.Add(reservation.DelayFrom(now)).UnixMilli()
	if v.nextAllowedAtMs > gateMs {
		gateMs = v.nextAllowedAtMs
	}

	nowMs := now.UnixMilli()
	if gateMs > nowMs {
		time.Sleep(time.Duration(gateMs-nowMs) * time.Millisecond)
	}

	v.lastRequestAtMs = g.now().UnixMilli()
}

// LastRequestAt returns the last time WaitForTurn released a caller for
// venueKey, for metrics/introspection; zero if the venue has never been
// used.
func (g *Governor) LastRequestAt(venueKey string) time.Time {
	v := g.venue(venueKey)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastRequestAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.lastRequestAtMs)
}

// OnRateLimited honors a 429 response: it pushes nextAllowedAtMs out by
// retryAfter plus a buffer and jitter, and — if learning is enabled —
// raises the persisted learned interval.
func (g *Governor) OnRateLimited(venueKey string, retryAfter string) {
	delay, ok := ParseRetryAfter(retryAfter)
	if !ok || delay <= 0 {
		return
	}

	v := g.venue(venueKey)
	v.mu.Lock()

	jitter := time.Duration(0)
	if g.cfg.JitterMax > 0 {
		jitter = time.Duration(rand.Int63n(int64(g.cfg.JitterMax)))
	}
	candidate := g.now().Add(delay + g.cfg.Buffer + jitter).UnixMilli()
	if candidate > v.nextAllowedAtMs {
		v.nextAllowedAtMs = candidate
	}

	if g.cfg.LearningEnabled {
		learned := delay.Milliseconds()
		if learned < v.learnedMinIntervalMs {
			learned = v.learnedMinIntervalMs
		}
		if cap := g.cfg.LearnedCap.Milliseconds(); cap > 0 && learned > cap {
			learned = cap
		}
		v.learnedMinIntervalMs = learned
		interval := time.Duration(learned) * time.Millisecond
		if interval < g.cfg.MinInterval {
			interval = g.cfg.MinInterval
		}
		v.limiter.SetLimit(xrate.Every(interval))
	}

	snapshot := persistedVenueState{NextAllowedAtMs: v.nextAllowedAtMs, LearnedMinIntervalMs: v.learnedMinIntervalMs}
	v.mu.Unlock()

	g.logger.Warn().
		Str("venue", venueKey).
		Dur("retry_after", delay).
		Int64("next_allowed_at_ms", snapshot.NextAllowedAtMs).
		Msg("rate limited, backing off")

	if err := g.persist(venueKey, snapshot); err != nil {
		g.logger.Error().Err(err).Str("venue", venueKey).Msg("failed to persist rate limit state")
	}
}

// OnSuccess optionally enforces the minimum interval going forward even
// absent a 429. This is not persisted: success is
// frequent and the in-memory state is authoritative for the live
// process.
func (g *Governor) OnSuccess(venueKey string) {
	if !g.cfg.PostSuccessEnforce {
		return
	}
	v := g.venue(venueKey)
	v.mu.Lock()
	defer v.mu.Unlock()

	minInterval := g.cfg.MinInterval
	if learned := time.Duration(v.learnedMinIntervalMs) * time.Millisecond; learned > minInterval {
		minInterval = learned
	}
	candidate := g.now().Add(minInterval).UnixMilli()
	if candidate > v.nextAllowedAtMs {
		v.nextAllowedAtMs = candidate
	}
}

// ParseRetryAfter parses a Retry-After header value as either an
// integer number of seconds or an HTTP-date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func (g *Governor) load() error {
	raw, err := os.ReadFile(g.persistPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read rate-limit state: %w", err)
	}

	var persisted map[string]persistedVenueState
	if err := json.Unmarshal(raw, &persisted); err != nil {
		g.logger.Warn().Err(err).Msg("rate-limit state file corrupt, starting fresh")
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, ps := range persisted {
		v := &venueState{
			limiter:              xrate.NewLimiter(xrate.Every(g.cfg.MinInterval), 1),
			nextAllowedAtMs:      ps.NextAllowedAtMs,
			learnedMinIntervalMs: ps.LearnedMinIntervalMs,
		}
		if learned := time.Duration(ps.LearnedMinIntervalMs) * time.Millisecond; learned > g.cfg.MinInterval {
			v.limiter.SetLimit(xrate.Every(learned))
		}
		g.venues[key] = v
	}
	return nil
}

// persist rewrites the full rate-limit file with the latest snapshot
// for venueKey merged in. Writes are rare (only on rate-limit events),
// so a read-modify-write without cross-process coordination is an
// accepted tradeoff.
func (g *Governor) persist(venueKey string, snapshot persistedVenueState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	all := make(map[string]persistedVenueState, len(g.venues))
	for key, v := range g.venues {
		if key == venueKey {
			all[key] = snapshot
			continue
		}
		v.mu.Lock()
		all[key] = persistedVenueState{NextAllowedAtMs: v.nextAllowedAtMs, LearnedMinIntervalMs: v.learnedMinIntervalMs}
		v.mu.Unlock()
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rate-limit state: %w", err)
	}
	tmp := g.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write rate-limit temp file: %w", err)
	}
	if err := os.Rename(tmp, g.persistPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename rate-limit state: %w", err)
	}
	return nil
}
