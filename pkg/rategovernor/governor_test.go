package rategovernor

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := ParseRetryAfter("120")
	require.True(t, ok)
	require.Equal(t, 120*time.Second, d)
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(5 * time.Minute).UTC().Format(http.TimeFormat)
	d, ok := ParseRetryAfter(future)
	require.True(t, ok)
	require.InDelta(t, (5 * time.Minute).Seconds(), d.Seconds(), 2)
}

func TestParseRetryAfterInvalid(t *testing.T) {
	_, ok := ParseRetryAfter("not a date")
	require.False(t, ok)
	_, ok = ParseRetryAfter("")
	require.False(t, ok)
}

func TestOnRateLimitedAdvancesNextAllowedAt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterMax = 0
	g, err := New(filepath.Join(t.TempDir(), "rate-limits.json"), cfg)
	require.NoError(t, err)

	venue := VenueKey("https://api.example.com", "venue-1", "user")
	before := time.Now()
	g.OnRateLimited(venue, "2")

	v := g.venue(venue)
	v.mu.Lock()
	next := v.nextAllowedAtMs
	learned := v.learnedMinIntervalMs
	v.mu.Unlock()

	require.GreaterOrEqual(t, next, before.Add(2*time.Second+cfg.Buffer).UnixMilli())
	require.Equal(t, (2 * time.Second).Milliseconds(), learned)
}

func TestOnRateLimitedPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate-limits.json")
	cfg := DefaultConfig()

	g1, err := New(path, cfg)
	require.NoError(t, err)
	venue := VenueKey("https://api.example.com", "venue-1", "user")
	g1.OnRateLimited(venue, "900")

	g2, err := New(path, cfg)
	require.NoError(t, err)
	v := g2.venue(venue)
	v.mu.Lock()
	defer v.mu.Unlock()
	require.Equal(t, (900 * time.Second).Milliseconds(), v.learnedMinIntervalMs)
	require.Greater(t, v.nextAllowedAtMs, int64(0))
}

func TestLearnedIntervalIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearnedCap = 10 * time.Second
	g, err := New(filepath.Join(t.TempDir(), "rate-limits.json"), cfg)
	require.NoError(t, err)

	venue := VenueKey("base", "v", "u")
	g.OnRateLimited(venue, "900")

	v := g.venue(venue)
	v.mu.Lock()
	defer v.mu.Unlock()
	require.Equal(t, cfg.LearnedCap.Milliseconds(), v.learnedMinIntervalMs)
}

func TestWaitForTurnHonorsRateLimitDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinInterval = time.Millisecond
	cfg.JitterMax = 0
	cfg.Buffer = 0
	g, err := New(filepath.Join(t.TempDir(), "rate-limits.json"), cfg)
	require.NoError(t, err)

	venue := VenueKey("base", "v", "u")
	g.OnRateLimited(venue, "1")

	start := time.Now()
	g.WaitForTurn(venue)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed.Milliseconds(), int64(900), "must not issue another request before retryAfter elapses")
}
