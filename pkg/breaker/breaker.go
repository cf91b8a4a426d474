package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// CircuitOpenError is returned when a call is rejected because the
// breaker is open.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q is open", e.Name)
}

// Settings configures one named CircuitBreaker.
type Settings struct {
	Name              string
	FailureThreshold  uint32
	Timeout           time.Duration
	SuccessThreshold  uint32
	CountsResetWindow time.Duration
	// IgnorableError reports whether err should pass through without
	// counting as a breaker failure.
	IgnorableError func(error) bool
}

// SoTSettings is the preconfigured breaker guarding the SoT dependency:
// threshold 5, timeout 60s, success 2, reset window 5 minutes.
func SoTSettings() Settings {
	return Settings{
		Name:              "source-of-truth",
		FailureThreshold:  5,
		Timeout:           60 * time.Second,
		SuccessThreshold:  2,
		CountsResetWindow: 5 * time.Minute,
	}
}

// MarketplaceSettings is the preconfigured breaker guarding the
// marketplace dependency: threshold 10, timeout 120s, success 3, reset
// window 10 minutes. The higher threshold accounts for 429s, which are
// retried and eventually succeed rather than counting as failures.
func MarketplaceSettings() Settings {
	return Settings{
		Name:              "marketplace",
		FailureThreshold:  10,
		Timeout:           120 * time.Second,
		SuccessThreshold:  3,
		CountsResetWindow: 10 * time.Minute,
	}
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker with named,
// preconfigured per-dependency semantics.
type CircuitBreaker struct {
	name      string
	settings  Settings
	ignorable func(error) bool
	logger    zerolog.Logger

	mu sync.RWMutex
	cb *gobreaker.CircuitBreaker
}

// New constructs a CircuitBreaker from Settings.
func New(s Settings) *CircuitBreaker {
	ignorable := s.IgnorableError
	if ignorable == nil {
		ignorable = func(error) bool { return false }
	}

	c := &CircuitBreaker{
		name:      s.Name,
		settings:  s,
		ignorable: ignorable,
		logger:    log.WithComponent("circuit-breaker").With().Str("breaker", s.Name).Logger(),
	}
	c.cb = c.newGobreaker()
	return c
}

func (c *CircuitBreaker) newGobreaker() *gobreaker.CircuitBreaker {
	s := c.settings
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.SuccessThreshold,
		Interval:    s.CountsResetWindow,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
}

// Name returns the breaker's identifier, as used in /circuit-breakers
// and in Breaker-open errors.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// State reports the breaker's current state (closed/open/half-open).
func (c *CircuitBreaker) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cb.State().String()
}

// Execute runs op through the breaker. An ignorable error (per the
// breaker's IgnorableError classifier) is returned to the caller but
// not counted as a breaker failure.
func (c *CircuitBreaker) Execute(op func() error) error {
	c.mu.RLock()
	cb := c.cb
	c.mu.RUnlock()

	result, err := cb.Execute(func() (interface{}, error) {
		opErr := op()
		if opErr != nil && c.ignorable(opErr) {
			// Returning a nil error keeps gobreaker's internal counters
			// from treating this as a failure; the ignored error is
			// smuggled out via the result value instead.
			return opErr, nil
		}
		return nil, opErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &CircuitOpenError{Name: c.name}
	}
	if err != nil {
		return err
	}
	if ignoredErr, ok := result.(error); ok {
		return ignoredErr
	}
	return nil
}

// Reset forces the breaker back to closed, used by the operator
// surface's POST /circuit-breakers/reset/:name. gobreaker exposes no
// native reset, so a fresh internal breaker replaces the old one.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = c.newGobreaker()
}

