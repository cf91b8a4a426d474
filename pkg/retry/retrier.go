package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classifier decides whether a failed attempt should be retried.
type Classifier func(error) bool

// OnRetryFunc is called before sleeping for the next attempt.
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Policy parametrizes a Retrier.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	Retriable     Classifier
	OnRetry       OnRetryFunc
}

// AuthPolicy is the preconfigured policy for SoT authentication: 3
// attempts, fixed 2s delay, always retriable.
func AuthPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		BackoffFactor: 1, // fixed delay
		MaxDelay:      2 * time.Second,
		Retriable:     func(error) bool { return true },
	}
}

// MarketplacePolicy is the preconfigured policy for marketplace calls:
// 8 attempts, exponential from 2s, retriable on network failure with no
// response, 5xx, and 429; non-retriable on 409.
func MarketplacePolicy() Policy {
	return Policy{
		MaxAttempts:   8,
		InitialDelay:  2 * time.Second,
		BackoffFactor: 2,
		MaxDelay:      60 * time.Second,
		Retriable:     MarketplaceRetriable,
	}
}

// retryAfterCarrier is implemented by adapter errors that carry an
// upstream Retry-After value.
type retryAfterCarrier interface {
	RetryAfterSeconds() (int, bool)
}

// statusCarrier is implemented by adapter errors that carry an HTTP
// status code.
type statusCarrier interface {
	StatusCode() int
}

// MarketplaceRetriable classifies marketplace adapter errors: network
// failures with no response, 5xx and 429 are retriable; 409 and other
// 4xx are terminal.
func MarketplaceRetriable(err error) bool {
	if err == nil {
		return false
	}
	var status statusCarrier
	if errors.As(err, &status) {
		code := status.StatusCode()
		if code == 429 || code >= 500 {
			return true
		}
		return false
	}
	// No status code attached: a network-level failure with no response.
	return true
}

// Retrier runs an operation under a Policy, honoring any Retry-After
// the operation's error carries.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier for policy.
func New(policy Policy) *Retrier {
	return &Retrier{policy: policy, sleep: sleepCtx}
}

// Do runs op, retrying per the policy until it succeeds, attempts are
// exhausted, the classifier says the error is terminal, or ctx is
// cancelled.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialDelay
	bo.Multiplier = r.policy.BackoffFactor
	bo.MaxInterval = r.policy.MaxDelay
	// Delays follow the policy exactly, with no jitter.
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts, not elapsed time
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !r.policy.Retriable(lastErr) {
			return lastErr
		}
		if attempt == r.policy.MaxAttempts {
			return lastErr
		}

		// The exponential delay advances every iteration even when
		// Retry-After overrides this iteration's sleep.
		delay := bo.NextBackOff()
		if ra, ok := retryAfterDelay(lastErr); ok {
			delay = ra
		}

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, lastErr, delay)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func retryAfterDelay(err error) (time.Duration, bool) {
	var carrier retryAfterCarrier
	if !errors.As(err, &carrier) {
		return 0, false
	}
	secs, ok := carrier.RetryAfterSeconds()
	if !ok {
		return 0, false
	}
	return time.Duration(secs)*time.Second + time.Second, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
