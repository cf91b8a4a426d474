package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type statusErr struct {
	code int
}

func (e *statusErr) Error() string   { return "status error" }
func (e *statusErr) StatusCode() int { return e.code }

type retryAfterErr struct {
	*statusErr
	seconds int
}

func (e *retryAfterErr) RetryAfterSeconds() (int, bool) { return e.seconds, true }

func fastRetrier(p Policy) *Retrier {
	r := New(p)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func TestMarketplaceRetriableClassification(t *testing.T) {
	require.True(t, MarketplaceRetriable(&statusErr{code: 429}))
	require.True(t, MarketplaceRetriable(&statusErr{code: 503}))
	require.True(t, MarketplaceRetriable(errors.New("dial tcp: connection refused")))
	require.False(t, MarketplaceRetriable(&statusErr{code: 409}))
	require.False(t, MarketplaceRetriable(&statusErr{code: 400}))
	require.False(t, MarketplaceRetriable(nil))
}

func TestRetrierSucceedsWithoutRetry(t *testing.T) {
	r := fastRetrier(MarketplacePolicy())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetrierStopsAtMaxAttempts(t *testing.T) {
	p := MarketplacePolicy()
	r := fastRetrier(p)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return &statusErr{code: 503}
	})
	require.Error(t, err)
	require.Equal(t, p.MaxAttempts, calls)
}

func TestRetrierShortCircuitsOnTerminalError(t *testing.T) {
	r := fastRetrier(MarketplacePolicy())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return &statusErr{code: 409}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "a 409 must not be retried")
}

func TestRetrierHonorsRetryAfterOverride(t *testing.T) {
	r := New(MarketplacePolicy())
	var observed time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		observed = d
		return nil
	}

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &retryAfterErr{statusErr: &statusErr{code: 429}, seconds: 30}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, observed, 30*time.Second)
}

func TestRetrierAuthPolicyIsFixedDelayAlwaysRetriable(t *testing.T) {
	p := AuthPolicy()
	require.Equal(t, 3, p.MaxAttempts)
	require.True(t, p.Retriable(errors.New("anything")))

	r := fastRetrier(p)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("still failing")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrierRespectsContextCancellation(t *testing.T) {
	r := New(MarketplacePolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.Do(ctx, func() error {
		calls++
		return &statusErr{code: 500}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetrierInvokesOnRetryHook(t *testing.T) {
	p := MarketplacePolicy()
	var attempts []int
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	r := fastRetrier(p)

	calls := 0
	_ = r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &statusErr{code: 500}
		}
		return nil
	})
	require.Equal(t, []int{1, 2}, attempts)
}
