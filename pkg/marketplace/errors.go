package marketplace

import (
	"fmt"

	"github.com/cuemby/catalogsync/pkg/rategovernor"
)

// StatusError carries an HTTP response's status code and, for a 429,
// its Retry-After header, so pkg/retry's classifiers and pkg/breaker's
// ignorable-error hook can inspect it via errors.As.
type StatusError struct {
	Status        int
	Body          string
	RetryAfterRaw string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("marketplace responded %d: %s", e.Status, e.Body)
}

// StatusCode implements the duck-typed interface pkg/retry's
// MarketplaceRetriable classifier expects.
func (e *StatusError) StatusCode() int {
	return e.Status
}

// RetryAfterSeconds implements the duck-typed interface pkg/retry's
// Retrier uses to override its computed delay.
func (e *StatusError) RetryAfterSeconds() (int, bool) {
	if e.RetryAfterRaw == "" {
		return 0, false
	}
	d, ok := rategovernor.ParseRetryAfter(e.RetryAfterRaw)
	if !ok {
		return 0, false
	}
	return int(d.Seconds()), true
}

// IsRateLimit reports whether the error is a 429, the condition under
// which pkg/breaker's MarketplaceSettings.IgnorableError excludes it
// from tripping the breaker.
func (e *StatusError) IsRateLimit() bool {
	return e.Status == 429
}
