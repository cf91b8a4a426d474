package breaker

import (
	"errors"
	"fmt"

	"github.com/cuemby/catalogsync/pkg/marketplace"
)

// Registry holds the process's named breakers, keyed by Settings.Name,
// so the operator HTTP surface can list and reset them by name.
type Registry struct {
	breakers map[string]*CircuitBreaker
}

// NewRegistry constructs a Registry with the two preconfigured
// dependency breakers. The marketplace breaker's ignorable-error hook
// excludes 429s from its failure count, since
// those are expected and are retried to success rather than failing
// the run.
func NewRegistry() *Registry {
	sot := New(SoTSettings())

	mSettings := MarketplaceSettings()
	mSettings.IgnorableError = func(err error) bool {
		var statusErr *marketplace.StatusError
		return errors.As(err, &statusErr) && statusErr.IsRateLimit()
	}
	marketplaceBreaker := New(mSettings)

	return &Registry{
		breakers: map[string]*CircuitBreaker{
			sot.Name():                sot,
			marketplaceBreaker.Name(): marketplaceBreaker,
		},
	}
}

// SoT returns the breaker guarding the source-of-truth dependency.
func (r *Registry) SoT() *CircuitBreaker {
	return r.breakers[SoTSettings().Name]
}

// Marketplace returns the breaker guarding the marketplace dependency.
func (r *Registry) Marketplace() *CircuitBreaker {
	return r.breakers[MarketplaceSettings().Name]
}

// All returns every registered breaker, for /circuit-breakers.
func (r *Registry) All() []*CircuitBreaker {
	out := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}

// Reset resets the named breaker, for POST /circuit-breakers/reset/:name.
func (r *Registry) Reset(name string) error {
	b, ok := r.breakers[name]
	if !ok {
		return fmt.Errorf("unknown circuit breaker %q", name)
	}
	b.Reset()
	return nil
}
