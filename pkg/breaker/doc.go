/*
Package breaker implements the two named circuit breakers shedding
load from an unhealthy dependency: one guarding the source of truth,
one guarding the marketplace, each with its own failure/success
thresholds and open-state timeout.

The three-state machine itself (closed/open/half-open) is provided by
github.com/sony/gobreaker; this package supplies the preconfigured
Settings, a CircuitOpen error carrying the breaker name, and a typed
wrapper so callers never touch gobreaker's generic Execute signature
directly.
*/
package breaker
