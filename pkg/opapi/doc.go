// Package opapi is the operator-facing HTTP surface: health, metrics
// rollups, circuit-breaker introspection/reset, and an on-demand sync
// trigger. It carries no sync-engine logic of its own; every handler
// reads state off the Scheduler and pkg/breaker's Registry.
package opapi
