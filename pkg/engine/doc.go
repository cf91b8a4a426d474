// Package engine implements the per-store sync pipeline: fetch from
// the source of truth, diff against the persisted state, and push the
// resulting changes to the marketplace in two ordered phases. It
// composes pkg/state, pkg/rategovernor, pkg/batcher, pkg/retry and
// pkg/breaker into one per-store reconciliation loop.
package engine
