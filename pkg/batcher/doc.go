/*
Package batcher implements the per-venue adaptive batch-size
controller: a multiplicative-increase, multiplicative-decrease loop
over batch size, driven by success streaks and 429 signals, persisted
across restarts.

Initial batch sizes default small because large initial batches were
observed to trigger terminal 400 responses from the marketplace; the
hard ceiling of 200 items per batch is the marketplace's own payload
limit, not a tuning choice.
*/
package batcher
