package engine

import "time"

// BatchPlan is a fixed batch size / inter-batch delay pair, used when
// the adaptive batcher is not in play.
type BatchPlan struct {
	BatchSize int
	Delay     time.Duration
}

// Config tunes one Engine instance: conservative defaults for
// first-sync pushes on a cold cache, a larger batch and shorter delay
// for steady-state delta runs.
type Config struct {
	// SKUField is the SoT extension field name carrying the
	// marketplace SKU.
	SKUField string

	// PhasePause is the small fixed pause between the item phase and
	// the inventory phase of a push.
	PhasePause time.Duration

	// FirstSync is used for bootstrap/force-full pushes on a cold
	// cache: a small batch size and a long delay, to respect rate
	// limits.
	FirstSync BatchPlan

	// Delta is used for ordinary delta runs: larger batch, short delay.
	Delta BatchPlan
}

// DefaultConfig returns the engine's default tuning.
func DefaultConfig() Config {
	return Config{
		SKUField:   "usr_column_514",
		PhasePause: 2 * time.Second,
		FirstSync: BatchPlan{
			BatchSize: 20,
			Delay:     10 * time.Second,
		},
		Delta: BatchPlan{
			BatchSize: 100,
			Delay:     1 * time.Second,
		},
	}
}

// Options parametrizes a single Run call.
type Options struct {
	// Limit caps both push arrays and, when set, suppresses the final
	// state save: only per-batch
	// checkpoint progress is persisted.
	Limit int

	// UseAdaptiveBatcher routes batch size and inter-batch delay
	// through the AdaptiveBatcher instead of Config's fixed plans. The
	// hybrid orchestrator's priority push and the background worker do
	// not set it: they push through PushAdaptiveBatches, which always
	// uses the AdaptiveBatcher.
	UseAdaptiveBatcher bool

	// DryRun computes the diff and reports its update counts in Result
	// without pushing anything or saving state. It has no effect in
	// bootstrap mode, which saves state before the diff step.
	DryRun bool
}
