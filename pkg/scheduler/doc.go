// Package scheduler implements the top-level sweep loop: on a timer,
// walk every enabled store sequentially and run one SyncEngine pass
// each, skipping a sweep still in flight and never letting one store's
// failure abort its siblings. The loop is a goroutine driven by a
// time.Ticker, guarded by a stopCh and an RWMutex around run state.
package scheduler
