// Package bgworker implements the per-store background completion
// worker: a long-running loop that drains SKUs the marketplace has not
// yet acknowledged, at a bounded daily rate, without blocking the
// scheduled delta sync. It follows the common long-running-task shape
// of a loop with a cooperative stop channel and sleeps between
// iterations.
package bgworker
