/*
Package rategovernor serializes outbound marketplace calls per venue and
learns from 429 responses.

Each venue gets its own gate: a golang.org/x/time/rate.Limiter sized to
the larger of the configured minimum interval and a persisted "learned"
interval, plus an absolute nextAllowedAtMs deadline that 429 responses
can push further out than the limiter alone would. WaitForTurn blocks
until both the limiter and the deadline agree the caller may proceed,
and the whole operation is serialized by a per-venue mutex so concurrent
callers queue rather than pile onto the limiter at once.
*/
package rategovernor
