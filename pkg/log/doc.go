/*
Package log provides structured logging for the sync engine using zerolog.

All components obtain a child logger via one of the With* helpers rather
than logging through the bare global Logger, so every line carries enough
context (store, venue, component) to attribute it during a multi-store
sweep.
*/
package log
