/*
Package state implements the durable, per-store persistence layer: a
crash-atomic JSON file per store, with a sibling backup file and a
corruption-vs-absence distinction that the rest of the pipeline depends
on to choose between a delta and a force-full run.

# Load semantics

A missing primary file is empty state, full stop — the backup is never
consulted, because "no state" must force the next run to force-full.
A primary file that exists but fails to parse or
fails schema validation falls back to the backup; if the backup is
also unusable, the store returns empty state and logs the degradation
rather than propagating an error, because losing state is recoverable
(the next run re-diffs against an empty baseline) while crashing the
process is not.

# Save semantics

Save writes to a temporary sibling and renames it over the primary,
which is atomic on the same filesystem. Before writing, the current
primary (if any) is copied to the backup path on a best-effort basis.
Save failures are logged and otherwise swallowed: the previous file is
left intact, and the next run will simply re-diff from it.
*/
package state
