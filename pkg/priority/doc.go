/*
Package priority implements the pure, deterministic PriorityScorer:
every (inventory, detail) pair resolving to a SKU is scored from
configurable weights, and topN selects the highest-scored subset the
hybrid orchestrator's priority push sends first.
*/
package priority
