// Package hybrid implements the HybridOrchestrator: the single-shot,
// first-time initialization path for a store with no prior state. It
// composes pkg/engine's exported facade, pkg/priority's scorer, and
// pkg/bgworker's long-running worker rather than duplicating any of
// their machinery.
package hybrid
