package types

import "fmt"

// DependencyError attributes a failure to the offending external
// collaborator, so the Scheduler
// and metrics can roll failures up per dependency without string
// matching on error text.
type DependencyError struct {
	Dependency Dependency
	Kind       string // e.g. "empty-inventory", "partial-details", "terminal", "circuit-open"
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Dependency, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Dependency, e.Kind)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// NewSoTError wraps err as a SoT-attributed DependencyError.
func NewSoTError(kind string, err error) error {
	return &DependencyError{Dependency: DependencySoT, Kind: kind, Err: err}
}

// NewMarketplaceError wraps err as a marketplace-attributed DependencyError.
func NewMarketplaceError(kind string, err error) error {
	return &DependencyError{Dependency: DependencyMarketplace, Kind: kind, Err: err}
}
