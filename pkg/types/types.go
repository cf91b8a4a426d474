// Package types holds the data model shared by every stage of the sync
// pipeline: store configuration, the ephemeral records read from the
// source-of-truth, the derived per-SKU view, and the durable state entry
// written after a successful push.
package types

import (
	"math"
	"time"
)

// Store is the immutable configuration of one merchant location.
type Store struct {
	ID       int
	Name     string
	VenueID  string
	BaseURL  string // optional override of the marketplace base URL
	Login    string
	Password string
	Enabled  bool
}

// InventoryRecord is one row of the SoT's inventory feed for a store.
type InventoryRecord struct {
	ProductID int
	Rest      int // remaining quantity, non-negative
	StoreID   int
}

// ExtensionField is a (field-name, value) pair carried on a SoT product
// detail record. SKUField is the configured field name that carries the
// marketplace SKU, e.g. "usr_column_514".
type ExtensionField struct {
	Field string
	Value string
}

// ProductDetail is one row of the SoT's product-detail response.
type ProductDetail struct {
	ProductID  int
	Title      string
	Price      *float64 // nil = absent/undefined upstream
	Extensions []ExtensionField
}

// SKU extracts the marketplace SKU from the product's extension fields,
// given the configured field name. Returns "" if absent or blank.
func (p ProductDetail) SKU(skuField string) string {
	for _, ext := range p.Extensions {
		if ext.Field == skuField && ext.Value != "" {
			return ext.Value
		}
	}
	return ""
}

// ValidPrice reports whether p represents a usable, non-negative, finite
// price, and resolves it to a concrete value. This is the single place
// that implements the "invalid price" predicate that the force-zero rule
// is built on: a nil, negative, NaN or
// infinite price is invalid.
func ValidPrice(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v := *p
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SkuView is the derived, per-run aggregated view of one SKU: the sum of
// quantities across every SoT product id that maps to it, the last-wins
// price across those products, and a derived enabled flag.
type SkuView struct {
	SKU      string
	Quantity int
	Price    *float64
	Enabled  bool
}

// StateEntry is the durable, per-SKU record of what the marketplace was
// last told for a store. Entries are never aggregated or deleted; a
// disappeared SKU is rewritten to a disabled, zero-quantity entry
// instead.
type StateEntry struct {
	Quantity            int      `json:"quantity"`
	Enabled             bool     `json:"enabled"`
	Price               *float64 `json:"price,omitempty"`
	LastSeen            int64    `json:"lastSeen,omitempty"` // unix millis
	SyncedToMarketplace bool     `json:"syncedToMarketplace,omitempty"`
}

// StateMap is the full per-store persisted state: SKU to entry.
type StateMap map[string]StateEntry

// CheckpointRecord tracks progress of a long initial push so a crash
// mid-run does not force a full re-push of already-confirmed SKUs.
type CheckpointRecord struct {
	CompletedBatches int       `json:"completedBatches"`
	TotalBatches     int       `json:"totalBatches"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RunMode selects SyncEngine behavior for one run.
type RunMode string

const (
	ModeBootstrap RunMode = "bootstrap"
	ModeDelta     RunMode = "delta"
	ModeForceFull RunMode = "force-full"
	ModeLimited   RunMode = "limited"
)

// RunOutcome is the terminal state machine value of one SyncEngine run.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomeError   RunOutcome = "error"
	OutcomePartial RunOutcome = "partial"
)

// Dependency names an external collaborator, used to attribute errors
// for metrics and for naming circuit breakers.
type Dependency string

const (
	DependencySoT         Dependency = "sot"
	DependencyMarketplace Dependency = "marketplace"
)

// ItemUpdate is one entry of a phase-1 (item) batch pushed to the
// marketplace: enabled state and price for a SKU.
type ItemUpdate struct {
	SKU     string
	Enabled bool
	Price   float64
}

// InventoryUpdate is one entry of a phase-2 (inventory) batch pushed to
// the marketplace: quantity for a SKU.
type InventoryUpdate struct {
	SKU       string
	Inventory int
}
