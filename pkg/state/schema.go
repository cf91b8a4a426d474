package state

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cuemby/catalogsync/pkg/types"
)

// validateAndDecode parses raw JSON into a types.StateMap, rejecting any
// entry that is not an object with a finite-numeric quantity, a boolean
// enabled, and (if present) a finite-numeric price and lastSeen. A
// single bad entry fails the whole file; we never return a
// partially-trusted state map.
func validateAndDecode(raw []byte) (types.StateMap, error) {
	var loose map[string]map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	out := make(types.StateMap, len(loose))
	for sku, fields := range loose {
		entry, err := validateEntry(fields)
		if err != nil {
			return nil, fmt.Errorf("sku %q: %w", sku, err)
		}
		out[sku] = entry
	}
	return out, nil
}

func validateEntry(fields map[string]any) (types.StateEntry, error) {
	var entry types.StateEntry

	qty, ok := fields["quantity"]
	if !ok {
		return entry, fmt.Errorf("missing quantity")
	}
	qtyNum, ok := finiteNumber(qty)
	if !ok {
		return entry, fmt.Errorf("quantity is not finite-numeric")
	}
	entry.Quantity = int(qtyNum)

	enabled, ok := fields["enabled"]
	if !ok {
		return entry, fmt.Errorf("missing enabled")
	}
	enabledBool, ok := enabled.(bool)
	if !ok {
		return entry, fmt.Errorf("enabled is not boolean")
	}
	entry.Enabled = enabledBool

	if price, present := fields["price"]; present && price != nil {
		priceNum, ok := finiteNumber(price)
		if !ok {
			return entry, fmt.Errorf("price is not finite-numeric")
		}
		entry.Price = &priceNum
	}

	if lastSeen, present := fields["lastSeen"]; present && lastSeen != nil {
		lastSeenNum, ok := finiteNumber(lastSeen)
		if !ok {
			return entry, fmt.Errorf("lastSeen is not finite-numeric")
		}
		entry.LastSeen = int64(lastSeenNum)
	}

	if synced, present := fields["syncedToMarketplace"]; present && synced != nil {
		syncedBool, ok := synced.(bool)
		if !ok {
			return entry, fmt.Errorf("syncedToMarketplace is not boolean")
		}
		entry.SyncedToMarketplace = syncedBool
	}

	return entry, nil
}

func finiteNumber(v any) (float64, bool) {
	n, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
