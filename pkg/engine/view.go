package engine

import "github.com/cuemby/catalogsync/pkg/types"

// buildSkuView builds a productID to SKU map from the configured
// extension field, then aggregates quantity by SKU (summed across
// every SoT product id that maps to it) with last-wins price and a
// derived enabled flag. The
// returned slice preserves the order SKUs were first observed in
// details, which keeps downstream push arrays deterministic for
// testing.
func buildSkuView(inventory []types.InventoryRecord, details []types.ProductDetail, skuField string) []types.SkuView {
	productSKU := make(map[int]string, len(details))
	priceBySKU := make(map[string]*float64, len(details))
	order := make([]string, 0, len(details))
	seen := make(map[string]bool, len(details))

	for _, d := range details {
		sku := d.SKU(skuField)
		if sku == "" {
			continue
		}
		productSKU[d.ProductID] = sku
		priceBySKU[sku] = d.Price // last-wins across products sharing this SKU
		if !seen[sku] {
			seen[sku] = true
			order = append(order, sku)
		}
	}

	quantityBySKU := make(map[string]int, len(order))
	for _, inv := range inventory {
		sku, ok := productSKU[inv.ProductID]
		if !ok {
			continue
		}
		quantityBySKU[sku] += inv.Rest
	}

	views := make([]types.SkuView, 0, len(order))
	for _, sku := range order {
		qty := quantityBySKU[sku]
		views = append(views, types.SkuView{
			SKU:      sku,
			Quantity: qty,
			Price:    priceBySKU[sku],
			Enabled:  qty > 0,
		})
	}
	return views
}

// applyForceZeroRule implements the invalid-price contract: a SKU
// without a valid non-negative price is
// still emitted, but with quantity, enabled and price forced to
// zero/false/0 so the marketplace record exists without offering an
// unsellable item. Returns the rewritten views plus the SKUs that were
// forced, for logging and metrics.
func applyForceZeroRule(views []types.SkuView) ([]types.SkuView, []string) {
	out := make([]types.SkuView, len(views))
	var forced []string
	for i, v := range views {
		if _, ok := types.ValidPrice(v.Price); ok {
			out[i] = v
			continue
		}
		zero := 0.0
		out[i] = types.SkuView{SKU: v.SKU, Quantity: 0, Enabled: false, Price: &zero}
		forced = append(forced, v.SKU)
	}
	return out, forced
}

func inventoryProductIDs(inventory []types.InventoryRecord) []int {
	ids := make([]int, len(inventory))
	for i, r := range inventory {
		ids[i] = r.ProductID
	}
	return ids
}
