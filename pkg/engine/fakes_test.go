package engine

import (
	"context"

	"github.com/cuemby/catalogsync/pkg/marketplace"
	"github.com/cuemby/catalogsync/pkg/types"
)

type fakeSoT struct {
	inventory []types.InventoryRecord
	details   []types.ProductDetail
	invErr    error
	detErr    error
}

func (f *fakeSoT) Authenticate(ctx context.Context) error { return nil }

func (f *fakeSoT) Inventory(ctx context.Context, storeID int) ([]types.InventoryRecord, error) {
	if f.invErr != nil {
		return nil, f.invErr
	}
	return f.inventory, nil
}

func (f *fakeSoT) Products(ctx context.Context, ids []int) ([]types.ProductDetail, error) {
	if f.detErr != nil {
		return nil, f.detErr
	}
	return f.details, nil
}

type fakeMarketplace struct {
	items     []types.ItemUpdate
	inventory []types.InventoryUpdate
	itemsErr  error
	invErr    error
}

func (f *fakeMarketplace) PushItems(ctx context.Context, venueID string, items []types.ItemUpdate) error {
	if f.itemsErr != nil {
		return f.itemsErr
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeMarketplace) PushInventory(ctx context.Context, venueID string, updates []types.InventoryUpdate) error {
	if f.invErr != nil {
		return f.invErr
	}
	f.inventory = append(f.inventory, updates...)
	return nil
}

func (f *fakeMarketplace) ListItems(ctx context.Context, venueID string) ([]string, error) {
	return nil, nil
}

// rateLimitOnceMarketplace returns a 429 for the first item batch, then
// succeeds, recording every successful push.
type rateLimitOnceMarketplace struct {
	fakeMarketplace
	retryAfter string
	rejected   bool
}

func (f *rateLimitOnceMarketplace) PushItems(ctx context.Context, venueID string, items []types.ItemUpdate) error {
	if !f.rejected {
		f.rejected = true
		return &marketplace.StatusError{Status: 429, RetryAfterRaw: f.retryAfter}
	}
	return f.fakeMarketplace.PushItems(ctx, venueID, items)
}
