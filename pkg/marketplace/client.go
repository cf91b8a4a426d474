package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/rs/zerolog"
)

// MaxBatchItems is the marketplace's hard per-batch payload ceiling.
// AdaptiveBatcher enforces this on the caller side; this package only
// documents the contract it relies on.
const MaxBatchItems = 200

// Client is the marketplace adapter contract.
type Client interface {
	PushItems(ctx context.Context, venueID string, items []types.ItemUpdate) error
	PushInventory(ctx context.Context, venueID string, updates []types.InventoryUpdate) error
	ListItems(ctx context.Context, venueID string) ([]string, error)
}

// HTTPClient is the net/http, HTTP-basic-auth implementation of Client.
type HTTPClient struct {
	baseURL    string
	login      string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient constructs an HTTPClient for one venue's base URL and
// basic-auth credentials.
func NewHTTPClient(baseURL, login, password string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		login:      login,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.WithComponent("marketplace-adapter"),
	}
}

type itemWire struct {
	SKU             string   `json:"sku"`
	Enabled         *bool    `json:"enabled,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	DiscountedPrice *float64 `json:"discounted_price,omitempty"`
	VatPercentage   *float64 `json:"vat_percentage,omitempty"`
}

type itemsBatchWire struct {
	Data []itemWire `json:"data"`
}

// PushItems PATCHes a batch of item updates (enabled/price) to a
// venue. A 409 is treated as an idempotent success.
func (c *HTTPClient) PushItems(ctx context.Context, venueID string, items []types.ItemUpdate) error {
	wire := make([]itemWire, len(items))
	for i, it := range items {
		enabled := it.Enabled
		price := it.Price
		wire[i] = itemWire{SKU: it.SKU, Enabled: &enabled, Price: &price}
	}

	return c.patch(ctx, fmt.Sprintf("/venues/%s/items", venueID), itemsBatchWire{Data: wire})
}

type inventoryWire struct {
	SKU       string `json:"sku"`
	Inventory int    `json:"inventory"`
}

type inventoryBatchWire struct {
	Data []inventoryWire `json:"data"`
}

// PushInventory PATCHes a batch of inventory updates to a venue. A 409
// is treated as an idempotent success.
func (c *HTTPClient) PushInventory(ctx context.Context, venueID string, updates []types.InventoryUpdate) error {
	wire := make([]inventoryWire, len(updates))
	for i, u := range updates {
		wire[i] = inventoryWire{SKU: u.SKU, Inventory: u.Inventory}
	}

	return c.patch(ctx, fmt.Sprintf("/venues/%s/items/inventory", venueID), inventoryBatchWire{Data: wire})
}

func (c *HTTPClient) patch(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal marketplace payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.login, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err // network-level failure with no response: retriable
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusConflict:
		c.logger.Debug().Str("path", path).Msg("marketplace returned 409, treating batch as idempotent success")
		return nil
	default:
		return &StatusError{
			Status:        resp.StatusCode,
			Body:          string(respBody),
			RetryAfterRaw: resp.Header.Get("Retry-After"),
		}
	}
}

// possibleItemsKeys are the response keys a GET /venues/{id}/items
// payload might carry its array under.
var possibleItemsKeys = []string{"data", "items", "results"}

// ListItems best-effort lists existing marketplace SKUs for
// introspection (hybrid orchestrator bootstrap step). A 404/405 (not
// supported) yields an empty list and no error; a 403 or other
// non-2xx is logged and yields an empty list and no error, since this
// call is explicitly best-effort.
func (c *HTTPClient) ListItems(ctx context.Context, venueID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fmt.Sprintf("/venues/%s/items", venueID), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.login, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("marketplace items introspection request failed, continuing without it")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("marketplace items introspection returned non-2xx, continuing without it")
		return nil, nil
	}

	var raw map[string]json.RawMessage
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		// Some marketplaces return a bare array rather than an object.
		var bare []map[string]any
		if err := json.Unmarshal(body, &bare); err != nil {
			return nil, nil
		}
		return extractSKUs(bare), nil
	}

	for _, key := range possibleItemsKeys {
		if payload, ok := raw[key]; ok {
			var entries []map[string]any
			if err := json.Unmarshal(payload, &entries); err == nil {
				return extractSKUs(entries), nil
			}
		}
	}
	return nil, nil
}

func extractSKUs(entries []map[string]any) []string {
	skus := make([]string, 0, len(entries))
	for _, e := range entries {
		if sku, ok := e["sku"].(string); ok && sku != "" {
			skus = append(skus, sku)
		}
	}
	return skus
}
