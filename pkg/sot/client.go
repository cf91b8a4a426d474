package sot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/retry"
	"github.com/cuemby/catalogsync/pkg/types"
	"github.com/rs/zerolog"
)

// productsChunkSize is the source of truth's per-call id limit.
const productsChunkSize = 1000

// Client is the source-of-truth adapter contract.
type Client interface {
	Authenticate(ctx context.Context) error
	Inventory(ctx context.Context, storeID int) ([]types.InventoryRecord, error)
	Products(ctx context.Context, ids []int) ([]types.ProductDetail, error)
}

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	baseURL  string
	login    string
	password string

	httpClient *http.Client
	retrier    *retry.Retrier
	logger     zerolog.Logger

	mu    sync.Mutex
	token string
}

// NewHTTPClient constructs an HTTPClient for one store's SoT base URL
// and credentials.
func NewHTTPClient(baseURL, login, password string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		login:      login,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retrier:    retry.New(retry.AuthPolicy()),
		logger:     log.WithComponent("sot-adapter"),
	}
}

type authRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Authenticate obtains a bearer token, retrying per AuthPolicy (3
// attempts, fixed 2s, always retriable).
func (c *HTTPClient) Authenticate(ctx context.Context) error {
	return c.retrier.Do(ctx, func() error {
		body, err := json.Marshal(authRequest{Login: c.login, Password: c.password})
		if err != nil {
			return fmt.Errorf("marshal auth request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return &AuthError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var parsed authResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("decode auth response: %w", err)
		}

		c.mu.Lock()
		c.token = parsed.Token
		c.mu.Unlock()
		return nil
	})
}

func (c *HTTPClient) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

type inventoryRecordWire struct {
	ID      int `json:"id"`
	Rest    int `json:"rest"`
	StoreID int `json:"store_id"`
}

// Inventory fetches the store's inventory feed. An empty response is a
// hard error: the engine aborts rather than
// disabling every SKU.
func (c *HTTPClient) Inventory(ctx context.Context, storeID int) ([]types.InventoryRecord, error) {
	var records []inventoryRecordWire
	if err := c.getJSONWithReauth(ctx, fmt.Sprintf("/stores/%d/inventory", storeID), &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &EmptyInventoryError{StoreID: storeID}
	}

	out := make([]types.InventoryRecord, len(records))
	for i, r := range records {
		out[i] = types.InventoryRecord{ProductID: r.ID, Rest: r.Rest, StoreID: r.StoreID}
	}
	return out, nil
}

type extensionFieldWire struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type productDetailWire struct {
	ID        int                  `json:"id"`
	Title     string               `json:"title"`
	Price     *float64             `json:"price"`
	AddFields []extensionFieldWire `json:"add_fields"`
}

// Products fetches product details for every id, chunked at 1000 ids
// per call. A short response (fewer details
// than requested ids, summed across all chunks) is a hard error.
func (c *HTTPClient) Products(ctx context.Context, ids []int) ([]types.ProductDetail, error) {
	all := make([]types.ProductDetail, 0, len(ids))

	for start := 0; start < len(ids); start += productsChunkSize {
		end := start + productsChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var wire []productDetailWire
		if err := c.postJSONWithReauth(ctx, "/products", map[string]any{"ids": chunk}, &wire); err != nil {
			return nil, err
		}

		for _, w := range wire {
			exts := make([]types.ExtensionField, len(w.AddFields))
			for i, ef := range w.AddFields {
				exts[i] = types.ExtensionField{Field: ef.Field, Value: ef.Value}
			}
			all = append(all, types.ProductDetail{
				ProductID:  w.ID,
				Title:      w.Title,
				Price:      w.Price,
				Extensions: exts,
			})
		}
	}

	if len(all) < len(ids) {
		return nil, &ShortDetailResponseError{Requested: len(ids), Received: len(all)}
	}
	return all, nil
}

// getJSONWithReauth and postJSONWithReauth perform one request, and on
// a 401 re-authenticate exactly once before retrying the request once
// more.
func (c *HTTPClient) getJSONWithReauth(ctx context.Context, path string, out any) error {
	return c.doWithReauth(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	}, out)
}

func (c *HTTPClient) postJSONWithReauth(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.doWithReauth(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (c *HTTPClient) doWithReauth(ctx context.Context, build func() (*http.Request, error), out any) error {
	resp, respBody, err := c.do(build)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if reauthErr := c.Authenticate(ctx); reauthErr != nil {
			return reauthErr
		}
		resp, respBody, err = c.do(build)
		if err != nil {
			return err
		}
	}

	if resp.StatusCode != http.StatusOK {
		return &AuthError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", resp.Request.URL, err)
		}
	}
	return nil
}

func (c *HTTPClient) do(build func() (*http.Request, error)) (*http.Response, []byte, error) {
	req, err := build()
	if err != nil {
		return nil, nil, err
	}
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp, body, nil
}
