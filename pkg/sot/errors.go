package sot

import "fmt"

// AuthError is returned when a source-of-truth request answers with a
// non-200 status: the authentication call itself, or an inventory or
// products call that still fails after the single re-authentication.
// It carries the HTTP status and the response body.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("source-of-truth authentication failed: status %d: %s", e.StatusCode, e.Body)
}

// EmptyInventoryError is returned when the source of truth reports
// zero inventory records for a store: this is a hard error the engine aborts on, it never disables
// every SKU as a result.
type EmptyInventoryError struct {
	StoreID int
}

func (e *EmptyInventoryError) Error() string {
	return fmt.Sprintf("source-of-truth returned empty inventory for store %d", e.StoreID)
}

// ShortDetailResponseError is returned when the source of truth
// returns fewer product detail records than requested ids: a hard
// error, never partially applied.
type ShortDetailResponseError struct {
	Requested int
	Received  int
}

func (e *ShortDetailResponseError) Error() string {
	return fmt.Sprintf("source-of-truth returned %d product details for %d requested ids", e.Received, e.Requested)
}
