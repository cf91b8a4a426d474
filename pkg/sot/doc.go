/*
Package sot implements the source-of-truth adapter contract:
authenticate once per run, fetch a store's inventory feed, and fetch
product details in chunks, extracting each product's marketplace SKU
from its extension fields.

The adapter talks plain JSON over net/http rather than a third-party
HTTP client; retries and auth-token refresh are layered on top with
pkg/retry.
*/
package sot
