/*
Package marketplace implements the marketplace adapter contract: PATCH
item and inventory batches under HTTP basic auth, and a best-effort GET
for existing items used by the hybrid orchestrator's introspection
step.

This package only speaks the wire protocol and classifies responses by
status code; retrying and circuit-breaking are layered on top by the
caller using pkg/retry and pkg/breaker; StatusError exposes the
duck-typed StatusCode/RetryAfterSeconds methods those packages expect.
*/
package marketplace
