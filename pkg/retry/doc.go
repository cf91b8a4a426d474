/*
Package retry implements the exponential-backoff retry wrapper used
around every outbound call: bounded attempts, a classifier deciding
retriable versus terminal failures, and a Retry-After override that
replaces (but does not reset) the running exponential delay.

The exponential schedule itself is computed by
github.com/cenkalti/backoff/v4's ExponentialBackOff; this package adds
the attempt bound, the classifier hook, and the Retry-After override
the plain library does not provide.
*/
package retry
