package contract

import "errors"

var (
	// ErrUpstreamUnavailable marks a transient upstream failure. Retryable
	// with backoff; surfaced after exhaustion.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamRateLimited tells the caller to defer. Never retried in a
	// tight loop.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrUpstreamAuthExpired is fatal to the current call and must propagate
	// so credentials can be refreshed. Never auto-retried.
	ErrUpstreamAuthExpired = errors.New("upstream auth expired")

	ErrNotFound   = errors.New("record not found")
	ErrMapping    = errors.New("document mapping failed")
	ErrValidation = errors.New("validation failed")
)
