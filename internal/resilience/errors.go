package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrBreakerOpen is returned inside the layer when a breaker rejects a
	// call fast-fail. It is never surfaced to callers; the gateway resolves
	// it through a fallback or maps it to an Unavailable outcome.
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrNoFallback is returned by the gateway internals when a degraded
	// path is needed but no substitute is registered for the capability.
	ErrNoFallback = errors.New("no fallback registered")

	// ErrStoreUnavailable is returned by the connection manager while the
	// primary store is marked down. Dependent calls fail fast instead of
	// queuing behind a dead pool.
	ErrStoreUnavailable = errors.New("primary store unavailable")

	// ErrConnectionLost marks a dropped primary-store connection. It drives
	// the reconnect loop, not individual request retries.
	ErrConnectionLost = errors.New("primary store connection lost")
)

// TransientError wraps a failure that classifies as transient regardless of
// what the capability classifier would decide.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a failure that must never be retried. The detail is
// surfaced to the caller in the envelope reason.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// HTTPError represents an HTTP-level failure from a dependency, carrying the
// status code the classifier branches on.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
