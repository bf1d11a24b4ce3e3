package resilience

import "time"

// Class is the classification of a single call attempt.
type Class int

const (
	// ClassSuccess means the attempt completed without error.
	ClassSuccess Class = iota

	// ClassTransient means the attempt failed in a way worth retrying:
	// network-level errors, 5xx-equivalent responses, connection resets.
	ClassTransient

	// ClassPermanent means the attempt failed in a way no retry can fix:
	// validation or authorization failures. Counted toward the breaker
	// immediately.
	ClassPermanent

	// ClassTimeout means the attempt exceeded its per-call budget. Treated
	// like ClassTransient for retry purposes but logged distinctly.
	ClassTimeout
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may help.
func (c Class) Retryable() bool {
	return c == ClassTransient || c == ClassTimeout
}

// CallOutcome describes one attempt against a dependency. It is ephemeral:
// consumed by the breaker and retry policy, never persisted.
type CallOutcome struct {
	Class   Class
	Latency time.Duration
	Err     error
}
