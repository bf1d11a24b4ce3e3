package resilience

import (
	"fmt"
	"time"
)

// Capability identifies the kind of external dependency a gateway guards.
// Classification rules and fallback substitutes are registered per capability,
// since "permanent" failure codes differ between a vector index, a completion
// API, and a payment provider.
type Capability string

const (
	CapabilityVectorSearch   Capability = "vector-search"
	CapabilityCompletion     Capability = "completion"
	CapabilityNotification   Capability = "notification"
	CapabilityPaymentWebhook Capability = "payment-webhook"
	CapabilityPrimaryStore   Capability = "primary-store"
)

// Capabilities lists every known capability kind in a stable order.
func Capabilities() []Capability {
	return []Capability{
		CapabilityVectorSearch,
		CapabilityCompletion,
		CapabilityNotification,
		CapabilityPaymentWebhook,
		CapabilityPrimaryStore,
	}
}

// Valid reports whether c is a known capability kind.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityVectorSearch, CapabilityCompletion, CapabilityNotification,
		CapabilityPaymentWebhook, CapabilityPrimaryStore:
		return true
	}
	return false
}

// Descriptor is the identity and tuning of one guarded dependency.
// It is owned by configuration, immutable after process start, and read by
// the breaker, retry policy, and gateway. Reloading requires a restart.
type Descriptor struct {
	// Name is the unique service name, used in logs, metrics, and health output.
	Name string

	// Capability selects the classifier and fallback for this service.
	Capability Capability

	// Timeout bounds a single call attempt against the real dependency.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures in the closed
	// state that trips the breaker open.
	FailureThreshold int

	// CoolDown is how long the breaker stays open before allowing a trial
	// call. After a failed half-open trial the effective cool-down doubles,
	// bounded by CoolDownCeiling.
	CoolDown time.Duration

	// CoolDownCeiling caps the escalated cool-down.
	CoolDownCeiling time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int

	// HalfOpenMaxCalls bounds concurrent trial calls while half-open.
	HalfOpenMaxCalls int

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BackoffBase is the first retry delay; attempt n waits base*2^n plus
	// jitter of up to one base unit.
	BackoffBase time.Duration

	// BackoffCeiling caps any single retry delay.
	BackoffCeiling time.Duration
}

// Validate checks that the descriptor is internally consistent.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: name is required")
	}
	if !d.Capability.Valid() {
		return fmt.Errorf("descriptor %q: unknown capability %q", d.Name, d.Capability)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("descriptor %q: timeout must be positive", d.Name)
	}
	if d.FailureThreshold < 1 {
		return fmt.Errorf("descriptor %q: failure threshold must be at least 1", d.Name)
	}
	if d.SuccessThreshold < 1 {
		return fmt.Errorf("descriptor %q: success threshold must be at least 1", d.Name)
	}
	if d.HalfOpenMaxCalls < 1 {
		return fmt.Errorf("descriptor %q: half-open max calls must be at least 1", d.Name)
	}
	if d.CoolDown <= 0 {
		return fmt.Errorf("descriptor %q: cool-down must be positive", d.Name)
	}
	if d.CoolDownCeiling < d.CoolDown {
		return fmt.Errorf("descriptor %q: cool-down ceiling below cool-down", d.Name)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("descriptor %q: max retries must not be negative", d.Name)
	}
	if d.MaxRetries > 0 && d.BackoffBase <= 0 {
		return fmt.Errorf("descriptor %q: backoff base must be positive when retries are enabled", d.Name)
	}
	if d.BackoffCeiling < d.BackoffBase {
		return fmt.Errorf("descriptor %q: backoff ceiling below backoff base", d.Name)
	}
	return nil
}

// DefaultDescriptor returns tuned defaults for a capability kind. The values
// are deployment-tunable starting points, not contractual behavior.
func DefaultDescriptor(name string, capability Capability) Descriptor {
	d := Descriptor{
		Name:             name,
		Capability:       capability,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		CoolDownCeiling:  5 * time.Minute,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 3,
		MaxRetries:       2,
		BackoffBase:      500 * time.Millisecond,
		BackoffCeiling:   10 * time.Second,
	}

	switch capability {
	case CapabilityCompletion:
		// Completion calls are slow and billed per token. Fewer, slower retries.
		d.Timeout = 60 * time.Second
		d.MaxRetries = 2
		d.BackoffBase = 2 * time.Second
		d.BackoffCeiling = 20 * time.Second
	case CapabilityVectorSearch:
		d.Timeout = 5 * time.Second
		d.MaxRetries = 2
		d.BackoffBase = 200 * time.Millisecond
		d.BackoffCeiling = 2 * time.Second
	case CapabilityNotification:
		d.Timeout = 10 * time.Second
		d.MaxRetries = 1
	case CapabilityPaymentWebhook:
		// Payment verification must answer quickly and must not flap.
		d.Timeout = 8 * time.Second
		d.FailureThreshold = 3
		d.MaxRetries = 1
		d.BackoffBase = time.Second
		d.BackoffCeiling = 4 * time.Second
	case CapabilityPrimaryStore:
		d.Timeout = 3 * time.Second
		d.FailureThreshold = 5
		d.CoolDown = 15 * time.Second
		d.MaxRetries = 3
		d.BackoffBase = 100 * time.Millisecond
		d.BackoffCeiling = time.Second
	}

	return d
}
