// Package classify maps raw failures from outbound calls into retry classes.
// Classification is pluggable per capability kind because the status codes
// that mean "give up" differ between a vector index, a completion API, and a
// payment provider.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"grantpath/internal/resilience"
)

// Classifier decides the class of a single attempt's failure.
type Classifier interface {
	Classify(err error) resilience.Class
}

// Func adapts a plain function to the Classifier interface.
type Func func(err error) resilience.Class

func (f Func) Classify(err error) resilience.Class { return f(err) }

// Default returns the baseline classifier used when no capability-specific
// rules apply.
func Default() Classifier { return Func(defaultClass) }

// ForCapability returns the classifier for a capability kind.
func ForCapability(capability resilience.Capability) Classifier {
	switch capability {
	case resilience.CapabilityCompletion:
		return Func(completionClass)
	case resilience.CapabilityPaymentWebhook:
		return Func(paymentClass)
	case resilience.CapabilityPrimaryStore:
		return Func(storeClass)
	default:
		return Func(defaultClass)
	}
}

// defaultClass implements the baseline rules: nil is success, deadline and
// cancellation are timeouts, network-level failures and 5xx-equivalents are
// transient, client-side rejections are permanent.
func defaultClass(err error) resilience.Class {
	if err == nil {
		return resilience.ClassSuccess
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resilience.ClassTimeout
	}

	var perm *resilience.PermanentError
	if errors.As(err, &perm) {
		return resilience.ClassPermanent
	}
	var trans *resilience.TransientError
	if errors.As(err, &trans) {
		return resilience.ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.ClassTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return resilience.ClassTransient
	}

	if errors.Is(err, resilience.ErrConnectionLost) {
		return resilience.ClassTransient
	}

	var httpErr *resilience.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode)
	}

	// Unknown failures default to transient: a retry is cheap relative to
	// dropping a recoverable call, and the breaker still bounds the damage.
	return resilience.ClassTransient
}

func classifyStatus(code int) resilience.Class {
	switch {
	case code >= 500:
		return resilience.ClassTransient
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return resilience.ClassTransient
	case code >= 400:
		return resilience.ClassPermanent
	default:
		return resilience.ClassSuccess
	}
}

// completionClass tightens the HTTP rules for completion APIs: anything the
// model provider rejects as malformed or unauthorized is permanent, while
// overload responses (429, 5xx, Anthropic's 529) stay transient.
func completionClass(err error) resilience.Class {
	var httpErr *resilience.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return resilience.ClassPermanent
		case http.StatusTooManyRequests, 529:
			return resilience.ClassTransient
		}
	}
	return defaultClass(err)
}

// paymentClass is strict: every 4xx from the payment provider is permanent,
// including signature and idempotency conflicts. Retrying a rejected payment
// event can only make things worse.
func paymentClass(err error) resilience.Class {
	var httpErr *resilience.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		return resilience.ClassPermanent
	}
	return defaultClass(err)
}

// storeClass treats lost connections and pool exhaustion as transient so the
// reconnect loop gets a chance; constraint-style failures never reach this
// layer because the manager only probes and checks out connections.
func storeClass(err error) resilience.Class {
	if errors.Is(err, resilience.ErrStoreUnavailable) {
		return resilience.ClassTransient
	}
	return defaultClass(err)
}
