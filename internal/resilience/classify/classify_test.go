package classify

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"grantpath/internal/resilience"
)

func TestDefaultClassifier(t *testing.T) {
	classifier := ForCapability(resilience.CapabilityNotification)

	tests := []struct {
		name string
		err  error
		want resilience.Class
	}{
		{"nil error", nil, resilience.ClassSuccess},
		{"deadline exceeded", context.DeadlineExceeded, resilience.ClassTimeout},
		{"cancellation", context.Canceled, resilience.ClassTimeout},
		{"wrapped permanent", &resilience.PermanentError{Err: errors.New("bad input")}, resilience.ClassPermanent},
		{"wrapped transient", &resilience.TransientError{Err: errors.New("blip")}, resilience.ClassTransient},
		{"connection refused", syscall.ECONNREFUSED, resilience.ClassTransient},
		{"connection reset", syscall.ECONNRESET, resilience.ClassTransient},
		{"network timeout", &net.DNSError{IsTimeout: true}, resilience.ClassTimeout},
		{"http 500", &resilience.HTTPError{StatusCode: 500}, resilience.ClassTransient},
		{"http 429", &resilience.HTTPError{StatusCode: 429}, resilience.ClassTransient},
		{"http 408", &resilience.HTTPError{StatusCode: 408}, resilience.ClassTransient},
		{"http 400", &resilience.HTTPError{StatusCode: 400}, resilience.ClassPermanent},
		{"http 401", &resilience.HTTPError{StatusCode: 401}, resilience.ClassPermanent},
		{"connection lost", resilience.ErrConnectionLost, resilience.ClassTransient},
		{"unknown error", errors.New("mystery"), resilience.ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifier.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestCompletionClassifier(t *testing.T) {
	classifier := ForCapability(resilience.CapabilityCompletion)

	tests := []struct {
		name string
		code int
		want resilience.Class
	}{
		{"bad request", 400, resilience.ClassPermanent},
		{"unauthorized", 401, resilience.ClassPermanent},
		{"unprocessable", 422, resilience.ClassPermanent},
		{"rate limited", 429, resilience.ClassTransient},
		{"overloaded", 529, resilience.ClassTransient},
		{"server error", 500, resilience.ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &resilience.HTTPError{StatusCode: tt.code}
			if got := classifier.Classify(err); got != tt.want {
				t.Errorf("Classify(HTTP %d) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestPaymentClassifier_All4xxPermanent(t *testing.T) {
	classifier := ForCapability(resilience.CapabilityPaymentWebhook)

	for _, code := range []int{400, 408, 409, 422, 429} {
		err := &resilience.HTTPError{StatusCode: code}
		if got := classifier.Classify(err); got != resilience.ClassPermanent {
			t.Errorf("Classify(HTTP %d) = %s, want permanent", code, got)
		}
	}
	if got := classifier.Classify(&resilience.HTTPError{StatusCode: 503}); got != resilience.ClassTransient {
		t.Errorf("Classify(HTTP 503) = %s, want transient", got)
	}
}

func TestStoreClassifier(t *testing.T) {
	classifier := ForCapability(resilience.CapabilityPrimaryStore)

	if got := classifier.Classify(resilience.ErrStoreUnavailable); got != resilience.ClassTransient {
		t.Errorf("Classify(ErrStoreUnavailable) = %s, want transient", got)
	}
}

// timeoutErr lets the table above avoid depending on a real dialer.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNetTimeoutClassifiesAsTimeout(t *testing.T) {
	classifier := ForCapability(resilience.CapabilityVectorSearch)

	var err net.Error = timeoutErr{}
	if got := classifier.Classify(err); got != resilience.ClassTimeout {
		t.Errorf("Classify(net timeout) = %s, want timeout", got)
	}
}
