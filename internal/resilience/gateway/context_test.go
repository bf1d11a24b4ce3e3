package gateway

import (
	"testing"

	"grantpath/internal/resilience"
)

func TestNewContext_BuildsGatewayPerService(t *testing.T) {
	descs := []resilience.Descriptor{
		resilience.DefaultDescriptor("grant-index", resilience.CapabilityVectorSearch),
		resilience.DefaultDescriptor("draft-writer", resilience.CapabilityCompletion),
	}

	rc, err := NewContext(descs, nil, WithLogger(quietLogger()), WithMetrics(NoopMetrics{}))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	if _, ok := rc.Gateway("grant-index"); !ok {
		t.Error("grant-index gateway missing")
	}
	if _, ok := rc.Gateway("missing"); ok {
		t.Error("unknown service must not resolve")
	}
	if got := len(rc.Gateways()); got != 2 {
		t.Errorf("expected 2 gateways, got %d", got)
	}
}

func TestNewContext_RejectsDuplicateNames(t *testing.T) {
	descs := []resilience.Descriptor{
		resilience.DefaultDescriptor("grant-index", resilience.CapabilityVectorSearch),
		resilience.DefaultDescriptor("grant-index", resilience.CapabilityCompletion),
	}

	if _, err := NewContext(descs, nil); err == nil {
		t.Fatal("duplicate service names must be rejected")
	}
}

func TestNewContext_RejectsInvalidDescriptor(t *testing.T) {
	bad := resilience.DefaultDescriptor("grant-index", resilience.CapabilityVectorSearch)
	bad.FailureThreshold = 0

	if _, err := NewContext([]resilience.Descriptor{bad}, nil); err == nil {
		t.Fatal("invalid descriptor must be rejected")
	}
}

func TestContext_GatewaysStableOrder(t *testing.T) {
	descs := []resilience.Descriptor{
		resilience.DefaultDescriptor("zeta", resilience.CapabilityVectorSearch),
		resilience.DefaultDescriptor("alpha", resilience.CapabilityCompletion),
		resilience.DefaultDescriptor("mid", resilience.CapabilityNotification),
	}

	rc, err := NewContext(descs, nil, WithLogger(quietLogger()), WithMetrics(NoopMetrics{}))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	want := []string{"alpha", "mid", "zeta"}
	for i, gw := range rc.Gateways() {
		if gw.Name() != want[i] {
			t.Fatalf("gateways[%d] = %s, want %s", i, gw.Name(), want[i])
		}
	}
}
