package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/fallback"
	"grantpath/internal/resilience/gateway"
)

type stubStore struct {
	status StoreStatus
}

func (s *stubStore) Status() StoreStatus { return s.status }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) *gateway.Context {
	t.Helper()
	desc := resilience.Descriptor{
		Name:             "grant-index",
		Capability:       resilience.CapabilityVectorSearch,
		Timeout:          time.Second,
		FailureThreshold: 2,
		CoolDown:         10 * time.Second,
		CoolDownCeiling:  80 * time.Second,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
		BackoffBase:      time.Millisecond,
		BackoffCeiling:   5 * time.Millisecond,
	}
	rc, err := gateway.NewContext([]resilience.Descriptor{desc}, fallback.NewRegistry(),
		gateway.WithLogger(quietLogger()), gateway.WithMetrics(gateway.NoopMetrics{}))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return rc
}

func TestMonitor_SnapshotNeverNil(t *testing.T) {
	rc := testContext(t)
	m := NewMonitor(rc, nil, time.Minute, quietLogger())

	snap := m.Snapshot()
	if snap == nil {
		t.Fatal("snapshot must be published before Start")
	}
	if snap.Overall != StatusHealthy {
		t.Fatalf("fresh breakers should report healthy, got %s", snap.OverallText)
	}
	if _, ok := snap.Services["grant-index"]; !ok {
		t.Fatal("snapshot missing grant-index entry")
	}
}

func TestMonitor_OpenBreakerReportsUnavailable(t *testing.T) {
	rc := testContext(t)
	gw, _ := rc.Gateway("grant-index")

	fail := func(ctx context.Context, payload any) (any, error) {
		return nil, &resilience.TransientError{Err: errors.New("index down")}
	}
	for i := 0; i < 2; i++ {
		gw.Call(context.Background(), gateway.Request{Operation: "similarity-search", Idempotent: true}, fail)
	}

	m := NewMonitor(rc, nil, time.Minute, quietLogger())
	snap := m.Snapshot()

	svc := snap.Services["grant-index"]
	if svc.Status != StatusUnavailable || svc.State != "open" {
		t.Fatalf("expected unavailable/open, got %s/%s", svc.StatusText, svc.State)
	}
	if svc.LastError == "" {
		t.Error("failed service should expose its last error")
	}
	if snap.Overall != StatusUnavailable {
		t.Fatalf("overall must be the worst service status, got %s", snap.OverallText)
	}
}

func TestMonitor_StoreStatusFeedsSnapshot(t *testing.T) {
	rc := testContext(t)
	store := &stubStore{status: StoreStatus{
		Available:   false,
		LastError:   "dial tcp: connection refused",
		LastProbeAt: time.Now(),
	}}

	m := NewMonitor(rc, store, time.Minute, quietLogger())
	snap := m.Snapshot()

	svc, ok := snap.Services["primary-store"]
	if !ok {
		t.Fatal("snapshot missing primary-store entry")
	}
	if svc.Status != StatusUnavailable || svc.State != "unavailable" {
		t.Fatalf("expected unavailable store, got %s/%s", svc.StatusText, svc.State)
	}
	if snap.Overall != StatusUnavailable {
		t.Fatalf("unavailable store must drag overall down, got %s", snap.OverallText)
	}

	// Recovery is reflected on the next poll.
	store.status.Available = true
	store.status.LastError = ""
	m.poll()
	if got := m.Snapshot().Overall; got != StatusHealthy {
		t.Fatalf("expected healthy after store recovery, got %s", got)
	}
}

func TestMonitor_PollPublishesNewSnapshot(t *testing.T) {
	rc := testContext(t)
	m := NewMonitor(rc, nil, time.Minute, quietLogger())

	first := m.Snapshot()
	m.poll()
	second := m.Snapshot()

	if first == second {
		t.Fatal("poll must publish a fresh snapshot value")
	}
	if second.TakenAt.Before(first.TakenAt) {
		t.Fatal("snapshot timestamps must not go backwards")
	}
}

func TestWorse(t *testing.T) {
	if worse(StatusHealthy, StatusDegraded) != StatusDegraded {
		t.Error("degraded outranks healthy")
	}
	if worse(StatusUnavailable, StatusDegraded) != StatusUnavailable {
		t.Error("unavailable outranks degraded")
	}
	if worse(StatusHealthy, StatusHealthy) != StatusHealthy {
		t.Error("healthy vs healthy is healthy")
	}
}

func TestMonitor_StartAndStop(t *testing.T) {
	rc := testContext(t)
	m := NewMonitor(rc, nil, time.Second, quietLogger())

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()

	// Stop on a never-started monitor is a no-op.
	idle := NewMonitor(rc, nil, time.Second, quietLogger())
	idle.Stop()
}
