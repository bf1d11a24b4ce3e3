// Package health aggregates per-service breaker state and the primary-store
// probe result into one snapshot. The monitor runs on a background schedule,
// never in the request path; readers always get the last published snapshot,
// so health reporting stays fast even when every dependency is down.
package health

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"grantpath/internal/resilience/breaker"
	"grantpath/internal/resilience/gateway"
)

// Status is a coarse per-service or overall health level.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	if a > b {
		return a
	}
	return b
}

// ServiceHealth is the per-service entry of a snapshot.
type ServiceHealth struct {
	Status        Status        `json:"-"`
	StatusText    string        `json:"status"`
	State         string        `json:"state"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	Latency       time.Duration `json:"-"`
	LatencyMS     int64         `json:"latency_ms"`
}

// Snapshot is one atomically published health view. The previous snapshot
// stays readable while the next poll cycle runs.
type Snapshot struct {
	Overall     Status                   `json:"-"`
	OverallText string                   `json:"status"`
	Services    map[string]ServiceHealth `json:"services"`
	TakenAt     time.Time                `json:"taken_at"`
}

// StoreStatus is the connection manager's view of the primary store.
type StoreStatus struct {
	Available   bool
	LastError   string
	LastProbeAt time.Time
	Latency     time.Duration
}

// StoreReporter is implemented by the connection resilience manager.
type StoreReporter interface {
	Status() StoreStatus
}

// Monitor polls every gateway and the store reporter on a fixed schedule and
// publishes the aggregate. One monitor runs per process.
type Monitor struct {
	gateways []*gateway.Gateway
	store    StoreReporter
	interval time.Duration
	logger   *slog.Logger

	cron     *cron.Cron
	snapshot atomic.Pointer[Snapshot]
}

// NewMonitor builds a monitor over the resilience context's gateways and the
// store reporter. store may be nil when the process has no primary store.
func NewMonitor(rc *gateway.Context, store StoreReporter, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		gateways: rc.Gateways(),
		store:    store,
		interval: interval,
		logger:   logger,
	}
	// Publish an initial snapshot so readers never see nil before the first
	// scheduled cycle.
	m.poll()
	return m
}

// Start begins the background poll schedule.
func (m *Monitor) Start() error {
	m.cron = cron.New()
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(spec, m.poll); err != nil {
		return fmt.Errorf("health monitor: %w", err)
	}
	m.cron.Start()
	m.logger.Info("health monitor started", slog.Duration("interval", m.interval))
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

// Snapshot returns the last published snapshot. Never nil.
func (m *Monitor) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// poll recomputes and atomically publishes a snapshot. Gateway reads are
// lock-free breaker snapshots; the per-service fan-out keeps a slow change
// hook or a large service count from serializing the cycle.
func (m *Monitor) poll() {
	now := time.Now()
	type entry struct {
		name   string
		health ServiceHealth
	}
	results := make([]entry, len(m.gateways))

	var g errgroup.Group
	for i, gw := range m.gateways {
		g.Go(func() error {
			results[i] = entry{name: gw.Name(), health: serviceHealth(gw, now)}
			return nil
		})
	}
	_ = g.Wait()

	snap := &Snapshot{
		Overall:  StatusHealthy,
		Services: make(map[string]ServiceHealth, len(results)+1),
		TakenAt:  now,
	}
	for _, e := range results {
		snap.Services[e.name] = e.health
		snap.Overall = worse(snap.Overall, e.health.Status)
	}

	if m.store != nil {
		sh := storeHealth(m.store.Status(), now)
		snap.Services["primary-store"] = sh
		snap.Overall = worse(snap.Overall, sh.Status)
	}

	snap.OverallText = snap.Overall.String()
	m.snapshot.Store(snap)

	if snap.Overall != StatusHealthy {
		m.logger.Warn("health degraded", slog.String("overall", snap.OverallText))
	}
}

// serviceHealth derives one service's status from its breaker state and the
// last call event.
func serviceHealth(gw *gateway.Gateway, now time.Time) ServiceHealth {
	bs := gw.BreakerSnapshot()

	var status Status
	switch bs.State {
	case breaker.StateClosed:
		status = StatusHealthy
	case breaker.StateHalfOpen:
		status = StatusDegraded
	default:
		status = StatusUnavailable
	}

	h := ServiceHealth{
		Status:        status,
		StatusText:    status.String(),
		State:         bs.State.String(),
		LastCheckedAt: now,
	}
	if ev := gw.LastEvent(); ev != nil {
		h.LastError = ev.Error
		h.Latency = ev.Latency
		h.LatencyMS = ev.Latency.Milliseconds()
	}
	return h
}

func storeHealth(st StoreStatus, now time.Time) ServiceHealth {
	status := StatusHealthy
	state := "available"
	if !st.Available {
		status = StatusUnavailable
		state = "unavailable"
	}
	checked := st.LastProbeAt
	if checked.IsZero() {
		checked = now
	}
	return ServiceHealth{
		Status:        status,
		StatusText:    status.String(),
		State:         state,
		LastError:     st.LastError,
		LastCheckedAt: checked,
		Latency:       st.Latency,
		LatencyMS:     st.Latency.Milliseconds(),
	}
}
