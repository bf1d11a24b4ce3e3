package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/health"
)

// ManagerConfig tunes the connection resilience manager.
type ManagerConfig struct {
	// ProbeInterval is how often the liveness probe runs, independent of
	// request traffic.
	ProbeInterval time.Duration

	// ProbeTimeout bounds one probe round trip.
	ProbeTimeout time.Duration

	// ProbeFailureThreshold is the number of consecutive probe failures
	// after which the store is marked unavailable.
	ProbeFailureThreshold int

	// CheckoutRetries is the number of additional checkout attempts after
	// the first, each preceded by an exponentially growing wait.
	CheckoutRetries int

	// CheckoutBackoffBase is the first checkout retry delay.
	CheckoutBackoffBase time.Duration

	// CheckoutBackoffCeiling caps any single checkout retry delay.
	CheckoutBackoffCeiling time.Duration
}

// DefaultManagerConfig returns deployment-tunable defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ProbeInterval:          10 * time.Second,
		ProbeTimeout:           3 * time.Second,
		ProbeFailureThreshold:  5,
		CheckoutRetries:        3,
		CheckoutBackoffBase:    100 * time.Millisecond,
		CheckoutBackoffCeiling: time.Second,
	}
}

// probeResult is the outcome of one liveness probe, published atomically.
type probeResult struct {
	at      time.Time
	latency time.Duration
	err     error
}

// Manager is the connection resilience manager for the primary store. It
// specializes the gateway pattern for the pooled connection: checkout
// failures reconnect with backoff instead of failing the caller outright,
// and a periodic probe marks the store unavailable after repeated failures
// so dependent calls fail fast rather than queuing behind a dead pool.
// Recovery is symmetric: one successful probe clears the mark.
type Manager struct {
	pool   *sql.DB
	cfg    ManagerConfig
	logger *slog.Logger
	now    func() time.Time

	unavailable   atomic.Bool
	probeFailures atomic.Int32
	lastProbe     atomic.Pointer[probeResult]

	// reconnect collapses concurrent checkout recoveries into one ping.
	reconnect singleflight.Group
}

// NewManager wraps an open pool. Call Start to run the probe loop.
func NewManager(pool *sql.DB, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pool:   pool,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Pool exposes the underlying pool for repositories. Callers should prefer
// Acquire for per-request work so the unavailable mark is honored.
func (m *Manager) Pool() *sql.DB { return m.pool }

// Start runs the liveness probe loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	// Probe immediately so the first health snapshot has real data.
	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// Acquire checks out a connection, retrying with backoff on transient
// checkout failures. While the store is marked unavailable it fails fast
// with ErrStoreUnavailable instead of waiting out the pool timeout.
func (m *Manager) Acquire(ctx context.Context) (*sql.Conn, error) {
	if m.unavailable.Load() {
		return nil, resilience.ErrStoreUnavailable
	}

	var lastErr error
	delay := m.cfg.CheckoutBackoffBase
	for attempt := 0; attempt <= m.cfg.CheckoutRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", resilience.ErrConnectionLost, ctx.Err())
			}
			delay = minDuration(delay*2, m.cfg.CheckoutBackoffCeiling)

			// Collapse concurrent recoveries into a single round trip.
			if _, err, _ := m.reconnect.Do("ping", func() (any, error) {
				pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
				defer cancel()
				return nil, m.pool.PingContext(pingCtx)
			}); err != nil {
				lastErr = err
				continue
			}
		}

		conn, err := m.pool.Conn(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		m.logger.Warn("connection checkout failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}

	return nil, fmt.Errorf("%w: %v", resilience.ErrConnectionLost, lastErr)
}

// Status implements health.StoreReporter.
func (m *Manager) Status() health.StoreStatus {
	st := health.StoreStatus{Available: !m.unavailable.Load()}
	if pr := m.lastProbe.Load(); pr != nil {
		st.LastProbeAt = pr.at
		st.Latency = pr.latency
		if pr.err != nil {
			st.LastError = pr.err.Error()
		}
	}
	return st
}

// probe runs one lightweight round trip and updates the unavailable mark.
func (m *Manager) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := m.now()
	err := m.pool.PingContext(probeCtx)
	result := &probeResult{at: start, latency: m.now().Sub(start), err: err}
	m.lastProbe.Store(result)

	if err != nil {
		failures := m.probeFailures.Add(1)
		m.logger.Warn("liveness probe failed",
			slog.Int("consecutive_failures", int(failures)),
			slog.Int("threshold", m.cfg.ProbeFailureThreshold),
			slog.Any("error", err))
		if int(failures) >= m.cfg.ProbeFailureThreshold && m.unavailable.CompareAndSwap(false, true) {
			m.logger.Error("primary store marked unavailable",
				slog.Int("consecutive_failures", int(failures)))
		}
		return
	}

	m.probeFailures.Store(0)
	if m.unavailable.CompareAndSwap(true, false) {
		m.logger.Info("primary store recovered, resuming normal pooling")
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
