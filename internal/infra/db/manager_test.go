package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpath/internal/resilience"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		ProbeInterval:          10 * time.Millisecond,
		ProbeTimeout:           time.Second,
		ProbeFailureThreshold:  5,
		CheckoutRetries:        1,
		CheckoutBackoffBase:    time.Millisecond,
		CheckoutBackoffCeiling: 5 * time.Millisecond,
	}
}

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return NewManager(pool, testManagerConfig(), quietLogger()), mock
}

func TestManager_ProbeFailuresMarkUnavailable(t *testing.T) {
	m, mock := newMockManager(t)
	ctx := context.Background()
	down := errors.New("dial tcp: connection refused")

	for i := 0; i < 4; i++ {
		mock.ExpectPing().WillReturnError(down)
		m.probe(ctx)
		assert.True(t, m.Status().Available, "still available after %d failures", i+1)
	}

	mock.ExpectPing().WillReturnError(down)
	m.probe(ctx)

	st := m.Status()
	assert.False(t, st.Available, "fifth consecutive failure marks the store unavailable")
	assert.Contains(t, st.LastError, "connection refused")
	assert.False(t, st.LastProbeAt.IsZero())

	// While unavailable, checkout fails fast without touching the pool.
	_, err := m.Acquire(ctx)
	assert.ErrorIs(t, err, resilience.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_SingleSuccessfulProbeRecovers(t *testing.T) {
	m, mock := newMockManager(t)
	ctx := context.Background()
	down := errors.New("server closed the connection unexpectedly")

	for i := 0; i < 5; i++ {
		mock.ExpectPing().WillReturnError(down)
		m.probe(ctx)
	}
	require.False(t, m.Status().Available)

	mock.ExpectPing()
	m.probe(ctx)

	assert.True(t, m.Status().Available, "one good probe restores normal pooling")
	assert.Empty(t, m.Status().LastError)

	conn, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_SuccessResetsConsecutiveCount(t *testing.T) {
	m, mock := newMockManager(t)
	ctx := context.Background()
	down := errors.New("connection reset by peer")

	for i := 0; i < 4; i++ {
		mock.ExpectPing().WillReturnError(down)
		m.probe(ctx)
	}
	mock.ExpectPing()
	m.probe(ctx)

	// Four more failures after the success must not cross the threshold.
	for i := 0; i < 4; i++ {
		mock.ExpectPing().WillReturnError(down)
		m.probe(ctx)
	}
	assert.True(t, m.Status().Available, "non-consecutive failures must not mark unavailable")

	mock.ExpectPing().WillReturnError(down)
	m.probe(ctx)
	assert.False(t, m.Status().Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_AcquireWrapsCheckoutFailure(t *testing.T) {
	pool, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	m := NewManager(pool, testManagerConfig(), quietLogger())

	// A closed pool makes every checkout and recovery ping fail.
	mock.ExpectClose()
	require.NoError(t, pool.Close())

	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, resilience.ErrConnectionLost)
}

func TestManager_AcquireHonorsContext(t *testing.T) {
	m, mock := newMockManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_StartProbesImmediately(t *testing.T) {
	m, mock := newMockManager(t)
	mock.ExpectPing()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return m.Status().LastProbeAt != time.Time{}
	}, time.Second, 5*time.Millisecond, "first probe must run before the first tick")

	cancel()
	<-done
}
