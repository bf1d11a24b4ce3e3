package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/fallback"
	"grantpath/internal/resilience/gateway"
	"grantpath/internal/resilience/health"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDescriptor(name string, capability resilience.Capability) resilience.Descriptor {
	return resilience.Descriptor{
		Name:             name,
		Capability:       capability,
		Timeout:          time.Second,
		FailureThreshold: 2,
		CoolDown:         10 * time.Second,
		CoolDownCeiling:  80 * time.Second,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
		BackoffBase:      time.Millisecond,
		BackoffCeiling:   5 * time.Millisecond,
	}
}

func newTestMonitor(t *testing.T, trip bool) *health.Monitor {
	t.Helper()
	rc, err := gateway.NewContext(
		[]resilience.Descriptor{testDescriptor("grant-index", resilience.CapabilityVectorSearch)},
		fallback.NewRegistry(),
		gateway.WithLogger(quietLogger()), gateway.WithMetrics(gateway.NoopMetrics{}))
	require.NoError(t, err)

	if trip {
		gw, _ := rc.Gateway("grant-index")
		fail := func(ctx context.Context, payload any) (any, error) {
			return nil, &resilience.TransientError{Err: errors.New("index down")}
		}
		for i := 0; i < 2; i++ {
			gw.Call(context.Background(), gateway.Request{Operation: "similarity-search", Idempotent: true}, fail)
		}
	}
	return health.NewMonitor(rc, nil, time.Minute, quietLogger())
}

func TestHealthHandler_Healthy(t *testing.T) {
	handler := &HealthHandler{Monitor: newTestMonitor(t, false), Version: "1.2.3", Logger: quietLogger()}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	require.Contains(t, body.Services, "grant-index")
	assert.Equal(t, "closed", body.Services["grant-index"].State)
}

func TestHealthHandler_Unavailable(t *testing.T) {
	handler := &HealthHandler{Monitor: newTestMonitor(t, true), Version: "1.2.3", Logger: quietLogger()}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "open", body.Services["grant-index"].State)
	assert.NotEmpty(t, body.Services["grant-index"].LastError)
}

func TestHealthHandler_AnswersFromSnapshotOnly(t *testing.T) {
	handler := &HealthHandler{Monitor: newTestMonitor(t, true), Logger: quietLogger()}

	// Even with every dependency down the endpoint answers immediately; it
	// reads the last snapshot and never probes anything inline.
	start := time.Now()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Less(t, time.Since(start), time.Second)
}
