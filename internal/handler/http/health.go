// Package http provides the HTTP surface of the resilience layer: the health
// endpoint the deployment platform polls for liveness and readiness.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"grantpath/internal/resilience/health"
)

// HealthResponse is the JSON document the health endpoint serves.
type HealthResponse struct {
	Status    string                          `json:"status"`
	Timestamp string                          `json:"timestamp"`
	Version   string                          `json:"version"`
	Services  map[string]health.ServiceHealth `json:"services"`
}

// HealthHandler serves the last published health snapshot. It never probes a
// dependency itself, so it answers just as fast when everything is down as
// when everything is up. Wrap it in http.TimeoutHandler for a hard bound.
type HealthHandler struct {
	Monitor *health.Monitor
	Version string
	Logger  *slog.Logger
}

// ServeHTTP reports the aggregated health. 200 for healthy and degraded
// (degraded is operational, the platform must not restart the process for
// it), 503 when the overall status is unavailable.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.Monitor.Snapshot()

	statusCode := http.StatusOK
	if snap.Overall == health.StatusUnavailable {
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    snap.Overall.String(),
		Timestamp: snap.TakenAt.UTC().Format(time.RFC3339),
		Version:   h.Version,
		Services:  snap.Services,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("health: failed to encode response", slog.Any("error", err))
	}
}
