package gateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder abstracts the metrics backend so tests can inject a mock
// and the recorder can be swapped without touching call-path code.
type MetricsRecorder interface {
	// RecordCall counts one completed gateway call and observes its latency.
	RecordCall(service, outcome string, latency time.Duration)

	// RecordFallback counts one payload served from the fallback registry.
	RecordFallback(service string)

	// RecordTransition counts one breaker state change.
	RecordTransition(service, from, to string)

	// SetBreakerState publishes the breaker state as a gauge
	// (0 closed, 1 open, 2 half-open).
	SetBreakerState(service string, state int)
}

// PrometheusMetrics is the production MetricsRecorder.
type PrometheusMetrics struct {
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	fallbacks   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

var (
	sharedMetricsInstance *PrometheusMetrics
	sharedMetricsOnce     sync.Once
)

// sharedMetrics returns the process-wide recorder. Collectors register once;
// re-registration is tolerated so tests can build many gateways.
func sharedMetrics() *PrometheusMetrics {
	sharedMetricsOnce.Do(func() {
		sharedMetricsInstance = &PrometheusMetrics{
			calls: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "grantpath_gateway_calls_total",
				Help: "Gateway calls by service and outcome.",
			}, []string{"service", "outcome"}),
			latency: getOrCreateHistogramVec(prometheus.HistogramOpts{
				Name:    "grantpath_gateway_call_duration_seconds",
				Help:    "Gateway call latency by service.",
				Buckets: prometheus.DefBuckets,
			}, []string{"service"}),
			fallbacks: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "grantpath_gateway_fallbacks_total",
				Help: "Payloads served from the fallback registry.",
			}, []string{"service"}),
			transitions: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "grantpath_breaker_transitions_total",
				Help: "Circuit breaker state transitions.",
			}, []string{"service", "from", "to"}),
			state: getOrCreateGaugeVec(prometheus.GaugeOpts{
				Name: "grantpath_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open).",
			}, []string{"service"}),
		}
	})
	return sharedMetricsInstance
}

func (m *PrometheusMetrics) RecordCall(service, outcome string, latency time.Duration) {
	m.calls.WithLabelValues(service, outcome).Inc()
	m.latency.WithLabelValues(service).Observe(latency.Seconds())
}

func (m *PrometheusMetrics) RecordFallback(service string) {
	m.fallbacks.WithLabelValues(service).Inc()
}

func (m *PrometheusMetrics) RecordTransition(service, from, to string) {
	m.transitions.WithLabelValues(service, from, to).Inc()
}

func (m *PrometheusMetrics) SetBreakerState(service string, state int) {
	m.state.WithLabelValues(service).Set(float64(state))
}

// NoopMetrics discards every observation. Useful in tests that assert on
// behavior rather than telemetry.
type NoopMetrics struct{}

func (NoopMetrics) RecordCall(string, string, time.Duration) {}
func (NoopMetrics) RecordFallback(string)                    {}
func (NoopMetrics) RecordTransition(string, string, string)  {}
func (NoopMetrics) SetBreakerState(string, int)              {}

func getOrCreateCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return promauto.NewCounterVec(opts, labels)
	}
	return c
}

func getOrCreateHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		return promauto.NewHistogramVec(opts, labels)
	}
	return h
}

func getOrCreateGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		return promauto.NewGaugeVec(opts, labels)
	}
	return g
}
