// Package gateway is the uniform call surface every external dependency is
// wrapped in. A Gateway composes the error classifier, retry policy, circuit
// breaker, and fallback registry; collaborators hold a Gateway reference and
// never reach the dependency directly.
//
// A call never lets a raw dependency error escape: the caller always receives
// an Envelope whose outcome is Success, Degraded, or Unavailable.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"grantpath/internal/observability/tracing"
	"grantpath/internal/resilience"
	"grantpath/internal/resilience/breaker"
	"grantpath/internal/resilience/classify"
	"grantpath/internal/resilience/fallback"
	"grantpath/internal/resilience/retry"
)

// Outcome is the caller-visible result kind of a gateway call.
type Outcome int

const (
	// OutcomeSuccess means the real dependency answered.
	OutcomeSuccess Outcome = iota

	// OutcomeDegraded means the payload came from the fallback registry.
	OutcomeDegraded

	// OutcomeUnavailable means the dependency failed and no fallback exists.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Request describes one logical call through a gateway.
type Request struct {
	// Operation names the call for logs, traces, and metrics.
	Operation string

	// Payload is handed to the call function and to the fallback.
	Payload any

	// TimeoutOverride replaces the descriptor's per-attempt timeout when
	// positive.
	TimeoutOverride time.Duration

	// Idempotent marks the call safe to retry. Non-idempotent calls get a
	// single attempt regardless of the retry policy.
	Idempotent bool
}

// Envelope is what every gateway call returns. Degraded is true if and only
// if Payload came from the fallback registry.
type Envelope struct {
	Outcome      Outcome
	Payload      any
	Degraded     bool
	Reason       string
	Latency      time.Duration
	BreakerState breaker.State
}

// CallFunc performs the real dependency call for one attempt.
type CallFunc func(ctx context.Context, payload any) (any, error)

// HealthEvent is the per-call record the health monitor consumes.
type HealthEvent struct {
	Service string
	State   breaker.State
	Outcome Outcome
	Error   string
	Latency time.Duration
	At      time.Time
}

// Gateway guards one external dependency.
type Gateway struct {
	desc       resilience.Descriptor
	breaker    *breaker.Breaker
	retryCfg   retry.Config
	classifier classify.Classifier
	fallbacks  *fallback.Registry
	logger     *slog.Logger
	metrics    MetricsRecorder
	tracer     trace.Tracer

	lastEvent atomic.Pointer[HealthEvent]
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics replaces the default Prometheus recorder.
func WithMetrics(m MetricsRecorder) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithClassifier overrides the capability's default classifier.
func WithClassifier(c classify.Classifier) GatewayOption {
	return func(g *Gateway) { g.classifier = c }
}

// WithBreakerClock substitutes the breaker's time source, for tests.
func WithBreakerClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		g.breaker = breaker.New(g.desc, breaker.WithClock(now), breaker.WithChangeHook(g.onStateChange))
	}
}

// New creates a gateway for one descriptor. Fallbacks are looked up in the
// shared registry by the descriptor's capability kind.
func New(desc resilience.Descriptor, fallbacks *fallback.Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		desc:       desc,
		retryCfg:   retry.FromDescriptor(desc),
		classifier: classify.ForCapability(desc.Capability),
		fallbacks:  fallbacks,
		logger:     slog.Default(),
		metrics:    sharedMetrics(),
		tracer:     tracing.GetTracer(),
	}
	g.breaker = breaker.New(desc, breaker.WithChangeHook(g.onStateChange))
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the guarded service name.
func (g *Gateway) Name() string { return g.desc.Name }

// Capability returns the guarded capability kind.
func (g *Gateway) Capability() resilience.Capability { return g.desc.Capability }

// BreakerSnapshot returns the breaker's current state for health polling.
func (g *Gateway) BreakerSnapshot() breaker.Snapshot { return g.breaker.Snapshot() }

// LastEvent returns the most recent per-call health event, or nil before the
// first call.
func (g *Gateway) LastEvent() *HealthEvent { return g.lastEvent.Load() }

// Call runs one logical call through the resilience stack.
//
// If the breaker is open the dependency is never contacted: the fallback is
// served degraded, or Unavailable is returned when none is registered. Other
// failures are classified and retried within the policy and the caller's
// deadline; a permanent failure or an exhausted budget reports one failure to
// the breaker and then resolves through the fallback the same way.
func (g *Gateway) Call(ctx context.Context, req Request, fn CallFunc) Envelope {
	callID := uuid.New().String()
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "gateway."+g.desc.Name+"."+req.Operation)
	defer span.End()

	state, allowed := g.breaker.Allow()
	if !allowed {
		env := g.resolveDegraded(ctx, req, state, resilience.ErrBreakerOpen, "circuit open")
		env.Latency = time.Since(start)
		g.finish(ctx, req, callID, env, span)
		return env
	}

	cfg := g.retryCfg
	if req.TimeoutOverride > 0 {
		cfg.AttemptTimeout = req.TimeoutOverride
	}
	if !req.Idempotent || state == breaker.StateHalfOpen {
		// Half-open permits are single trial calls; non-idempotent requests
		// must not be replayed.
		cfg.MaxRetries = 0
	}

	var payload any
	outcome := retry.Do(ctx, cfg, g.classifier, func(attemptCtx context.Context) error {
		result, err := fn(attemptCtx, req.Payload)
		if err == nil {
			payload = result
		}
		return err
	})

	if outcome.Class == resilience.ClassSuccess {
		g.breaker.RecordSuccess()
		env := Envelope{
			Outcome:      OutcomeSuccess,
			Payload:      payload,
			Latency:      time.Since(start),
			BreakerState: state,
		}
		g.finish(ctx, req, callID, env, span)
		return env
	}

	g.breaker.RecordFailure()
	env := g.resolveDegraded(ctx, req, state, outcome.Err, outcome.Class.String()+" failure")
	env.Latency = time.Since(start)
	g.finish(ctx, req, callID, env, span)
	return env
}

// resolveDegraded routes a failed or rejected call through the fallback
// registry, or maps it to Unavailable when no substitute exists.
func (g *Gateway) resolveDegraded(ctx context.Context, req Request, state breaker.State, cause error, reason string) Envelope {
	fn, ok := g.fallbacks.Get(g.desc.Capability)
	if !ok {
		return Envelope{
			Outcome:      OutcomeUnavailable,
			Reason:       reasonWithCause(reason, errors.Join(cause, resilience.ErrNoFallback)),
			BreakerState: state,
		}
	}

	payload, err := fn(ctx, req.Operation, req.Payload)
	if err != nil {
		g.logger.Warn("fallback failed",
			slog.String("service", g.desc.Name),
			slog.String("operation", req.Operation),
			slog.Any("error", err))
		return Envelope{
			Outcome:      OutcomeUnavailable,
			Reason:       reasonWithCause(reason, cause),
			BreakerState: state,
		}
	}

	return Envelope{
		Outcome:      OutcomeDegraded,
		Payload:      payload,
		Degraded:     true,
		Reason:       reasonWithCause(reason, cause),
		BreakerState: state,
	}
}

// finish records the health event, metrics, trace attributes, and log line
// for a completed call.
func (g *Gateway) finish(ctx context.Context, req Request, callID string, env Envelope, span trace.Span) {
	event := &HealthEvent{
		Service: g.desc.Name,
		State:   g.breaker.State(),
		Outcome: env.Outcome,
		Latency: env.Latency,
		At:      time.Now(),
	}
	if env.Outcome != OutcomeSuccess {
		event.Error = env.Reason
	}
	g.lastEvent.Store(event)

	g.metrics.RecordCall(g.desc.Name, env.Outcome.String(), env.Latency)
	if env.Degraded {
		g.metrics.RecordFallback(g.desc.Name)
	}

	span.SetAttributes(
		attribute.String("resilience.outcome", env.Outcome.String()),
		attribute.String("resilience.breaker_state", env.BreakerState.String()),
		attribute.Bool("resilience.degraded", env.Degraded),
	)

	logger := g.logger.With(
		slog.String("service", g.desc.Name),
		slog.String("operation", req.Operation),
		slog.String("call_id", callID),
		slog.String("outcome", env.Outcome.String()),
		slog.Duration("latency", env.Latency))
	switch env.Outcome {
	case OutcomeSuccess:
		logger.Debug("gateway call completed")
	case OutcomeDegraded:
		logger.InfoContext(ctx, "gateway call degraded", slog.String("reason", env.Reason))
	default:
		logger.WarnContext(ctx, "gateway call unavailable", slog.String("reason", env.Reason))
	}
}

// onStateChange is the breaker transition hook: log and count.
func (g *Gateway) onStateChange(name string, from, to breaker.State) {
	g.logger.Warn("circuit breaker state changed",
		slog.String("circuit", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	g.metrics.RecordTransition(name, from.String(), to.String())
	g.metrics.SetBreakerState(name, int(to))
}

func reasonWithCause(reason string, cause error) string {
	if cause == nil {
		return reason
	}
	return reason + ": " + cause.Error()
}
