package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"grantpath/internal/infra/completion"
	"grantpath/internal/infra/notifier"
	"grantpath/internal/infra/payment"
	"grantpath/internal/infra/search"
	"grantpath/internal/observability/logging"
	"grantpath/internal/resilience/gateway"
)

// Routes exposes the guarded capability clients over HTTP. Each handler is a
// thin shim: decode the request, call through the gateway-backed client, map
// the envelope. Business validation and authorization live in the API layer
// above this one.
type Routes struct {
	Searcher *search.Searcher
	Drafts   *completion.DraftWriter
	Notify   *notifier.Service
	Payments *payment.ProviderClient
	Logger   *slog.Logger
}

// Register attaches the capability routes to the mux.
func (rt *Routes) Register(mux *http.ServeMux) {
	if rt.Searcher != nil {
		mux.HandleFunc("POST /v1/grants/search", rt.withRequestLogger(rt.handleSearch))
	}
	if rt.Drafts != nil {
		mux.HandleFunc("POST /v1/applications/draft", rt.withRequestLogger(rt.handleDraft))
	}
	if rt.Notify != nil {
		mux.HandleFunc("POST /v1/notifications", rt.withRequestLogger(rt.handleNotify))
	}
	if rt.Payments != nil {
		mux.HandleFunc("POST /v1/payments/webhook", rt.withRequestLogger(rt.handlePaymentWebhook))
	}
}

// withRequestLogger attaches a path-scoped logger to the request context so
// log lines emitted further down carry the route.
func (rt *Routes) withRequestLogger(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.WithFields(rt.logger(), map[string]any{"path": r.URL.Path})
		next(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
	}
}

// envelopeResponse is the wire form of a gateway envelope. The degraded flag
// and reason are always forwarded so callers can warn end users that results
// may be incomplete; the resilience layer never swallows that signal.
type envelopeResponse struct {
	Outcome   string `json:"outcome"`
	Payload   any    `json:"payload,omitempty"`
	Degraded  bool   `json:"degraded"`
	Reason    string `json:"reason,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// writeEnvelope maps a gateway outcome to HTTP: success and degraded are
// both 200 (degraded is still an answer), unavailable is 503.
func (rt *Routes) writeEnvelope(w http.ResponseWriter, r *http.Request, env gateway.Envelope) {
	statusCode := http.StatusOK
	if env.Outcome == gateway.OutcomeUnavailable {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(envelopeResponse{
		Outcome:   env.Outcome.String(),
		Payload:   env.Payload,
		Degraded:  env.Degraded,
		Reason:    env.Reason,
		LatencyMS: env.Latency.Milliseconds(),
	}); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode envelope", slog.Any("error", err))
	}
}

func (rt *Routes) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rt.writeEnvelope(w, r, rt.Searcher.Search(r.Context(), search.Query{Text: req.Query, Limit: req.Limit}))
}

func (rt *Routes) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GrantTitle       string `json:"grant_title"`
		ApplicantSummary string `json:"applicant_summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rt.writeEnvelope(w, r, rt.Drafts.Draft(r.Context(), completion.DraftRequest{
		GrantTitle:       req.GrantTitle,
		ApplicantSummary: req.ApplicantSummary,
	}))
}

func (rt *Routes) handleNotify(w http.ResponseWriter, r *http.Request) {
	var msg notifier.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rt.writeEnvelope(w, r, rt.Notify.Notify(r.Context(), msg))
}

func (rt *Routes) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var event payment.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	event.Signature = r.Header.Get("X-Event-Signature")
	rt.writeEnvelope(w, r, rt.Payments.Verify(r.Context(), event))
}

func (rt *Routes) logger() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}
