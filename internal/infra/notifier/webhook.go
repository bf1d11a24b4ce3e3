// Package notifier sends user-facing notifications through an outbound
// webhook. The guarded send path runs through a gateway; degraded mode
// defers messages onto an in-memory retry queue drained by a rate-limited
// background worker instead of dropping them.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/gateway"
)

// Config contains webhook notification settings.
type Config struct {
	// Enabled turns outbound notifications on.
	Enabled bool

	// WebhookURL is the receiver endpoint, including any auth token.
	WebhookURL string

	// Timeout bounds one webhook request.
	Timeout time.Duration
}

// Message is one notification.
type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers one message. Implemented by the webhook notifier and, in
// tests, by fakes.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Webhook posts messages as JSON to the configured URL, one request per
// second with a burst of one, matching the receiver's documented limit.
type Webhook struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewWebhook creates the webhook sender.
func NewWebhook(cfg Config, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(1.0, 1),
		logger:      logger,
	}
}

// Send delivers one message, honoring the rate limit.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !w.cfg.Enabled {
		return errors.New("notifier: webhook disabled")
	}
	if err := w.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("notifier: rate limit wait: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return &resilience.PermanentError{Err: fmt.Errorf("notifier: encode message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &resilience.PermanentError{Err: fmt.Errorf("notifier: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &resilience.HTTPError{StatusCode: resp.StatusCode, Message: string(detail)}
	}

	w.logger.Debug("notification delivered",
		slog.String("request_id", requestID),
		slog.String("subject", msg.Subject))
	return nil
}

// Service is the guarded notification surface collaborators hold.
type Service struct {
	sender Sender
	gw     *gateway.Gateway
}

// NewService wires the sender behind its gateway.
func NewService(sender Sender, gw *gateway.Gateway) *Service {
	return &Service{sender: sender, gw: gw}
}

// Notify sends one message through the resilience stack. A degraded envelope
// means the message was deferred to the retry queue, not delivered.
func (s *Service) Notify(ctx context.Context, msg Message) gateway.Envelope {
	return s.gw.Call(ctx, gateway.Request{
		Operation: "send-notification",
		Payload:   msg,
		// Webhook receivers rarely deduplicate; a replayed send shows the
		// user the same notification twice.
		Idempotent: false,
	}, func(ctx context.Context, payload any) (any, error) {
		m, ok := payload.(Message)
		if !ok {
			return nil, &resilience.PermanentError{Err: fmt.Errorf("notifier: unexpected payload %T", payload)}
		}
		if err := s.sender.Send(ctx, m); err != nil {
			return nil, err
		}
		return DeliveryReceipt{Delivered: true}, nil
	})
}

// DeliveryReceipt reports what happened to a message.
type DeliveryReceipt struct {
	Delivered bool `json:"delivered"`
	Deferred  bool `json:"deferred"`
}
