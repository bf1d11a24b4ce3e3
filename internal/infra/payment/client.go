// Package payment is the guarded client for the payment provider's event
// verification API. No fallback is registered for this capability on
// purpose: a payment event that cannot be verified against the provider must
// surface Unavailable, never a fabricated verdict.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/gateway"
)

// Event is one webhook event received from the payment provider.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Signature string `json:"-"`
}

// Verification is the provider's verdict on an event.
type Verification struct {
	EventID string `json:"event_id"`
	Valid   bool   `json:"valid"`
}

// ProviderClient verifies webhook events against the provider API.
type ProviderClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	gw         *gateway.Gateway
}

// NewProviderClient wires the guarded verification client.
func NewProviderClient(baseURL, apiKey string, timeout time.Duration, gw *gateway.Gateway) *ProviderClient {
	return &ProviderClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		gw:         gw,
	}
}

// Verify checks one event with the provider. Verification is a read against
// the provider's event log, so retrying is safe.
func (c *ProviderClient) Verify(ctx context.Context, event Event) gateway.Envelope {
	return c.gw.Call(ctx, gateway.Request{
		Operation:  "verify-event",
		Payload:    event,
		Idempotent: true,
	}, c.doVerify)
}

func (c *ProviderClient) doVerify(ctx context.Context, payload any) (any, error) {
	event, ok := payload.(Event)
	if !ok {
		return nil, &resilience.PermanentError{Err: fmt.Errorf("payment: unexpected payload %T", payload)}
	}
	if event.ID == "" {
		return nil, &resilience.PermanentError{Err: fmt.Errorf("payment: event id is required")}
	}

	url := fmt.Sprintf("%s/v1/events/%s/verify", c.baseURL, event.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &resilience.PermanentError{Err: fmt.Errorf("payment: build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if event.Signature != "" {
		req.Header.Set("X-Event-Signature", event.Signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: verify request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &resilience.HTTPError{StatusCode: resp.StatusCode, Message: string(detail)}
	}

	var v Verification
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("payment: decode verification: %w", err)
	}
	return v, nil
}
