// Package completion is the guarded client for the application-draft model.
// It adapts Anthropic's Messages API behind a gateway; degraded mode returns
// a deterministic template so the product flow can finish without the model.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/gateway"
	"grantpath/pkg/config"
)

// Config holds the draft-writer model settings.
type Config struct {
	Model     string
	MaxTokens int
}

// LoadConfig reads model settings from the environment.
func LoadConfig() Config {
	return Config{
		Model:     config.GetEnvString("DRAFT_MODEL", string(anthropic.ModelClaudeSonnet4_5_20250929)),
		MaxTokens: config.GetEnvInt("DRAFT_MAX_TOKENS", 2048),
	}
}

// DraftRequest is the payload of one guarded draft call.
type DraftRequest struct {
	// GrantTitle names the grant the applicant is drafting for.
	GrantTitle string

	// ApplicantSummary is the applicant-provided background paragraph.
	ApplicantSummary string
}

// DraftWriter generates grant-application drafts through its gateway.
type DraftWriter struct {
	client anthropic.Client
	gw     *gateway.Gateway
	cfg    Config
}

// NewDraftWriter wires the guarded completion client.
func NewDraftWriter(apiKey string, gw *gateway.Gateway) *DraftWriter {
	return &DraftWriter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		gw:     gw,
		cfg:    LoadConfig(),
	}
}

// Draft runs one guarded draft generation. The envelope's payload is the
// draft text; callers receiving a degraded envelope should tell the user the
// draft is a placeholder.
func (w *DraftWriter) Draft(ctx context.Context, req DraftRequest) gateway.Envelope {
	return w.gw.Call(ctx, gateway.Request{
		Operation:  "generate-draft",
		Payload:    req,
		Idempotent: true,
	}, w.doDraft)
}

// doDraft is one attempt against the Messages API.
func (w *DraftWriter) doDraft(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(DraftRequest)
	if !ok {
		return nil, &resilience.PermanentError{Err: fmt.Errorf("completion: unexpected payload %T", payload)}
	}
	if strings.TrimSpace(req.GrantTitle) == "" {
		return nil, &resilience.PermanentError{Err: errors.New("completion: grant title is required")}
	}

	message, err := w.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(w.cfg.Model),
		MaxTokens: int64(w.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(buildPrompt(req)),
			),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &resilience.HTTPError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return nil, fmt.Errorf("completion: messages call: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(textBlock.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, errors.New("completion: response contains no text")
	}
	return sb.String(), nil
}

func buildPrompt(req DraftRequest) string {
	return fmt.Sprintf(
		"Write a concise first draft of a grant application for the grant %q.\n"+
			"Applicant background:\n%s\n"+
			"Structure the draft with a project summary, goals, and expected impact.",
		req.GrantTitle, req.ApplicantSummary)
}
