package completion

import (
	"context"
	"fmt"

	"grantpath/internal/resilience/fallback"
)

// TemplateFallback is the completion degraded substitute: a deterministic
// skeleton the applicant can fill in by hand. It carries no model output and
// is safe to serve to any number of degraded callers at once.
func TemplateFallback() fallback.Func {
	return func(_ context.Context, _ string, payload any) (any, error) {
		title := "this grant"
		if req, ok := payload.(DraftRequest); ok && req.GrantTitle != "" {
			title = fmt.Sprintf("%q", req.GrantTitle)
		}
		return fmt.Sprintf(
			"# Draft application for %s\n\n"+
				"The drafting assistant is temporarily unavailable; this outline is a starting point.\n\n"+
				"## Project summary\n\n(Describe the project in two or three sentences.)\n\n"+
				"## Goals\n\n(List the measurable goals this funding enables.)\n\n"+
				"## Expected impact\n\n(Explain who benefits and how you will know.)\n",
			title), nil
	}
}
