package completion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateFallback_UsesGrantTitle(t *testing.T) {
	fn := TemplateFallback()

	out, err := fn(context.Background(), "generate-draft", DraftRequest{
		GrantTitle:       "Community Solar Fund",
		ApplicantSummary: "A housing co-op installing rooftop panels",
	})
	require.NoError(t, err)

	draft, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, draft, `"Community Solar Fund"`)
	assert.Contains(t, draft, "temporarily unavailable")
	assert.True(t, strings.HasPrefix(draft, "# Draft application"))
}

func TestTemplateFallback_GenericWithoutTitle(t *testing.T) {
	fn := TemplateFallback()

	out, err := fn(context.Background(), "generate-draft", nil)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "this grant")
}

func TestTemplateFallback_Deterministic(t *testing.T) {
	fn := TemplateFallback()
	req := DraftRequest{GrantTitle: "Community Solar Fund"}

	a, err := fn(context.Background(), "generate-draft", req)
	require.NoError(t, err)
	b, err := fn(context.Background(), "generate-draft", req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
