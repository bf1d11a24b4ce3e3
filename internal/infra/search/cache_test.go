package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultCache_NormalizesQueries(t *testing.T) {
	c := NewResultCache(time.Minute)
	hits := []GrantHit{{GrantID: 1, Title: "Solar installation grant", Similarity: 0.92}}

	c.Put("Solar  Panels", hits)

	got, ok := c.Get("solar panels")
	require.True(t, ok, "case and whitespace variants share one entry")
	assert.Equal(t, hits, got)

	_, ok = c.Get("wind turbines")
	assert.False(t, ok)
}

func TestResultCache_ExpiresAfterTTL(t *testing.T) {
	c := NewResultCache(time.Minute)
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }

	c.Put("solar", []GrantHit{{GrantID: 1}})

	current = current.Add(2 * time.Minute)
	_, ok := c.Get("solar")
	assert.False(t, ok)
}

func TestResultCache_Fallback(t *testing.T) {
	c := NewResultCache(time.Minute)
	fn := c.Fallback()

	// Cold cache: an explicitly empty hit set, never an error. Degraded
	// search answers "nothing right now", it does not fail the request.
	out, err := fn(context.Background(), "similarity-search", Query{Text: "solar"})
	require.NoError(t, err)
	hits, ok := out.([]GrantHit)
	require.True(t, ok)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)

	cached := []GrantHit{{GrantID: 1, Title: "Solar installation grant", Similarity: 0.92}}
	c.Put("solar", cached)
	out, err = fn(context.Background(), "similarity-search", Query{Text: "Solar"})
	require.NoError(t, err)
	assert.Equal(t, cached, out)

	// Unexpected payload shapes still degrade to the empty set.
	out, err = fn(context.Background(), "similarity-search", "raw string")
	require.NoError(t, err)
	assert.Empty(t, out)
}
