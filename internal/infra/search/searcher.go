// Package search is the guarded client for the grant vector index: it embeds
// the query through OpenAI and runs a pgvector similarity query against the
// primary store. Degraded mode serves the last good result set for the same
// query, or an explicitly empty set, never a fabricated one.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	openai "github.com/sashabaranov/go-openai"

	"grantpath/internal/infra/db"
	"grantpath/internal/resilience"
	"grantpath/internal/resilience/gateway"
)

// GrantHit is one similarity match.
type GrantHit struct {
	GrantID    int64   `json:"grant_id"`
	Title      string  `json:"title"`
	Similarity float32 `json:"similarity"`
}

// Query is the payload of one guarded search call.
type Query struct {
	Text  string
	Limit int
}

// Searcher performs similarity search through its gateway.
type Searcher struct {
	store    *db.Manager
	embedder *openai.Client
	gw       *gateway.Gateway
	cache    *ResultCache
	model    openai.EmbeddingModel
}

// NewSearcher wires the guarded search client. The cache must be the same
// instance whose Fallback is registered for the vector-search capability.
func NewSearcher(store *db.Manager, embedder *openai.Client, gw *gateway.Gateway, cache *ResultCache) *Searcher {
	return &Searcher{
		store:    store,
		embedder: embedder,
		gw:       gw,
		cache:    cache,
		model:    openai.SmallEmbedding3,
	}
}

// Search runs one guarded similarity search. The envelope's payload is
// []GrantHit on success and on cache-served degraded responses.
func (s *Searcher) Search(ctx context.Context, query Query) gateway.Envelope {
	return s.gw.Call(ctx, gateway.Request{
		Operation:  "similarity-search",
		Payload:    query,
		Idempotent: true,
	}, s.doSearch)
}

// doSearch is one attempt: embed, then query by cosine distance.
func (s *Searcher) doSearch(ctx context.Context, payload any) (any, error) {
	query, ok := payload.(Query)
	if !ok {
		return nil, &resilience.PermanentError{Err: fmt.Errorf("search: unexpected payload %T", payload)}
	}
	if strings.TrimSpace(query.Text) == "" {
		return nil, &resilience.PermanentError{Err: errors.New("search: empty query")}
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	embedding, err := s.embed(ctx, query.Text)
	if err != nil {
		return nil, err
	}

	hits, err := s.querySimilar(ctx, embedding, query.Limit)
	if err != nil {
		return nil, err
	}

	s.cache.Put(query.Text, hits)
	return hits, nil
}

// embed turns the query text into a vector, translating provider API errors
// into the classifier's HTTP error shape.
func (s *Searcher) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: s.model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &resilience.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("search: embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}

// querySimilar runs the cosine-distance query over grant embeddings using a
// connection checked out through the resilience manager.
func (s *Searcher) querySimilar(ctx context.Context, embedding []float32, limit int) ([]GrantHit, error) {
	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	const query = `
SELECT g.id, g.title, 1 - (ge.embedding <=> $1) AS similarity
FROM grant_embeddings ge
JOIN grants g ON g.id = ge.grant_id
ORDER BY ge.embedding <=> $1
LIMIT $2`

	rows, err := conn.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search: similarity query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []GrantHit
	for rows.Next() {
		var h GrantHit
		if err := rows.Scan(&h.GrantID, &h.Title, &h.Similarity); err != nil {
			return nil, fmt.Errorf("search: scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: iterate hits: %w", err)
	}
	if hits == nil {
		hits = []GrantHit{}
	}
	return hits, nil
}
