// Package search answers similarity queries over the indexed corpus.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/metrics"
	"github.com/divekit/manualindex/internal/repository/vector"
)

// Index is the consumer interface over the vector index (ISP).
type Index interface {
	Search(query []float32, k int, documents map[string]bool) ([]domain.ScoredChunk, error)
}

// ChunkStore resolves scored ids to full chunks.
type ChunkStore interface {
	Get(ctx context.Context, id int64) (*domain.Chunk, error)
}

// Service retrieves the most similar chunks for a query.
type Service struct {
	index    Index
	chunks   ChunkStore
	embedder domain.Embedder
	logger   *zap.Logger
}

// New creates the search service.
func New(index Index, chunks ChunkStore, embedder domain.Embedder, logger *zap.Logger) *Service {
	return &Service{index: index, chunks: chunks, embedder: embedder, logger: logger}
}

// Hit is one retrieval result with its chunk resolved.
type Hit struct {
	Chunk domain.Chunk
	Score float32
}

// Retrieve runs a raw-vector query. K must be positive; fewer than K
// results come back when the corpus is smaller. An empty corpus yields
// an empty result, not an error.
func (s *Service) Retrieve(ctx context.Context, query []float32, k int, documents []string) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector is empty: %w", domain.ErrInvalidArgument)
	}

	var filter map[string]bool
	if len(documents) > 0 {
		filter = make(map[string]bool, len(documents))
		for _, d := range documents {
			filter[d] = true
		}
	}

	scored, err := s.index.Search(vector.Normalize(query), k, filter)
	if err != nil {
		return nil, err
	}
	metrics.SearchRequestsTotal.Inc()

	hits := make([]Hit, 0, len(scored))
	for _, sc := range scored {
		c, err := s.chunks.Get(ctx, sc.ChunkID)
		if err != nil {
			return nil, fmt.Errorf("resolving chunk %d: %w", sc.ChunkID, err)
		}
		hits = append(hits, Hit{Chunk: *c, Score: sc.Score})
	}
	return hits, nil
}

// RetrieveText embeds the query text and searches with the result.
func (s *Service) RetrieveText(ctx context.Context, query string, k int, documents []string) ([]Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("query text is empty: %w", domain.ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d: %w", len(vectors), domain.ErrProviderError)
	}
	return s.Retrieve(ctx, vectors[0], k, documents)
}
