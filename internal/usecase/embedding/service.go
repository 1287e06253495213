// Package embedding wraps the raw provider with batching and retry
// behavior so callers hand over any number of texts and get back one
// vector each, or an error.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/metrics"
)

const (
	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 16
	// DefaultRetries is the number of attempts per batch.
	DefaultRetries = 3
	// DefaultBackoff is the base delay between attempts; attempt n waits n times this.
	DefaultBackoff = 500 * time.Millisecond
)

// Config holds batching and retry settings.
type Config struct {
	BatchSize int
	Retries   int
	Backoff   time.Duration
	Provider  string
	Model     string
	Logger    *zap.Logger
}

// Service is a batching, retrying domain.Embedder.
type Service struct {
	provider  domain.Embedder
	batchSize int
	retries   int
	backoff   time.Duration
	name      string
	model     string
	logger    *zap.Logger
}

// New creates the embedding service around a provider.
func New(provider domain.Embedder, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		provider:  provider,
		batchSize: cfg.BatchSize,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
		name:      cfg.Provider,
		model:     cfg.Model,
		logger:    cfg.Logger,
	}
}

// Embed vectorizes texts in fixed-size batches. A batch that keeps
// failing after all attempts fails the whole call; no partial results
// are ever returned. Context cancellation is honored between batches
// and between attempts.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("embedding cancelled: %w", err)
		}

		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if attempt > 1 {
			metrics.EmbeddingRetriesTotal.WithLabelValues(s.name, s.model).Inc()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embedding cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt-1) * s.backoff):
			}
		}

		vectors, err := s.provider.Embed(ctx, batch)
		if err == nil {
			if len(vectors) != len(batch) {
				return nil, fmt.Errorf("provider returned %d vectors for %d texts: %w",
					len(vectors), len(batch), domain.ErrProviderError)
			}
			return vectors, nil
		}
		lastErr = err
		s.logger.Warn("embedding attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
	}
	return nil, fmt.Errorf("after %d attempts: %w", s.retries, lastErr)
}
