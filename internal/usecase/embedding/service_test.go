package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/divekit/manualindex/internal/domain"
)

// mockProvider records batch sizes and fails a configurable number of times.
type mockProvider struct {
	batches   [][]string
	failTimes int
	calls     int
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.batches = append(m.batches, texts)
	if m.calls <= m.failTimes {
		return nil, domain.ErrProviderError
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func TestEmbed_SplitsIntoBatches(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider, Config{BatchSize: 2, Backoff: time.Millisecond})

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := svc.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vectors))
	}
	if len(provider.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(provider.batches))
	}
	if len(provider.batches[0]) != 2 || len(provider.batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %v", provider.batches)
	}
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	provider := &mockProvider{failTimes: 2}
	svc := New(provider, Config{BatchSize: 4, Retries: 3, Backoff: time.Millisecond})

	vectors, err := svc.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.calls)
	}
}

func TestEmbed_ExhaustedRetries(t *testing.T) {
	provider := &mockProvider{failTimes: 10}
	svc := New(provider, Config{BatchSize: 4, Retries: 3, Backoff: time.Millisecond})

	_, err := svc.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", provider.calls)
	}
}

func TestEmbed_ContextCancelledBetweenBatches(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider, Config{BatchSize: 1, Backoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Embed(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider, Config{})

	vectors, err := svc.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
	if provider.calls != 0 {
		t.Errorf("expected no provider calls, got %d", provider.calls)
	}
}
