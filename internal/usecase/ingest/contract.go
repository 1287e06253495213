package ingest

import (
	"context"

	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/repository/document"
)

// DocumentStore is the consumer interface for document persistence (ISP).
type DocumentStore interface {
	Replace(ctx context.Context, doc domain.Document, chunks []domain.Chunk, vectors [][]float32) (document.ReplaceResult, error)
	Delete(ctx context.Context, name string) ([]int64, error)
	UpdateMetadata(ctx context.Context, name string, meta domain.DocumentMetadata) error
	Get(ctx context.Context, name string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
}

// ChunkStore reads stored chunks.
type ChunkStore interface {
	Get(ctx context.Context, id int64) (*domain.Chunk, error)
	ListByDocument(ctx context.Context, document string) ([]domain.Chunk, error)
}

// TopicStore registers topics on first sight.
type TopicStore interface {
	Ensure(ctx context.Context, key, description string) (bool, error)
	List(ctx context.Context) ([]domain.Topic, error)
}

// ConflictStore cleans up conflicts whose chunks have disappeared.
type ConflictStore interface {
	DeleteForChunks(ctx context.Context, ids []int64) error
}

// Ledger appends audit entries.
type Ledger interface {
	Append(ctx context.Context, actor, action, detail string) error
}

// Index is the in-memory vector index kept in step with the store.
type Index interface {
	Add(chunkID int64, document string, vec []float32) error
	Remove(ids []int64)
	Dim() int
	Size() int
}
