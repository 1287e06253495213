package conflict

import (
	"context"

	"github.com/divekit/manualindex/internal/domain"
)

// ChunkStore lists unit-bearing chunks for scanning.
type ChunkStore interface {
	ListUnitBearing(ctx context.Context, topicKey string) ([]domain.Chunk, error)
}

// DocumentStore verifies chunk ownership during a scan.
type DocumentStore interface {
	Get(ctx context.Context, name string) (*domain.Document, error)
}

// Store persists conflicts (consumer interface, ISP).
type Store interface {
	Upsert(ctx context.Context, c domain.Conflict) (bool, error)
	Get(ctx context.Context, key string) (*domain.Conflict, error)
	List(ctx context.Context, status domain.ConflictStatus, topicKey string) ([]domain.Conflict, error)
	Resolve(ctx context.Context, key string, status domain.ConflictStatus, resolvedBy, notes string) error
}

// Ledger appends audit entries.
type Ledger interface {
	Append(ctx context.Context, actor, action, detail string) error
}
