// Package vector maintains the in-memory similarity index. Vectors are
// persisted alongside chunks in SQLite and reloaded into a flat index
// on startup; search is an exact inner-product scan over unit-length
// vectors, which equals cosine similarity.
package vector

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/divekit/manualindex/internal/db/sqlite"
	"github.com/divekit/manualindex/internal/domain"
)

type entry struct {
	chunkID  int64
	document string
	vec      []float32
}

// Index is a flat in-memory cosine similarity index.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
	byID    map[int64]int // chunk id -> position in entries
}

// NewIndex creates an empty index. The dimensionality is fixed by the
// first vector added or loaded.
func NewIndex() *Index {
	return &Index{byID: make(map[int64]int)}
}

// Load rebuilds the index from the embeddings table.
func (ix *Index) Load(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
		SELECT e.chunk_id, c.document, e.vector, e.dim
		FROM embeddings e JOIN chunks c ON c.id = e.chunk_id
		ORDER BY e.chunk_id
	`)
	if err != nil {
		return fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	ix.byID = make(map[int64]int)
	ix.dim = 0

	for rows.Next() {
		var id int64
		var document string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &document, &blob, &dim); err != nil {
			return fmt.Errorf("scanning embedding: %w", err)
		}
		vec, err := sqlite.DecodeVector(blob)
		if err != nil {
			return fmt.Errorf("decoding embedding %d: %w", id, err)
		}
		if len(vec) != dim {
			return fmt.Errorf("embedding %d: stored dim %d but vector has %d components", id, dim, len(vec))
		}
		if err := ix.addLocked(id, document, vec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating embeddings: %w", err)
	}
	return nil
}

// Add inserts or replaces a vector. The vector must already be
// unit-normalized and match the index dimensionality.
func (ix *Index) Add(chunkID int64, document string, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.addLocked(chunkID, document, vec)
}

func (ix *Index) addLocked(chunkID int64, document string, vec []float32) error {
	if ix.dim == 0 {
		ix.dim = len(vec)
	} else if len(vec) != ix.dim {
		return fmt.Errorf("vector has %d components, index expects %d: %w", len(vec), ix.dim, domain.ErrDimensionMismatch)
	}
	if pos, ok := ix.byID[chunkID]; ok {
		ix.entries[pos] = entry{chunkID: chunkID, document: document, vec: vec}
		return nil
	}
	ix.byID[chunkID] = len(ix.entries)
	ix.entries = append(ix.entries, entry{chunkID: chunkID, document: document, vec: vec})
	return nil
}

// Remove drops vectors by chunk id. Unknown ids are ignored.
func (ix *Index) Remove(ids []int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		pos, ok := ix.byID[id]
		if !ok {
			continue
		}
		last := len(ix.entries) - 1
		if pos != last {
			ix.entries[pos] = ix.entries[last]
			ix.byID[ix.entries[pos].chunkID] = pos
		}
		ix.entries = ix.entries[:last]
		delete(ix.byID, id)
	}
}

// Search returns up to k chunks most similar to the query, scores
// strictly descending with ascending chunk id breaking ties. A non-nil
// documents set restricts results to chunks of those documents. An
// empty index yields an empty result.
func (ix *Index) Search(query []float32, k int, documents map[string]bool) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return []domain.ScoredChunk{}, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query has %d components, index expects %d: %w", len(query), ix.dim, domain.ErrDimensionMismatch)
	}

	scored := make([]domain.ScoredChunk, 0, len(ix.entries))
	for _, e := range ix.entries {
		if documents != nil && !documents[e.document] {
			continue
		}
		scored = append(scored, domain.ScoredChunk{ChunkID: e.chunkID, Score: dot(query, e.vec)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Dim reports the index dimensionality; 0 while the index is empty and
// no vector has fixed it yet.
func (ix *Index) Dim() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Size reports the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Normalize scales a vector to unit length. A zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
