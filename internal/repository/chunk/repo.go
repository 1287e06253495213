// Package chunk provides read access to stored chunks.
package chunk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/divekit/manualindex/internal/domain"
)

// Repo implements chunk queries over SQLite.
type Repo struct {
	db *sql.DB
}

// New creates a chunk repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const chunkColumns = `id, document, text, heading, heading_num, path, level, topic_key, is_emergency, emergency_category,
	units, diving_modes, physiology_tags, systems_tags, normative_language, conflict_qualifiers`

// Get retrieves a chunk by id.
func (r *Repo) Get(ctx context.Context, id int64) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)

	c, err := scanChunk(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListByDocument returns all chunks of one document in id order.
func (r *Repo) ListByDocument(ctx context.Context, document string) ([]domain.Chunk, error) {
	return r.list(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document = ? ORDER BY id`, document)
}

// ListByTopic returns all chunks carrying the given topic key in id order.
func (r *Repo) ListByTopic(ctx context.Context, topicKey string) ([]domain.Chunk, error) {
	return r.list(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE topic_key = ? ORDER BY id`, topicKey)
}

// ListUnitBearing returns chunks that mention at least one unit value,
// excluding unclassified topics. An empty topicKey means all topics.
func (r *Repo) ListUnitBearing(ctx context.Context, topicKey string) ([]domain.Chunk, error) {
	if topicKey != "" {
		return r.list(ctx, `
			SELECT `+chunkColumns+` FROM chunks
			WHERE topic_key = ? AND units NOT IN ('[]', 'null') ORDER BY id
		`, topicKey)
	}
	return r.list(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE topic_key != ? AND units NOT IN ('[]', 'null') ORDER BY id
	`, "unclassified")
}

func (r *Repo) list(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(scan func(dest ...any) error) (*domain.Chunk, error) {
	var c domain.Chunk
	var pathJSON, unitsJSON, modesJSON, physioJSON, systemsJSON, qualifiersJSON string
	var isEmergency int
	if err := scan(&c.ID, &c.Document, &c.Text, &c.Heading, &c.HeadingNum,
		&pathJSON, &c.Level, &c.TopicKey, &isEmergency, &c.EmergencyCategory,
		&unitsJSON, &modesJSON, &physioJSON, &systemsJSON, &c.NormativeLanguage, &qualifiersJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	jsonColumns := []struct {
		name string
		raw  string
		dest any
	}{
		{"path", pathJSON, &c.Path},
		{"units", unitsJSON, &c.Units},
		{"diving_modes", modesJSON, &c.DivingModes},
		{"physiology_tags", physioJSON, &c.PhysiologyTags},
		{"systems_tags", systemsJSON, &c.SystemsTags},
		{"conflict_qualifiers", qualifiersJSON, &c.ConflictQualifiers},
	}
	for _, col := range jsonColumns {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("unmarshalling chunk %s: %w", col.name, err)
		}
	}
	c.IsEmergency = isEmergency != 0
	return &c, nil
}
