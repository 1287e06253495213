// Package conflict persists detected conflicts and their review state.
package conflict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/divekit/manualindex/internal/domain"
)

// Repo implements conflict storage over SQLite.
type Repo struct {
	db *sql.DB
}

// New creates a conflict repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const conflictColumns = `key, chunk_a, chunk_b, topic_key, kind, detail, context_a, context_b, status, detected_at, resolved_by, resolved_at, notes`

// Upsert records a conflict. Re-detecting an existing key is a no-op
// so review state survives repeated scans. Returns true when the
// conflict was newly created.
func (r *Repo) Upsert(ctx context.Context, c domain.Conflict) (bool, error) {
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO conflicts
			(key, chunk_a, chunk_b, topic_key, kind, detail, context_a, context_b, status, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, c.Key, c.ChunkA, c.ChunkB, c.TopicKey, string(c.Kind), c.Detail,
		c.ContextA, c.ContextB, string(domain.StatusPending), c.DetectedAt)
	if err != nil {
		return false, fmt.Errorf("upserting conflict: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading upsert result: %w", err)
	}
	return affected > 0, nil
}

// Get retrieves a conflict by key.
func (r *Repo) Get(ctx context.Context, key string) (*domain.Conflict, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE key = ?`, key)

	c, err := scanConflict(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns conflicts, optionally filtered by status and topic key,
// newest first.
func (r *Repo) List(ctx context.Context, status domain.ConflictStatus, topicKey string) ([]domain.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts`
	var clauses []string
	var args []any
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(status))
	}
	if topicKey != "" {
		clauses = append(clauses, "topic_key = ?")
		args = append(args, topicKey)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY detected_at DESC, key"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conflicts: %w", err)
	}
	return conflicts, nil
}

// Resolve transitions a pending conflict to a terminal status. A
// conflict already in a terminal status cannot be reopened or moved.
func (r *Repo) Resolve(ctx context.Context, key string, status domain.ConflictStatus, resolvedBy, notes string) error {
	existing, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if existing.Status != domain.StatusPending {
		return fmt.Errorf("conflict %s is %s: %w", key, existing.Status, domain.ErrConflictClosed)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE conflicts
		SET status = ?, resolved_by = ?, resolved_at = ?, notes = ?
		WHERE key = ? AND status = ?
	`, string(status), resolvedBy, time.Now().UTC(), notes, key, string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}
	return nil
}

// DeleteForChunks removes conflicts referencing any of the given chunk
// ids. Called when a document version disappears so stale conflicts do
// not outlive the text they point into.
func (r *Repo) DeleteForChunks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM conflicts WHERE chunk_a = ? OR chunk_b = ?`, id, id); err != nil {
			return fmt.Errorf("deleting conflicts for chunk %d: %w", id, err)
		}
	}
	return nil
}

func scanConflict(scan func(dest ...any) error) (*domain.Conflict, error) {
	var c domain.Conflict
	var kind, status string
	var resolvedAt sql.NullTime
	if err := scan(&c.Key, &c.ChunkA, &c.ChunkB, &c.TopicKey, &kind, &c.Detail,
		&c.ContextA, &c.ContextB, &status, &c.DetectedAt, &c.ResolvedBy, &resolvedAt, &c.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning conflict: %w", err)
	}
	c.Kind = domain.ConflictKind(kind)
	c.Status = domain.ConflictStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return &c, nil
}
