// Package topic persists the topic registry. Topics are never deleted;
// the registry only grows as new headings appear.
package topic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/divekit/manualindex/internal/domain"
)

// Repo implements topic storage over SQLite.
type Repo struct {
	db *sql.DB
}

// New creates a topic repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Ensure registers a topic if it does not exist yet and reports
// whether the call created it. An existing topic keeps its original
// first_seen and description.
func (r *Repo) Ensure(ctx context.Context, key, description string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO topics (key, description, first_seen) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, description, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("ensuring topic: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading ensure result: %w", err)
	}
	return affected > 0, nil
}

// Get retrieves a topic by key.
func (r *Repo) Get(ctx context.Context, key string) (*domain.Topic, error) {
	row := r.db.QueryRowContext(ctx, `SELECT key, description, first_seen FROM topics WHERE key = ?`, key)

	var t domain.Topic
	if err := row.Scan(&t.Key, &t.Description, &t.FirstSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning topic: %w", err)
	}
	return &t, nil
}

// List returns all topics ordered by key.
func (r *Repo) List(ctx context.Context) ([]domain.Topic, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, description, first_seen FROM topics ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(&t.Key, &t.Description, &t.FirstSeen); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}
	return topics, nil
}
