// Package ledger provides the append-only audit log.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/divekit/manualindex/internal/domain"
)

// Repo implements the audit ledger over SQLite.
type Repo struct {
	db *sql.DB
}

// New creates a ledger repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Append records one ledger entry. Entries are never updated or deleted.
func (r *Repo) Append(ctx context.Context, actor, action, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger (timestamp, actor, action, detail) VALUES (?, ?, ?, ?)
	`, time.Now().UTC(), actor, action, detail)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. An action filter
// of "" returns all actions; limit <= 0 means no limit.
func (r *Repo) List(ctx context.Context, action string, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT seq, timestamp, actor, action, detail FROM ledger`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.Actor, &e.Action, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}
	return entries, nil
}
