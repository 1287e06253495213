// Package document persists documents and their chunks. Replacing a
// document happens in a single transaction so readers never observe a
// half-ingested corpus.
package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/divekit/manualindex/internal/db/sqlite"
	"github.com/divekit/manualindex/internal/domain"
)

// Repo implements document storage over SQLite.
type Repo struct {
	db *sql.DB
}

// New creates a document repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// ReplaceResult reports the chunk id changes of a transactional replace.
type ReplaceResult struct {
	NewIDs     []int64 // ids assigned to the inserted chunks, in input order
	RemovedIDs []int64 // ids of chunks deleted by the replace
}

// Replace atomically swaps a document and its chunks. The previous
// version's chunks and embeddings are deleted and the new chunks
// inserted with fresh ids in one transaction. vectors[i] belongs to
// chunks[i]; both slices must have equal length.
func (r *Repo) Replace(ctx context.Context, doc domain.Document, chunks []domain.Chunk, vectors [][]float32) (ReplaceResult, error) {
	var res ReplaceResult
	if len(vectors) != len(chunks) {
		return res, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrInvalidArgument, len(chunks), len(vectors))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	removed, err := chunkIDsForDocument(ctx, tx, doc.Name)
	if err != nil {
		return res, err
	}

	// ON DELETE CASCADE drops the old chunks and embeddings with it.
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, doc.Name); err != nil {
		return res, fmt.Errorf("deleting previous document: %w", err)
	}

	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents
			(name, classification, compliance_standard, effective_date, mandatory_review, superseded_by, source_path, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Name, string(doc.Classification), doc.ComplianceStandard,
		nullTime(doc.EffectiveDate), nullTime(doc.MandatoryReview),
		doc.SupersededBy, doc.SourcePath, doc.IngestedAt)
	if err != nil {
		return res, fmt.Errorf("inserting document: %w", err)
	}

	ids := make([]int64, 0, len(chunks))
	for i, c := range chunks {
		pathJSON, err := marshalList(c.Path)
		if err != nil {
			return res, fmt.Errorf("marshalling chunk path: %w", err)
		}
		unitsJSON, err := marshalList(c.Units)
		if err != nil {
			return res, fmt.Errorf("marshalling chunk units: %w", err)
		}
		modesJSON, err := marshalList(c.DivingModes)
		if err != nil {
			return res, fmt.Errorf("marshalling diving modes: %w", err)
		}
		physioJSON, err := marshalList(c.PhysiologyTags)
		if err != nil {
			return res, fmt.Errorf("marshalling physiology tags: %w", err)
		}
		systemsJSON, err := marshalList(c.SystemsTags)
		if err != nil {
			return res, fmt.Errorf("marshalling systems tags: %w", err)
		}
		qualifiersJSON, err := marshalList(c.ConflictQualifiers)
		if err != nil {
			return res, fmt.Errorf("marshalling conflict qualifiers: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO chunks
				(document, text, heading, heading_num, path, level, topic_key, is_emergency, emergency_category,
				 units, diving_modes, physiology_tags, systems_tags, normative_language, conflict_qualifiers)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, doc.Name, c.Text, c.Heading, c.HeadingNum, pathJSON, c.Level,
			c.TopicKey, boolInt(c.IsEmergency), c.EmergencyCategory,
			unitsJSON, modesJSON, physioJSON, systemsJSON, c.NormativeLanguage, qualifiersJSON)
		if err != nil {
			return res, fmt.Errorf("inserting chunk: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return res, fmt.Errorf("reading chunk id: %w", err)
		}
		ids = append(ids, id)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (chunk_id, vector, dim) VALUES (?, ?, ?)
		`, id, sqlite.EncodeVector(vectors[i]), len(vectors[i])); err != nil {
			return res, fmt.Errorf("inserting embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing replace: %w", err)
	}

	res.NewIDs = ids
	res.RemovedIDs = removed
	return res, nil
}

// Delete removes a document with all its chunks and embeddings and
// returns the deleted chunk ids.
func (r *Repo) Delete(ctx context.Context, name string) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	removed, err := chunkIDsForDocument(ctx, tx, name)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading delete result: %w", err)
	}
	if affected == 0 {
		return nil, domain.ErrDocumentNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}
	return removed, nil
}

// UpdateMetadata overwrites a document's compliance metadata.
func (r *Repo) UpdateMetadata(ctx context.Context, name string, meta domain.DocumentMetadata) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET classification = ?, compliance_standard = ?, effective_date = ?, mandatory_review = ?, superseded_by = ?, source_path = ?
		WHERE name = ?
	`, string(meta.Classification), meta.ComplianceStandard,
		nullTime(meta.EffectiveDate), nullTime(meta.MandatoryReview), meta.SupersededBy, meta.SourcePath, name)
	if err != nil {
		return fmt.Errorf("updating document metadata: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading update result: %w", err)
	}
	if affected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Get retrieves a document by name.
func (r *Repo) Get(ctx context.Context, name string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, classification, compliance_standard, effective_date, mandatory_review, superseded_by, source_path, ingested_at
		FROM documents WHERE name = ?
	`, name)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// List returns all documents ordered by name.
func (r *Repo) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, classification, compliance_standard, effective_date, mandatory_review, superseded_by, source_path, ingested_at
		FROM documents ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanDocument(scan func(dest ...any) error) (*domain.Document, error) {
	var doc domain.Document
	var class string
	var effective, review sql.NullTime
	if err := scan(&doc.Name, &class, &doc.ComplianceStandard, &effective, &review,
		&doc.SupersededBy, &doc.SourcePath, &doc.IngestedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Classification = domain.Classification(class)
	if effective.Valid {
		t := effective.Time
		doc.EffectiveDate = &t
	}
	if review.Valid {
		t := review.Time
		doc.MandatoryReview = &t
	}
	return &doc, nil
}

func chunkIDsForDocument(ctx context.Context, tx *sql.Tx, name string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE document = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}
	return ids, nil
}

// marshalList marshals a slice column, storing nil slices as the JSON
// empty array so filters on '[]' hold.
func marshalList[T any](list []T) (string, error) {
	if list == nil {
		list = []T{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
