package domain

import "time"

// Ledger action kinds. The ledger is the sole source of truth for
// "what happened when".
const (
	ActionIngest            = "ingest"
	ActionIngestAborted     = "ingest_aborted"
	ActionDeleteDocument    = "delete_document"
	ActionUpdateMetadata    = "update_metadata"
	ActionTopicCreated      = "topic_created"
	ActionConflictDetected  = "conflict_detected"
	ActionConflictResolved  = "conflict_resolved"
	ActionChunkSkipped      = "chunk_skipped"
	ActionEmbeddingFailure  = "embedding_failure"
)

// LedgerEntry is one append-only audit record. Seq is assigned by the
// store and increases monotonically.
type LedgerEntry struct {
	Seq       int64
	Timestamp time.Time
	Actor     string
	Action    string
	Detail    string
}
