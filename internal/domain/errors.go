package domain

import "errors"

var (
	// ErrInvalidArgument signals a malformed input (bad K, empty document name, ...).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDimensionMismatch signals a vector dimension mismatch against the store.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrProviderError signals an embedding provider failure.
	ErrProviderError = errors.New("embedding provider error")
	// ErrConsistency signals a broken cross-entity reference found at scan time.
	ErrConsistency = errors.New("consistency error")
	// ErrStorage signals a persistence layer failure.
	ErrStorage = errors.New("storage error")
	// ErrConflictClosed signals a status transition on a non-pending conflict.
	ErrConflictClosed = errors.New("conflict already closed")
	// ErrIngestInProgress signals a concurrent ingest of the same document name.
	ErrIngestInProgress = errors.New("ingest already in progress")
)
