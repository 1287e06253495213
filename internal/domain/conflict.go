package domain

import "time"

// ConflictKind distinguishes same-unit disagreements from ones only
// visible after unit conversion.
type ConflictKind string

const (
	ConflictNumeric      ConflictKind = "numeric"
	ConflictUnitMismatch ConflictKind = "unit-mismatch"
)

// ConflictStatus tracks the human resolution workflow. The detector
// only ever creates pending records.
type ConflictStatus string

const (
	StatusPending   ConflictStatus = "pending"
	StatusResolved  ConflictStatus = "resolved"
	StatusDeferred  ConflictStatus = "deferred"
	StatusDismissed ConflictStatus = "dismissed"
)

// TerminalStatuses are the states a pending conflict may move to.
var TerminalStatuses = []ConflictStatus{StatusResolved, StatusDeferred, StatusDismissed}

// ParseTerminalStatus validates a resolution status string.
func ParseTerminalStatus(s string) (ConflictStatus, bool) {
	for _, st := range TerminalStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Conflict is a detected disagreement between two chunks' numeric
// claims under the same topic key. ChunkA < ChunkB always.
type Conflict struct {
	Key        string
	ChunkA     int64
	ChunkB     int64
	TopicKey   string
	Kind       ConflictKind
	Detail     string
	ContextA   string
	ContextB   string
	Status     ConflictStatus
	DetectedAt time.Time
	ResolvedBy string
	ResolvedAt *time.Time
	Notes      string
}
