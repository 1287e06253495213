package domain

import "time"

// UnitMention is one numeric value with a recognized unit, extracted
// from chunk text together with a window of surrounding text.
type UnitMention struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Context string  `json:"context"`
}

// Qualifier marks conflict-sensitive limit language found in chunk
// text, with the matched keyword and its surrounding context.
type Qualifier struct {
	Type    string `json:"type"`
	Keyword string `json:"keyword"`
	Context string `json:"context"`
}

// Chunk is one addressable section of a document, bounded by heading
// structure. IDs are corpus-wide and never reused.
type Chunk struct {
	ID                 int64
	Document           string
	Text               string
	Heading            string
	HeadingNum         string
	Path               []string
	Level              int
	TopicKey           string
	IsEmergency        bool
	EmergencyCategory  string
	Units              []UnitMention
	DivingModes        []string
	PhysiologyTags     []string
	SystemsTags        []string
	NormativeLanguage  string
	ConflictQualifiers []Qualifier
	ConflictKind       string
}

// Topic is a registry entry for a topic key. Created lazily on first
// sight, never deleted even when all member chunks are gone.
type Topic struct {
	Key         string
	Description string
	FirstSeen   time.Time
}

// ScoredChunk is a retrieval result: a chunk id with its cosine
// similarity against the query.
type ScoredChunk struct {
	ChunkID int64
	Score   float32
}
