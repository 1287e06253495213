// Package ingest runs the document pipeline: clean, split into
// sections, tag topics, emergency categories and operational tags,
// extract unit mentions, embed and atomically replace the stored
// document.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/chunker"
	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/domain/emergency"
	"github.com/divekit/manualindex/internal/domain/tagging"
	"github.com/divekit/manualindex/internal/domain/topic"
	"github.com/divekit/manualindex/internal/domain/units"
	"github.com/divekit/manualindex/internal/metrics"
	"github.com/divekit/manualindex/internal/repository/vector"
)

// Actor recorded in the ledger for pipeline-initiated actions.
const systemActor = "system"

// Service orchestrates ingestion and document lifecycle.
type Service struct {
	docs      DocumentStore
	chunks    ChunkStore
	topics    TopicStore
	conflicts ConflictStore
	ledger    Ledger
	index     Index
	embedder  domain.Embedder
	splitter  *chunker.Chunker
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates the ingest service.
func New(
	docs DocumentStore,
	chunks ChunkStore,
	topics TopicStore,
	conflicts ConflictStore,
	ledger Ledger,
	index Index,
	embedder domain.Embedder,
	splitter *chunker.Chunker,
	logger *zap.Logger,
) *Service {
	return &Service{
		docs:      docs,
		chunks:    chunks,
		topics:    topics,
		conflicts: conflicts,
		ledger:    ledger,
		index:     index,
		embedder:  embedder,
		splitter:  splitter,
		logger:    logger,
		inFlight:  make(map[string]bool),
	}
}

// Request is one ingestion call.
type Request struct {
	Name     string
	Text     string
	Actor    string
	Metadata domain.DocumentMetadata
}

// Result reports what an ingestion produced.
type Result struct {
	Document      domain.Document
	ChunkIDs      []int64
	SkippedChunks int
	NewTopics     int
}

// Ingest runs the full pipeline for one document. Re-ingesting an
// existing name atomically replaces its previous version; chunk ids
// are never reused. A concurrent ingest of the same name is rejected
// with ErrIngestInProgress.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("document name is empty: %w", domain.ErrInvalidArgument)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("document text is empty: %w", domain.ErrInvalidArgument)
	}
	if req.Metadata.Classification != "" {
		if _, err := domain.ParseClassification(string(req.Metadata.Classification)); err != nil {
			return nil, err
		}
	}

	if !s.acquire(req.Name) {
		return nil, fmt.Errorf("document %q: %w", req.Name, domain.ErrIngestInProgress)
	}
	defer s.release(req.Name)

	start := time.Now()
	actor := req.Actor
	if actor == "" {
		actor = systemActor
	}

	cleaned := chunker.Clean(req.Text)
	sections := s.splitter.Split(cleaned)
	kept := chunker.DropNoise(sections)
	skipped := len(sections) - len(kept)
	if len(kept) == 0 {
		return nil, fmt.Errorf("document %q has no usable sections: %w", req.Name, domain.ErrInvalidArgument)
	}

	doc := s.buildDocument(req)
	chunks := buildChunks(doc.Name, kept)

	newTopics, err := s.registerTopics(ctx, actor, chunks)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embeddingInput(c)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		s.appendLedger(ctx, actor, domain.ActionEmbeddingFailure, fmt.Sprintf("%s: %v", doc.Name, err))
		s.appendLedger(ctx, actor, domain.ActionIngestAborted, doc.Name)
		metrics.IngestDocumentsTotal.WithLabelValues(string(doc.Classification), "error").Inc()
		return nil, fmt.Errorf("embedding document %q: %w", doc.Name, err)
	}

	for i := range vectors {
		vectors[i] = vector.Normalize(vectors[i])
		if dim := s.index.Dim(); dim > 0 && len(vectors[i]) != dim {
			s.appendLedger(ctx, actor, domain.ActionIngestAborted, doc.Name)
			return nil, fmt.Errorf("vector has %d components, index expects %d: %w",
				len(vectors[i]), dim, domain.ErrDimensionMismatch)
		}
	}

	res, err := s.docs.Replace(ctx, doc, chunks, vectors)
	if err != nil {
		s.appendLedger(ctx, actor, domain.ActionIngestAborted, doc.Name)
		metrics.IngestDocumentsTotal.WithLabelValues(string(doc.Classification), "error").Inc()
		return nil, fmt.Errorf("storing document %q: %w", doc.Name, err)
	}

	// The transaction is committed; bring the in-memory index in step.
	s.index.Remove(res.RemovedIDs)
	for i, id := range res.NewIDs {
		if err := s.index.Add(id, doc.Name, vectors[i]); err != nil {
			return nil, fmt.Errorf("indexing chunk %d: %w", id, err)
		}
	}
	metrics.IndexedVectors.Set(float64(s.index.Size()))

	if len(res.RemovedIDs) > 0 {
		if err := s.conflicts.DeleteForChunks(ctx, res.RemovedIDs); err != nil {
			s.logger.Warn("removing stale conflicts", zap.String("document", doc.Name), zap.Error(err))
		}
	}

	if skipped > 0 {
		s.appendLedger(ctx, actor, domain.ActionChunkSkipped, fmt.Sprintf("%s: %d noise sections dropped", doc.Name, skipped))
	}
	s.appendLedger(ctx, actor, domain.ActionIngest, fmt.Sprintf("%s: %d chunks", doc.Name, len(res.NewIDs)))

	metrics.IngestDocumentsTotal.WithLabelValues(string(doc.Classification), "success").Inc()
	metrics.IngestChunksTotal.Add(float64(len(res.NewIDs)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("document ingested",
		zap.String("document", doc.Name),
		zap.String("classification", string(doc.Classification)),
		zap.Int("chunks", len(res.NewIDs)),
		zap.Int("skipped", skipped),
		zap.Int("replaced", len(res.RemovedIDs)))

	return &Result{
		Document:      doc,
		ChunkIDs:      res.NewIDs,
		SkippedChunks: skipped,
		NewTopics:     newTopics,
	}, nil
}

// DeleteDocument removes a document, its chunks, vectors and any
// conflicts referencing them. Topics stay registered.
func (s *Service) DeleteDocument(ctx context.Context, name, actor string) error {
	if name == "" {
		return fmt.Errorf("document name is empty: %w", domain.ErrInvalidArgument)
	}
	if actor == "" {
		actor = systemActor
	}

	removed, err := s.docs.Delete(ctx, name)
	if err != nil {
		return err
	}

	s.index.Remove(removed)
	metrics.IndexedVectors.Set(float64(s.index.Size()))

	if err := s.conflicts.DeleteForChunks(ctx, removed); err != nil {
		s.logger.Warn("removing stale conflicts", zap.String("document", name), zap.Error(err))
	}

	s.appendLedger(ctx, actor, domain.ActionDeleteDocument, fmt.Sprintf("%s: %d chunks removed", name, len(removed)))
	return nil
}

// UpdateMetadata overwrites a document's compliance metadata without
// re-chunking or re-embedding.
func (s *Service) UpdateMetadata(ctx context.Context, name, actor string, meta domain.DocumentMetadata) error {
	if name == "" {
		return fmt.Errorf("document name is empty: %w", domain.ErrInvalidArgument)
	}
	if meta.Classification == "" {
		return fmt.Errorf("classification is required: %w", domain.ErrInvalidArgument)
	}
	if _, err := domain.ParseClassification(string(meta.Classification)); err != nil {
		return err
	}
	if actor == "" {
		actor = systemActor
	}

	if err := s.docs.UpdateMetadata(ctx, name, meta); err != nil {
		return err
	}
	s.appendLedger(ctx, actor, domain.ActionUpdateMetadata, name)
	return nil
}

// GetDocument retrieves a document by name.
func (s *Service) GetDocument(ctx context.Context, name string) (*domain.Document, error) {
	return s.docs.Get(ctx, name)
}

// ListDocuments lists all documents.
func (s *Service) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return s.docs.List(ctx)
}

// GetChunk retrieves a chunk by id.
func (s *Service) GetChunk(ctx context.Context, id int64) (*domain.Chunk, error) {
	return s.chunks.Get(ctx, id)
}

// ListChunks lists a document's chunks in id order.
func (s *Service) ListChunks(ctx context.Context, document string) ([]domain.Chunk, error) {
	if _, err := s.docs.Get(ctx, document); err != nil {
		return nil, err
	}
	return s.chunks.ListByDocument(ctx, document)
}

// ListTopics lists the topic registry.
func (s *Service) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	return s.topics.List(ctx)
}

func (s *Service) buildDocument(req Request) domain.Document {
	class := req.Metadata.Classification
	if class == "" {
		class = domain.DetectClassification(req.Name, req.Text)
	}
	return domain.Document{
		Name:               req.Name,
		Classification:     class,
		ComplianceStandard: req.Metadata.ComplianceStandard,
		EffectiveDate:      req.Metadata.EffectiveDate,
		MandatoryReview:    req.Metadata.MandatoryReview,
		SupersededBy:       req.Metadata.SupersededBy,
		SourcePath:         req.Metadata.SourcePath,
		IngestedAt:         time.Now().UTC(),
	}
}

func buildChunks(docName string, sections []chunker.Section) []domain.Chunk {
	chunks := make([]domain.Chunk, len(sections))
	for i, sec := range sections {
		c := domain.Chunk{
			Document:           docName,
			Text:               sec.Text,
			Heading:            sec.Heading,
			HeadingNum:         sec.HeadingNum,
			Path:               sec.Path,
			Level:              sec.Level,
			TopicKey:           topic.Key(sec.Heading),
			Units:              units.Extract(sec.Text),
			DivingModes:        tagging.DivingModes(sec.Heading, sec.Text),
			PhysiologyTags:     tagging.Physiology(sec.Heading, sec.Text),
			SystemsTags:        tagging.Systems(sec.Heading, sec.Text),
			NormativeLanguage:  tagging.NormativeLanguage(sec.Text),
			ConflictQualifiers: tagging.ConflictQualifiers(sec.Text),
		}
		if cat, ok := emergency.Classify(sec.Heading, sec.Text); ok {
			c.IsEmergency = true
			c.EmergencyCategory = string(cat)
		}
		chunks[i] = c
	}
	return chunks
}

// embeddingInput prefixes the chunk text with its heading path so the
// vector carries the section's place in the document.
func embeddingInput(c domain.Chunk) string {
	if len(c.Path) == 0 {
		return c.Text
	}
	crumb := ""
	for i, p := range c.Path {
		if i > 0 {
			crumb += " > "
		}
		crumb += p
	}
	return crumb + "\n" + c.Text
}

func (s *Service) registerTopics(ctx context.Context, actor string, chunks []domain.Chunk) (int, error) {
	created := 0
	seen := make(map[string]bool)
	for _, c := range chunks {
		if c.TopicKey == topic.Unclassified || seen[c.TopicKey] {
			continue
		}
		seen[c.TopicKey] = true
		isNew, err := s.topics.Ensure(ctx, c.TopicKey, c.Heading)
		if err != nil {
			return 0, fmt.Errorf("registering topic %q: %w", c.TopicKey, err)
		}
		if isNew {
			created++
			s.appendLedger(ctx, actor, domain.ActionTopicCreated, c.TopicKey)
		}
	}
	return created, nil
}

func (s *Service) appendLedger(ctx context.Context, actor, action, detail string) {
	if err := s.ledger.Append(ctx, actor, action, detail); err != nil {
		s.logger.Warn("appending ledger entry", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Service) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
}
