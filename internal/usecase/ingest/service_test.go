package ingest

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/chunker"
	"github.com/divekit/manualindex/internal/db/sqlite"
	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/domain/tagging"
	chunkrepo "github.com/divekit/manualindex/internal/repository/chunk"
	conflictrepo "github.com/divekit/manualindex/internal/repository/conflict"
	documentrepo "github.com/divekit/manualindex/internal/repository/document"
	ledgerrepo "github.com/divekit/manualindex/internal/repository/ledger"
	topicrepo "github.com/divekit/manualindex/internal/repository/topic"
	"github.com/divekit/manualindex/internal/repository/vector"
)

const sampleManual = `1 INTRODUCTION
This operations manual covers surface supplied diving operations
and applies to all personnel engaged in them.

2 GAS REQUIREMENTS
General gas planning requirements for all diving operations
are described in the following sections of this document.

2.1 Bailout Gas
Minimum bailout cylinder pressure is 50 bar before any dive.
The bailout system must be checked before entering the water.

3 MAXIMUM DEPTH
The maximum permitted depth for air diving operations is 30 m
unless a special exemption has been granted in writing.
`

// stubEmbedder returns fixed-dimension vectors; optionally fails or blocks.
type stubEmbedder struct {
	dim     int
	fail    bool
	started chan struct{}
	block   chan struct{}
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	if e.fail {
		return nil, domain.ErrProviderError
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vec := make([]float32, e.dim)
		vec[0] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

type fixture struct {
	svc       *Service
	index     *vector.Index
	ledger    *ledgerrepo.Repo
	conflicts *conflictrepo.Repo
	embedder  *stubEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	index := vector.NewIndex()
	led := ledgerrepo.New(store.DB())
	conf := conflictrepo.New(store.DB())
	emb := &stubEmbedder{dim: 4}

	svc := New(
		documentrepo.New(store.DB()),
		chunkrepo.New(store.DB()),
		topicrepo.New(store.DB()),
		conf,
		led,
		index,
		emb,
		chunker.New(chunker.DefaultMaxChars),
		zap.NewNop(),
	)
	return &fixture{svc: svc, index: index, ledger: led, conflicts: conf, embedder: emb}
}

func TestIngest_FullPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.ChunkIDs) == 0 {
		t.Fatal("expected chunks")
	}
	if res.Document.Classification != domain.ClassManual {
		t.Errorf("expected manual classification, got %s", res.Document.Classification)
	}
	if f.index.Size() != len(res.ChunkIDs) {
		t.Errorf("index size %d, expected %d", f.index.Size(), len(res.ChunkIDs))
	}

	// The bailout section must carry its topic, units and emergency tag.
	var bailout, depth *domain.Chunk
	for _, id := range res.ChunkIDs {
		c, err := f.svc.GetChunk(ctx, id)
		if err != nil {
			t.Fatalf("GetChunk: %v", err)
		}
		switch c.TopicKey {
		case "bailout_gas":
			bailout = c
		case "maximum_depth":
			depth = c
		}
	}
	if bailout == nil {
		t.Fatal("expected a bailout_gas chunk")
	}
	if !bailout.IsEmergency {
		t.Error("expected bailout chunk flagged as emergency")
	}
	if len(bailout.Units) == 0 || bailout.Units[0].Unit != "bar" || bailout.Units[0].Value != 50 {
		t.Errorf("expected 50 bar mention, got %+v", bailout.Units)
	}
	if bailout.NormativeLanguage != tagging.Mandatory {
		t.Errorf("expected mandatory language on bailout chunk, got %q", bailout.NormativeLanguage)
	}
	if len(bailout.ConflictQualifiers) != 1 || bailout.ConflictQualifiers[0].Type != "min_limit" {
		t.Errorf("expected a min_limit qualifier on bailout chunk, got %+v", bailout.ConflictQualifiers)
	}
	if depth == nil {
		t.Fatal("expected a maximum_depth chunk")
	}
	if len(depth.DivingModes) != 1 || depth.DivingModes[0] != "air" {
		t.Errorf("expected air diving mode on depth chunk, got %v", depth.DivingModes)
	}
	if len(depth.ConflictQualifiers) != 1 || depth.ConflictQualifiers[0].Type != "max_limit" {
		t.Errorf("expected a max_limit qualifier on depth chunk, got %+v", depth.ConflictQualifiers)
	}

	topics, err := f.svc.ListTopics(ctx)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if res.NewTopics == 0 || len(topics) != res.NewTopics {
		t.Errorf("expected %d registered topics, got %d", res.NewTopics, len(topics))
	}

	entries, err := f.ledger.List(ctx, domain.ActionIngest, 0)
	if err != nil {
		t.Fatalf("ledger List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 ingest ledger entry, got %d", len(entries))
	}
}

func TestIngest_ReplaceAssignsFreshIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	for _, oldID := range first.ChunkIDs {
		for _, newID := range second.ChunkIDs {
			if oldID == newID {
				t.Errorf("chunk id %d reused across ingests", oldID)
			}
		}
		if _, err := f.svc.GetChunk(ctx, oldID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected old chunk %d gone, got %v", oldID, err)
		}
	}
	if f.index.Size() != len(second.ChunkIDs) {
		t.Errorf("index size %d, expected %d", f.index.Size(), len(second.ChunkIDs))
	}
}

func TestIngest_EmbeddingFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.embedder.fail = true
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}

	if _, err := f.svc.GetDocument(ctx, "ops-manual"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected no stored document, got %v", err)
	}
	if f.index.Size() != 0 {
		t.Errorf("expected empty index, got %d", f.index.Size())
	}

	aborted, err := f.ledger.List(ctx, domain.ActionIngestAborted, 0)
	if err != nil {
		t.Fatalf("ledger List: %v", err)
	}
	if len(aborted) != 1 {
		t.Errorf("expected 1 aborted ledger entry, got %d", len(aborted))
	}
}

func TestIngest_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []Request{
		{Name: "", Text: sampleManual},
		{Name: "ops-manual", Text: ""},
		{Name: "ops-manual", Text: sampleManual, Metadata: domain.DocumentMetadata{Classification: "bogus"}},
	}
	for _, req := range cases {
		if _, err := f.svc.Ingest(ctx, req); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for %+v, got %v", req.Name, err)
		}
	}
}

func TestIngest_ConcurrentSameNameRejected(t *testing.T) {
	f := newFixture(t)
	f.embedder.started = make(chan struct{})
	f.embedder.block = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
		done <- err
	}()

	// Wait until the first ingest is inside the embedder.
	<-f.embedder.started

	_, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
	if !errors.Is(err, domain.ErrIngestInProgress) {
		t.Fatalf("expected ErrIngestInProgress, got %v", err)
	}

	close(f.embedder.block)
	if err := <-done; err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// The guard is released; a new ingest succeeds.
	f.embedder.started = nil
	f.embedder.block = nil
	if _, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual}); err != nil {
		t.Fatalf("ingest after release failed: %v", err)
	}
}

func TestDeleteDocument_CleansUpConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := f.conflicts.Upsert(ctx, domain.Conflict{
		Key:      "stale",
		ChunkA:   res.ChunkIDs[0],
		ChunkB:   res.ChunkIDs[0] + 1000,
		TopicKey: "bailout_gas",
		Kind:     domain.ConflictNumeric,
	}); err != nil {
		t.Fatalf("Upsert conflict: %v", err)
	}

	if err := f.svc.DeleteDocument(ctx, "ops-manual", "supervisor"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if f.index.Size() != 0 {
		t.Errorf("expected empty index after delete, got %d", f.index.Size())
	}
	if _, err := f.conflicts.Get(ctx, "stale"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected stale conflict removed, got %v", err)
	}

	// Topics survive document deletion.
	topics, err := f.svc.ListTopics(ctx)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(topics) == 0 {
		t.Error("expected topics to survive document deletion")
	}
}

func TestDeleteDocument_Missing(t *testing.T) {
	f := newFixture(t)

	err := f.svc.DeleteDocument(context.Background(), "missing", "")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestUpdateMetadata_RequiresClassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, Request{Name: "ops-manual", Text: sampleManual}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	err := f.svc.UpdateMetadata(ctx, "ops-manual", "", domain.DocumentMetadata{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	meta := domain.DocumentMetadata{Classification: domain.ClassStandard, ComplianceStandard: "IMCA D014"}
	if err := f.svc.UpdateMetadata(ctx, "ops-manual", "supervisor", meta); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	doc, err := f.svc.GetDocument(ctx, "ops-manual")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Classification != domain.ClassStandard {
		t.Errorf("expected standard, got %s", doc.Classification)
	}
}
