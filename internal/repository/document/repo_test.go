package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/divekit/manualindex/internal/db/sqlite"
	"github.com/divekit/manualindex/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store.DB())
}

func testDoc(name string) domain.Document {
	return domain.Document{
		Name:           name,
		Classification: domain.ClassManual,
		IngestedAt:     time.Now().UTC(),
	}
}

func testChunks(doc string, texts ...string) ([]domain.Chunk, [][]float32) {
	chunks := make([]domain.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			Document: doc,
			Text:     text,
			Heading:  "Section",
			Path:     []string{"Section"},
			Level:    1,
			TopicKey: "section",
		}
		vectors[i] = []float32{1, 0, 0}
	}
	return chunks, vectors
}

func TestReplace_AssignsFreshIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chunks, vectors := testChunks("ops-manual", "first", "second")
	res, err := repo.Replace(ctx, testDoc("ops-manual"), chunks, vectors)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if len(res.NewIDs) != 2 {
		t.Fatalf("expected 2 new ids, got %d", len(res.NewIDs))
	}
	if len(res.RemovedIDs) != 0 {
		t.Errorf("expected no removed ids on first ingest, got %v", res.RemovedIDs)
	}

	// Re-ingest replaces the chunks with strictly newer ids.
	res2, err := repo.Replace(ctx, testDoc("ops-manual"), chunks, vectors)
	if err != nil {
		t.Fatalf("second Replace: %v", err)
	}
	if len(res2.RemovedIDs) != 2 {
		t.Errorf("expected 2 removed ids, got %v", res2.RemovedIDs)
	}
	for _, newID := range res2.NewIDs {
		for _, oldID := range res.NewIDs {
			if newID == oldID {
				t.Errorf("chunk id %d was reused", newID)
			}
		}
	}
}

func TestReplace_VectorCountMismatch(t *testing.T) {
	repo := newTestRepo(t)

	chunks, _ := testChunks("ops-manual", "first", "second")
	_, err := repo.Replace(context.Background(), testDoc("ops-manual"), chunks, [][]float32{{1}})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDelete_ReturnsRemovedChunkIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chunks, vectors := testChunks("ops-manual", "only")
	res, err := repo.Replace(ctx, testDoc("ops-manual"), chunks, vectors)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	removed, err := repo.Delete(ctx, "ops-manual")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(removed) != 1 || removed[0] != res.NewIDs[0] {
		t.Errorf("expected removed ids %v, got %v", res.NewIDs, removed)
	}

	if _, err := repo.Get(ctx, "ops-manual"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected document gone, got %v", err)
	}
}

func TestDelete_MissingDocument(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestUpdateMetadata(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chunks, vectors := testChunks("ops-manual", "body")
	if _, err := repo.Replace(ctx, testDoc("ops-manual"), chunks, vectors); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	effective := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := domain.DocumentMetadata{
		Classification:     domain.ClassStandard,
		ComplianceStandard: "IMCA D014",
		EffectiveDate:      &effective,
		SourcePath:         "manuals/ops-manual-rev3.pdf",
	}
	if err := repo.UpdateMetadata(ctx, "ops-manual", meta); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	doc, err := repo.Get(ctx, "ops-manual")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Classification != domain.ClassStandard {
		t.Errorf("expected classification updated, got %s", doc.Classification)
	}
	if doc.ComplianceStandard != "IMCA D014" {
		t.Errorf("expected compliance standard updated, got %q", doc.ComplianceStandard)
	}
	if doc.EffectiveDate == nil || !doc.EffectiveDate.Equal(effective) {
		t.Errorf("expected effective date %v, got %v", effective, doc.EffectiveDate)
	}
	if doc.SourcePath != "manuals/ops-manual-rev3.pdf" {
		t.Errorf("expected source path updated, got %q", doc.SourcePath)
	}

	if err := repo.UpdateMetadata(ctx, "missing", meta); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound for missing doc, got %v", err)
	}
}

func TestList_OrderedByName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"zulu", "alpha"} {
		chunks, vectors := testChunks(name, "body")
		if _, err := repo.Replace(ctx, testDoc(name), chunks, vectors); err != nil {
			t.Fatalf("Replace %s: %v", name, err)
		}
	}

	docs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 || docs[0].Name != "alpha" || docs[1].Name != "zulu" {
		t.Errorf("expected [alpha zulu], got %+v", docs)
	}
}
