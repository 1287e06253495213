package conflict

import (
	"context"
	"errors"
	"testing"

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

func testConflict(key string) domain.Conflict {
	return domain.Conflict{
		Key:      key,
		ChunkA:   1,
		ChunkB:   2,
		TopicKey: "bailout_gas",
		Kind:     domain.ConflictNumeric,
		Detail:   "50 bar vs 60 bar",
	}
}

func TestUpsert_IdempotentKeepsStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Upsert(ctx, testConflict("abc"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Fatal("expected first upsert to create")
	}

	if err := repo.Resolve(ctx, "abc", domain.StatusResolved, "supervisor", "checked"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Re-detection must not reopen the resolved conflict.
	created, err = repo.Upsert(ctx, testConflict("abc"))
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if created {
		t.Error("expected second upsert to be a no-op")
	}

	got, err := repo.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusResolved {
		t.Errorf("expected status resolved after re-detection, got %s", got.Status)
	}
	if got.ResolvedBy != "supervisor" {
		t.Errorf("expected resolver preserved, got %q", got.ResolvedBy)
	}
	if got.ResolvedAt == nil {
		t.Error("expected resolved_at set")
	}
}

func TestResolve_RejectsClosedConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, testConflict("abc")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Resolve(ctx, "abc", domain.StatusDismissed, "supervisor", ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	err := repo.Resolve(ctx, "abc", domain.StatusResolved, "someone-else", "")
	if !errors.Is(err, domain.ErrConflictClosed) {
		t.Fatalf("expected ErrConflictClosed, got %v", err)
	}
}

func TestResolve_MissingConflict(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Resolve(context.Background(), "missing", domain.StatusResolved, "x", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := testConflict("a")
	b := testConflict("b")
	b.TopicKey = "maximum_depth"
	if _, err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert a: %v", err)
	}
	if _, err := repo.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert b: %v", err)
	}
	if err := repo.Resolve(ctx, "a", domain.StatusDeferred, "x", ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pending, err := repo.List(ctx, domain.StatusPending, "")
	if err != nil {
		t.Fatalf("List pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Key != "b" {
		t.Errorf("expected pending [b], got %+v", pending)
	}

	byTopic, err := repo.List(ctx, "", "maximum_depth")
	if err != nil {
		t.Fatalf("List by topic: %v", err)
	}
	if len(byTopic) != 1 || byTopic[0].Key != "b" {
		t.Errorf("expected topic filter [b], got %+v", byTopic)
	}

	all, err := repo.List(ctx, "", "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 conflicts, got %d", len(all))
	}
}

func TestDeleteForChunks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := testConflict("a") // chunks 1, 2
	b := testConflict("b")
	b.ChunkA, b.ChunkB = 3, 4
	if _, err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert a: %v", err)
	}
	if _, err := repo.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert b: %v", err)
	}

	if err := repo.DeleteForChunks(ctx, []int64{2}); err != nil {
		t.Fatalf("DeleteForChunks: %v", err)
	}

	if _, err := repo.Get(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected conflict a deleted, got %v", err)
	}
	if _, err := repo.Get(ctx, "b"); err != nil {
		t.Errorf("expected conflict b kept, got %v", err)
	}
}
