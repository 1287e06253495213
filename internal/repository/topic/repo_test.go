package topic

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

func TestEnsure_CreatesOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Ensure(ctx, "bailout_gas", "Bailout Gas")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatal("expected first Ensure to create")
	}

	first, err := repo.Get(ctx, "bailout_gas")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Seeing the topic again keeps the original record.
	created, err = repo.Ensure(ctx, "bailout_gas", "Bail-out Gas Requirements")
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if created {
		t.Error("expected second Ensure to be a no-op")
	}

	second, err := repo.Get(ctx, "bailout_gas")
	if err != nil {
		t.Fatalf("Get after re-ensure: %v", err)
	}
	if second.Description != first.Description {
		t.Errorf("description changed: %q -> %q", first.Description, second.Description)
	}
	if !second.FirstSeen.Equal(first.FirstSeen) {
		t.Errorf("first_seen changed: %v -> %v", first.FirstSeen, second.FirstSeen)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_OrderedByKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, key := range []string{"maximum_depth", "bailout_gas"} {
		if _, err := repo.Ensure(ctx, key, ""); err != nil {
			t.Fatalf("Ensure %s: %v", key, err)
		}
	}

	topics, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(topics) != 2 || topics[0].Key != "bailout_gas" || topics[1].Key != "maximum_depth" {
		t.Errorf("expected sorted keys, got %+v", topics)
	}
}
