package history

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/tribhuwan-kumar/silly/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.New(db.Config{
		Driver: "sqlite",
		DSN:    "file:" + t.Name() + "?mode=memory&cache=shared",
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	store := NewStore(database)
	if err := store.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return store
}

func strp(s string) *string { return &s }

func TestInsertInitialIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta := ItemMetaData{GID: "g1", Name: strp("first name"), Status: StatusWaiting}
	if err := store.InsertInitial(ctx, 7, meta); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Second insert for the same gid with different data must not
	// overwrite the existing row.
	again := ItemMetaData{GID: "g1", Name: strp("second name"), Status: StatusActive}
	if err := store.InsertInitial(ctx, 7, again); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	page, err := store.ListForUser(ctx, 7, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("got %d rows, want exactly 1", len(page.Items))
	}
	if *page.Items[0].Name != "first name" {
		t.Fatalf("Name = %q, want unchanged %q", *page.Items[0].Name, "first name")
	}
}

func TestUpsertFromDaemonNeverOverwritesNameWithUntitled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertInitial(ctx, 1, ItemMetaData{GID: "g2", Name: strp("Real Name"), Status: StatusWaiting}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	untitledName := untitled
	updated, err := store.UpsertFromDaemon(ctx, ItemMetaData{
		GID: "g2", Name: &untitledName, Status: StatusActive,
		TotalLength: strp("100"), CompletedLength: strp("10"), UploadedLength: strp("0"),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if updated.Name == nil || *updated.Name != "Real Name" {
		t.Fatalf("Name = %v, want unchanged Real Name", updated.Name)
	}
	if updated.Status != StatusActive {
		t.Fatalf("Status = %v, want active", updated.Status)
	}
}

func TestUpsertFromDaemonUnknownGidReturnsErrNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpsertFromDaemon(context.Background(), ItemMetaData{GID: "missing", Status: StatusActive})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertFromDaemonKeepsCompletedAtNonNullIffComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertInitial(ctx, 1, ItemMetaData{GID: "g3", Name: strp("x"), Status: StatusActive}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first, err := store.UpsertFromDaemon(ctx, ItemMetaData{GID: "g3", Name: strp("x"), Status: StatusComplete})
	if err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if first.CompletedAt == nil {
		t.Fatal("CompletedAt is nil after transitioning to complete")
	}
	firstCompletedAt := *first.CompletedAt

	// A second upsert that's still "complete" must not move completed_at.
	second, err := store.UpsertFromDaemon(ctx, ItemMetaData{GID: "g3", Name: strp("x"), Status: StatusComplete})
	if err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if second.CompletedAt == nil || !second.CompletedAt.Equal(firstCompletedAt) {
		t.Fatalf("CompletedAt changed on a repeat complete upsert: %v -> %v", firstCompletedAt, second.CompletedAt)
	}

	// A later transition away from "complete" must clear completed_at —
	// the invariant is completed_at non-null iff status = complete.
	third, err := store.UpsertFromDaemon(ctx, ItemMetaData{GID: "g3", Name: strp("x"), Status: StatusStopped})
	if err != nil {
		t.Fatalf("upsert 3: %v", err)
	}
	if third.CompletedAt != nil {
		t.Fatalf("CompletedAt = %v, want nil after transitioning away from complete", third.CompletedAt)
	}
}

func TestListForUserIsolatesByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertInitial(ctx, 1, ItemMetaData{GID: "a1", Status: StatusWaiting}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertInitial(ctx, 2, ItemMetaData{GID: "a2", Status: StatusWaiting}); err != nil {
		t.Fatal(err)
	}

	page, err := store.ListForUser(ctx, 1, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].GID != "a1" {
		t.Fatalf("user 1 sees %+v, want only a1", page.Items)
	}
	if page.TotalItems != 1 {
		t.Fatalf("TotalItems = %d, want 1", page.TotalItems)
	}
}

func TestDeleteForUserCannotDeleteAnotherUsersRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertInitial(ctx, 1, ItemMetaData{GID: "d1", Status: StatusWaiting}); err != nil {
		t.Fatal(err)
	}

	err := store.DeleteForUser(ctx, "d1", 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound when deleting another user's row", err)
	}

	if err := store.DeleteForUser(ctx, "d1", 1); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
}

func TestSelectActiveGidsOnlyReturnsActiveStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertInitial(ctx, 1, ItemMetaData{GID: "act1", Status: StatusActive}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertInitial(ctx, 1, ItemMetaData{GID: "wait1", Status: StatusWaiting}); err != nil {
		t.Fatal(err)
	}

	rows, err := store.SelectActiveGids(ctx)
	if err != nil {
		t.Fatalf("select active: %v", err)
	}
	if len(rows) != 1 || rows[0].GID != "act1" {
		t.Fatalf("got %+v, want only act1", rows)
	}
}
