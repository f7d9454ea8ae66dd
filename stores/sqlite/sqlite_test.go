package sqlite_test

import (
	"context"
	"testing"

	escore "github.com/corvusdb/escore"
	"github.com/corvusdb/escore/stores/sqlite"
)

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenCreatesTables(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record := escore.EventRecord{
		ID: "01J00000000000000000000001", Stream: "user:1", Type: "user:created",
		Created: "2026-01-01T00:00:00.000000000Z", Recorded: "2026-01-01T00:00:00.000000000Z",
	}
	if err := store.Events.Insert(ctx, record); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestEventsInsertAndIdempotentReplay(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record := escore.EventRecord{
		ID: "01J00000000000000000000001", Stream: "user:1", Type: "user:created",
		Created: "2026-01-01T00:00:00.000000000Z", Recorded: "2026-01-01T00:00:00.000000000Z",
	}
	if err := store.Events.Insert(ctx, record); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Events.Insert(ctx, record); err != escore.ErrIDCollision {
		t.Fatalf("expected ErrIDCollision on replay, got %v", err)
	}

	got, err := store.Events.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Stream != record.Stream {
		t.Fatalf("GetByID returned wrong stream: %+v", got)
	}
}

func TestEventsStreamCreatedCollision(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := escore.EventRecord{
		ID: "01J00000000000000000000001", Stream: "user:1", Type: "user:created",
		Created: "2026-01-01T00:00:00.000000000Z", Recorded: "2026-01-01T00:00:00.000000000Z",
	}
	second := escore.EventRecord{
		ID: "01J00000000000000000000002", Stream: "user:1", Type: "user:name-set",
		Created: "2026-01-01T00:00:00.000000000Z", Recorded: "2026-01-01T00:00:00.000000000Z",
	}
	if err := store.Events.Insert(ctx, first); err != nil {
		t.Fatalf("Insert first: %v", err)
	}
	if err := store.Events.Insert(ctx, second); err != escore.ErrStreamCreatedCollision {
		t.Fatalf("expected ErrStreamCreatedCollision, got %v", err)
	}
}

func TestGetByStreamOrdersByCreatedThenID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	records := []escore.EventRecord{
		{ID: "01J00000000000000000000003", Stream: "user:1", Type: "user:email-set", Created: "2026-01-01T00:00:02.000000000Z", Recorded: "2026-01-01T00:00:02.000000000Z"},
		{ID: "01J00000000000000000000001", Stream: "user:1", Type: "user:created", Created: "2026-01-01T00:00:00.000000000Z", Recorded: "2026-01-01T00:00:00.000000000Z"},
		{ID: "01J00000000000000000000002", Stream: "user:1", Type: "user:name-set", Created: "2026-01-01T00:00:01.000000000Z", Recorded: "2026-01-01T00:00:01.000000000Z"},
	}
	for _, r := range records {
		if err := store.Events.Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := store.Events.GetByStream(ctx, "user:1", escore.GetOptions{})
	if err != nil {
		t.Fatalf("GetByStream: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	wantOrder := []string{"user:created", "user:name-set", "user:email-set"}
	for i, w := range wantOrder {
		if got[i].Type != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, got[i].Type)
		}
	}
}

func TestSnapshotsUpsertAndRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	state := map[string]any{"name": "ada"}
	if err := store.Snapshots.Insert(ctx, "user.profile", "user:1", "c1", state); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	snap, err := store.Snapshots.GetByStream(ctx, "user.profile", "user:1")
	if err != nil {
		t.Fatalf("GetByStream: %v", err)
	}
	if !snap.Found || snap.Cursor != "c1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := store.Snapshots.Remove(ctx, "user.profile", "user:1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	snap, err = store.Snapshots.GetByStream(ctx, "user.profile", "user:1")
	if err != nil {
		t.Fatalf("GetByStream: %v", err)
	}
	if snap.Found {
		t.Fatalf("expected snapshot removed")
	}
}

func TestContextsReplayAppliesInsertAndRemove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ops := []escore.ContextOp{
		{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:1"},
		{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:2"},
		{Key: "team:eng", Op: escore.ContextRemove, Stream: "user:1"},
	}
	for _, op := range ops {
		if err := store.Contexts.Handle(ctx, op); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	streams, err := store.Contexts.GetByKey(ctx, "team:eng")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if len(streams) != 1 || streams[0].Stream != "user:2" {
		t.Fatalf("expected only user:2 present, got %+v", streams)
	}
}
