// Package storetest is a backend-agnostic compliance suite for
// escore's three storage-provider contracts (spec.md §4.3). It is run
// against stores/mem, stores/postgres, and stores/sqlite so the three
// backends are held to one shared definition of correct behavior,
// generalizing the teacher's single-EventStore storetest.go into one
// suite per provider interface.
package storetest

import (
	"testing"

	escore "github.com/corvusdb/escore"
)

// Providers is what a Factory hands back: a fresh, empty, isolated set
// of the three providers under test.
type Providers struct {
	Events    escore.EventProvider
	Contexts  escore.ContextProvider
	Snapshots escore.SnapshotProvider
}

// Factory builds a fresh Providers for one subtest. Use t.Cleanup for
// teardown (closing pools, removing temp files).
type Factory func(t *testing.T) Providers

// Run executes the full compliance suite.
func Run(t *testing.T, newProviders Factory) {
	t.Run("events", func(t *testing.T) { runEvents(t, newProviders) })
	t.Run("contexts", func(t *testing.T) { runContexts(t, newProviders) })
	t.Run("snapshots", func(t *testing.T) { runSnapshots(t, newProviders) })
}

func record(id, stream, typ, created string) escore.EventRecord {
	return escore.EventRecord{ID: id, Stream: stream, Type: typ, Created: created, Recorded: created}
}

func runEvents(t *testing.T, newProviders Factory) {
	t.Run("insert and get by id", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		in := record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")
		if err := p.Events.Insert(ctx, in); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := p.Events.GetByID(ctx, in.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.ID != in.ID || got.Stream != in.Stream || got.Type != in.Type {
			t.Fatalf("GetByID mismatch: got %+v, want %+v", got, in)
		}
	})

	t.Run("get by id missing is not found", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		_, err := p.Events.GetByID(ctx, "does-not-exist")
		if err == nil {
			t.Fatalf("expected an error for a missing id")
		}
		var nf *escore.NotFoundError
		if !asNotFound(err, &nf) {
			t.Fatalf("expected *escore.NotFoundError, got %v", err)
		}
	})

	t.Run("duplicate id is idempotent", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		in := record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")
		if err := p.Events.Insert(ctx, in); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := p.Events.Insert(ctx, in); err != escore.ErrIDCollision {
			t.Fatalf("expected ErrIDCollision on re-insert, got %v", err)
		}
	})

	t.Run("stream created collision", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		first := record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")
		second := record("01J00000000000000000000002", "user:1", "user:name-set", "2026-01-01T00:00:00.000000000Z")
		if err := p.Events.Insert(ctx, first); err != nil {
			t.Fatalf("Insert first: %v", err)
		}
		if err := p.Events.Insert(ctx, second); err != escore.ErrStreamCreatedCollision {
			t.Fatalf("expected ErrStreamCreatedCollision, got %v", err)
		}
	})

	t.Run("distinct streams do not collide on created", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		a := record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")
		b := record("01J00000000000000000000002", "user:2", "user:created", "2026-01-01T00:00:00.000000000Z")
		if err := p.Events.Insert(ctx, a); err != nil {
			t.Fatalf("Insert a: %v", err)
		}
		if err := p.Events.Insert(ctx, b); err != nil {
			t.Fatalf("Insert b: %v", err)
		}
	})

	t.Run("get by stream orders by created then id", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		records := []escore.EventRecord{
			record("01J00000000000000000000003", "user:1", "user:email-set", "2026-01-01T00:00:02.000000000Z"),
			record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z"),
			record("01J00000000000000000000002", "user:1", "user:name-set", "2026-01-01T00:00:01.000000000Z"),
		}
		for _, r := range records {
			if err := p.Events.Insert(ctx, r); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		got, err := p.Events.GetByStream(ctx, "user:1", escore.GetOptions{})
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		want := []string{"user:created", "user:name-set", "user:email-set"}
		if len(got) != len(want) {
			t.Fatalf("expected %d records, got %d", len(want), len(got))
		}
		for i, w := range want {
			if got[i].Type != w {
				t.Fatalf("position %d: expected %s, got %s", i, w, got[i].Type)
			}
		}
	})

	t.Run("get by streams merges multiple streams", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		if err := p.Events.Insert(ctx, record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := p.Events.Insert(ctx, record("01J00000000000000000000002", "user:2", "user:created", "2026-01-01T00:00:01.000000000Z")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, err := p.Events.GetByStreams(ctx, []string{"user:1", "user:2"}, escore.GetOptions{})
		if err != nil {
			t.Fatalf("GetByStreams: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 records, got %d", len(got))
		}
	})

	t.Run("type filter narrows results", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		if err := p.Events.Insert(ctx, record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := p.Events.Insert(ctx, record("01J00000000000000000000002", "user:1", "user:name-set", "2026-01-01T00:00:01.000000000Z")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, err := p.Events.GetByStream(ctx, "user:1", escore.GetOptions{Filter: escore.GetFilter{Types: []string{"user:name-set"}}})
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if len(got) != 1 || got[0].Type != "user:name-set" {
			t.Fatalf("expected only user:name-set, got %+v", got)
		}
	})

	t.Run("cursor excludes up to and including itself", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		records := []escore.EventRecord{
			record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z"),
			record("01J00000000000000000000002", "user:1", "user:name-set", "2026-01-01T00:00:01.000000000Z"),
		}
		for _, r := range records {
			if err := p.Events.Insert(ctx, r); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		got, err := p.Events.GetByStream(ctx, "user:1", escore.GetOptions{Cursor: "2026-01-01T00:00:00.000000000Z"})
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if len(got) != 1 || got[0].Type != "user:name-set" {
			t.Fatalf("expected only the record after the cursor, got %+v", got)
		}
	})

	t.Run("check outdated", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		if err := p.Events.Insert(ctx, record("01J00000000000000000000001", "user:1", "user:name-set", "2026-01-01T00:00:05.000000000Z")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		outdated, err := p.Events.CheckOutdated(ctx, escore.CheckOutdatedInput{Stream: "user:1", Type: "user:name-set", Created: "2026-01-01T00:00:00.000000000Z"})
		if err != nil {
			t.Fatalf("CheckOutdated: %v", err)
		}
		if !outdated {
			t.Fatalf("expected outdated=true for an earlier created")
		}

		outdated, err = p.Events.CheckOutdated(ctx, escore.CheckOutdatedInput{Stream: "user:1", Type: "user:name-set", Created: "2026-01-01T00:00:10.000000000Z"})
		if err != nil {
			t.Fatalf("CheckOutdated: %v", err)
		}
		if outdated {
			t.Fatalf("expected outdated=false for a later created")
		}
	})

	t.Run("get by streams with empty but non-nil list returns empty", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		if err := p.Events.Insert(ctx, record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		// Store.GetByContext and the ReducerContext fold both build this
		// exact shape — make([]string, 0) — when a context key currently
		// has zero associated streams (spec.md §3: removing an entry
		// that was never inserted is a permitted no-op).
		got, err := p.Events.GetByStreams(ctx, make([]string, 0), escore.GetOptions{})
		if err != nil {
			t.Fatalf("GetByStreams: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no records for an empty stream list, got %+v", got)
		}
	})

	t.Run("insert many is atomic", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		batch := []escore.EventRecord{
			record("01J00000000000000000000001", "user:1", "user:created", "2026-01-01T00:00:00.000000000Z"),
			record("01J00000000000000000000001", "user:1", "user:name-set", "2026-01-01T00:00:01.000000000Z"),
		}
		if err := p.Events.InsertMany(ctx, batch, 0); err == nil {
			t.Fatalf("expected an error for a duplicate id within the batch")
		}

		got, err := p.Events.GetByStream(ctx, "user:1", escore.GetOptions{})
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no records committed from an aborted batch, got %d", len(got))
		}
	})
}

func runContexts(t *testing.T, newProviders Factory) {
	t.Run("replay applies insert and remove in order", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		ops := []escore.ContextOp{
			{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:1"},
			{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:2"},
			{Key: "team:eng", Op: escore.ContextRemove, Stream: "user:1"},
		}
		for _, op := range ops {
			if err := p.Contexts.Handle(ctx, op); err != nil {
				t.Fatalf("Handle: %v", err)
			}
		}

		streams, err := p.Contexts.GetByKey(ctx, "team:eng")
		if err != nil {
			t.Fatalf("GetByKey: %v", err)
		}
		if len(streams) != 1 || streams[0].Stream != "user:2" {
			t.Fatalf("expected only user:2 present, got %+v", streams)
		}
	})

	t.Run("unknown key returns empty", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		streams, err := p.Contexts.GetByKey(ctx, "team:missing")
		if err != nil {
			t.Fatalf("GetByKey: %v", err)
		}
		if len(streams) != 0 {
			t.Fatalf("expected no streams, got %+v", streams)
		}
	})

	t.Run("re-insert after remove is idempotent-visible", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		ops := []escore.ContextOp{
			{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:1"},
			{Key: "team:eng", Op: escore.ContextRemove, Stream: "user:1"},
			{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:1"},
		}
		for _, op := range ops {
			if err := p.Contexts.Handle(ctx, op); err != nil {
				t.Fatalf("Handle: %v", err)
			}
		}

		streams, err := p.Contexts.GetByKey(ctx, "team:eng")
		if err != nil {
			t.Fatalf("GetByKey: %v", err)
		}
		if len(streams) != 1 || streams[0].Stream != "user:1" {
			t.Fatalf("expected user:1 present after re-insert, got %+v", streams)
		}
	})
}

func runSnapshots(t *testing.T, newProviders Factory) {
	t.Run("missing snapshot is found=false", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		snap, err := p.Snapshots.GetByStream(ctx, "user.profile", "user:1")
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if snap.Found {
			t.Fatalf("expected Found=false, got %+v", snap)
		}
	})

	t.Run("insert then get round-trips", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		state := map[string]any{"name": "ada"}
		if err := p.Snapshots.Insert(ctx, "user.profile", "user:1", "c1", state); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		snap, err := p.Snapshots.GetByStream(ctx, "user.profile", "user:1")
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if !snap.Found || snap.Cursor != "c1" || snap.State["name"] != "ada" {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("insert upserts the existing row", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		if err := p.Snapshots.Insert(ctx, "user.profile", "user:1", "c1", map[string]any{"name": "ada"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := p.Snapshots.Insert(ctx, "user.profile", "user:1", "c2", map[string]any{"name": "ada lovelace"}); err != nil {
			t.Fatalf("Insert (update): %v", err)
		}

		snap, err := p.Snapshots.GetByStream(ctx, "user.profile", "user:1")
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if snap.Cursor != "c2" || snap.State["name"] != "ada lovelace" {
			t.Fatalf("expected upserted snapshot, got %+v", snap)
		}
	})

	t.Run("remove deletes the row", func(t *testing.T) {
		ctx := t.Context()
		p := newProviders(t)

		if err := p.Snapshots.Insert(ctx, "user.profile", "user:1", "c1", map[string]any{"name": "ada"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := p.Snapshots.Remove(ctx, "user.profile", "user:1"); err != nil {
			t.Fatalf("Remove: %v", err)
		}

		snap, err := p.Snapshots.GetByStream(ctx, "user.profile", "user:1")
		if err != nil {
			t.Fatalf("GetByStream: %v", err)
		}
		if snap.Found {
			t.Fatalf("expected snapshot removed, got %+v", snap)
		}
	})
}

func asNotFound(err error, target **escore.NotFoundError) bool {
	nf, ok := err.(*escore.NotFoundError)
	if !ok {
		return false
	}
	*target = nf
	return true
}
