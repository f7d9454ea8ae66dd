package escore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	escore "github.com/corvusdb/escore"
	"github.com/corvusdb/escore/stores/mem"
)

type userProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func nameSetReducer() escore.Reducer[userProfile] {
	return escore.Reducer[userProfile]{
		Name: "user.profile",
		Kind: escore.ReducerStream,
		Fold: func(events []escore.EventRecord, state userProfile) userProfile {
			for _, e := range events {
				switch e.Type {
				case "user:name-set":
					state.Name, _ = e.Data["name"].(string)
				case "user:email-set":
					state.Email, _ = e.Data["email"].(string)
				}
			}
			return state
		},
	}
}

func TestReduceFoldsEventsIntoState(t *testing.T) {
	ctx := context.Background()
	events := mem.NewEvents()
	engine := escore.NewReducerEngine(events, mem.NewContexts(), mem.NewSnapshots(), escore.SnapshotManual)

	require.NoError(t, events.Insert(ctx, escore.EventRecord{
		ID: "1", Stream: "user:1", Type: "user:name-set",
		Data: map[string]any{"name": "ada"}, Created: "2026-01-01T00:00:00.000000000Z",
	}))
	require.NoError(t, events.Insert(ctx, escore.EventRecord{
		ID: "2", Stream: "user:1", Type: "user:email-set",
		Data: map[string]any{"email": "ada@example.com"}, Created: "2026-01-01T00:00:01.000000000Z",
	}))

	state, found, err := escore.Reduce(ctx, engine, "user:1", nameSetReducer())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", state.Name)
	assert.Equal(t, "ada@example.com", state.Email)
}

func TestReduceNotFoundWhenNoEventsAndNoSnapshot(t *testing.T) {
	ctx := context.Background()
	engine := escore.NewReducerEngine(mem.NewEvents(), mem.NewContexts(), mem.NewSnapshots(), escore.SnapshotManual)

	_, found, err := escore.Reduce(ctx, engine, "user:missing", nameSetReducer())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReduceResumesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	events := mem.NewEvents()
	snapshots := mem.NewSnapshots()
	engine := escore.NewReducerEngine(events, mem.NewContexts(), snapshots, escore.SnapshotManual)

	require.NoError(t, events.Insert(ctx, escore.EventRecord{
		ID: "1", Stream: "user:1", Type: "user:name-set",
		Data: map[string]any{"name": "ada"}, Created: "2026-01-01T00:00:00.000000000Z",
	}))
	state, err := escore.CreateSnapshot(ctx, engine, "user:1", nameSetReducer())
	require.NoError(t, err)
	assert.Equal(t, "ada", state.Name)

	require.NoError(t, events.Insert(ctx, escore.EventRecord{
		ID: "2", Stream: "user:1", Type: "user:email-set",
		Data: map[string]any{"email": "ada@example.com"}, Created: "2026-01-01T00:00:01.000000000Z",
	}))

	state, found, err := escore.Reduce(ctx, engine, "user:1", nameSetReducer())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", state.Name, "snapshot state should be preserved across the fold")
	assert.Equal(t, "ada@example.com", state.Email)
}

func TestReduceAutoModeWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	events := mem.NewEvents()
	snapshots := mem.NewSnapshots()
	engine := escore.NewReducerEngine(events, mem.NewContexts(), snapshots, escore.SnapshotAuto)

	require.NoError(t, events.Insert(ctx, escore.EventRecord{
		ID: "1", Stream: "user:1", Type: "user:name-set",
		Data: map[string]any{"name": "ada"}, Created: "2026-01-01T00:00:00.000000000Z",
	}))

	_, found, err := escore.Reduce(ctx, engine, "user:1", nameSetReducer())
	require.NoError(t, err)
	assert.True(t, found)

	snap, err := snapshots.GetByStream(ctx, "user.profile", "user:1")
	require.NoError(t, err)
	assert.True(t, snap.Found)
	assert.Equal(t, "2026-01-01T00:00:00.000000000Z", snap.Cursor)
}

func TestDeleteSnapshotRemovesIt(t *testing.T) {
	ctx := context.Background()
	snapshots := mem.NewSnapshots()
	engine := escore.NewReducerEngine(mem.NewEvents(), mem.NewContexts(), snapshots, escore.SnapshotManual)

	require.NoError(t, snapshots.Insert(ctx, "user.profile", "user:1", "c1", map[string]any{"name": "ada"}))
	require.NoError(t, escore.DeleteSnapshot(ctx, engine, "user.profile", "user:1"))

	snap, err := snapshots.GetByStream(ctx, "user.profile", "user:1")
	require.NoError(t, err)
	assert.False(t, snap.Found)
}

func TestReduceContextKind(t *testing.T) {
	ctx := context.Background()
	events := mem.NewEvents()
	contexts := mem.NewContexts()
	engine := escore.NewReducerEngine(events, contexts, mem.NewSnapshots(), escore.SnapshotManual)

	require.NoError(t, contexts.Handle(ctx, escore.ContextOp{Key: "team:eng", Op: escore.ContextInsert, Stream: "user:1"}))
	require.NoError(t, events.Insert(ctx, escore.EventRecord{
		ID: "1", Stream: "user:1", Type: "user:name-set",
		Data: map[string]any{"name": "ada"}, Created: "2026-01-01T00:00:00.000000000Z",
	}))

	reducer := nameSetReducer()
	reducer.Kind = escore.ReducerContext

	state, found, err := escore.Reduce(ctx, engine, "team:eng", reducer)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", state.Name)
}
