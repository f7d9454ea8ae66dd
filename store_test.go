package escore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	escore "github.com/corvusdb/escore"
	"github.com/corvusdb/escore/stores/mem"
)

func testValidators(t *testing.T) *escore.ValidatorRegistry {
	t.Helper()

	files := []escore.SchemaFile{}
	for _, typ := range []string{"user:created", "user:name-set", "user:email-set"} {
		f := escore.SchemaFile{}
		f.Event.Type = typ
		f.Event.Data = []byte(`{"type": "object"}`)
		files = append(files, f)
	}
	registry, err := escore.LoadSchemaSet(files)
	require.NoError(t, err)
	return registry
}

func newTestStore(t *testing.T, opts ...escore.Option) (*escore.Store, *mem.Store) {
	t.Helper()
	backing := mem.New()
	declared := []string{"user:created", "user:name-set", "user:email-set"}
	store := escore.New(backing.Events, backing.Contexts, backing.Snapshots, declared, testValidators(t), opts...)
	return store, backing
}

func TestAddEventRunsProjectorAndContextor(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var projected []string
	store.Projector().On("user:created", func(_ context.Context, record escore.EventRecord) error {
		projected = append(projected, record.ID)
		return nil
	})
	store.Contextor().Register("user:created", func(record escore.EventRecord) []escore.ContextOp {
		return []escore.ContextOp{{Key: "all-users", Op: escore.ContextInsert, Stream: record.Stream}}
	})

	id, err := store.AddEvent(ctx, escore.NewEventInput{Type: "user:created", Stream: "user:1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// the contextor and projector run concurrently inside commitAndFanOut
	// but are awaited before PushEvent/AddEvent returns, so it's safe to
	// assert here.
	assert.Equal(t, []string{id}, projected)

	byContext, err := store.GetByContext(ctx, "all-users", escore.GetOptions{})
	require.NoError(t, err)
	require.Len(t, byContext, 1)
	assert.Equal(t, id, byContext[0].ID)
}

func TestAddEventRejectsUnknownType(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.AddEvent(context.Background(), escore.NewEventInput{Type: "user:deleted", Stream: "user:1"})
	require.Error(t, err)
	var unknown *escore.UnknownEventError
	assert.ErrorAs(t, err, &unknown)
}

func TestPushEventIsIdempotentOnDuplicateID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record := escore.NewEvent(escore.NewEventInput{Type: "user:created", Stream: "user:1"})

	var fired int
	store.Projector().Once("user:created", func(context.Context, escore.EventRecord) error {
		fired++
		return nil
	})

	id1, err := store.PushEvent(ctx, record, false)
	require.NoError(t, err)
	id2, err := store.PushEvent(ctx, record, false)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, fired, "the once handler should only fire for the genuinely new insert")
}

func TestPushEventDetectsOutdated(t *testing.T) {
	ctx := context.Background()
	backing := mem.New()
	declared := []string{"user:created", "user:name-set", "user:email-set"}

	var insertedOutdated []bool
	store := escore.New(backing.Events, backing.Contexts, backing.Snapshots, declared, testValidators(t),
		escore.WithHooks(escore.Hooks{
			EventInserted: func(_ escore.EventRecord, existing, hydrated, outdated bool) {
				insertedOutdated = append(insertedOutdated, outdated)
			},
		}))

	later := escore.EventRecord{
		ID: "1", Stream: "user:1", Type: "user:name-set",
		Data: map[string]any{}, Created: "2026-01-01T00:00:10.000000000Z", Recorded: "2026-01-01T00:00:10.000000000Z",
	}
	earlier := escore.EventRecord{
		ID: "2", Stream: "user:1", Type: "user:name-set",
		Data: map[string]any{}, Created: "2026-01-01T00:00:00.000000000Z", Recorded: "2026-01-01T00:00:00.000000000Z",
	}

	_, err := store.PushEvent(ctx, later, false)
	require.NoError(t, err)
	_, err = store.PushEvent(ctx, earlier, false)
	require.NoError(t, err)

	require.Len(t, insertedOutdated, 2)
	assert.False(t, insertedOutdated[0], "the first, newest record is never outdated")
	assert.True(t, insertedOutdated[1], "a record older than one already accepted for the same stream+type is outdated")
}

func TestPushEventStreamCreatedCollisionRetries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created := "2026-01-01T00:00:00.000000000Z"
	first := escore.EventRecord{ID: "1", Stream: "user:1", Type: "user:created", Created: created, Recorded: created}
	second := escore.EventRecord{ID: "2", Stream: "user:1", Type: "user:name-set", Created: created, Recorded: created}

	_, err := store.PushEvent(ctx, first, false)
	require.NoError(t, err)

	_, err = store.PushEvent(ctx, second, false)
	require.NoError(t, err, "a (stream, created) collision should retry with a bumped created, not fail")

	records, err := store.GetByStream(ctx, "user:1", escore.GetOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].Created, records[1].Created)
}

func TestAddEventSequenceIsAtomic(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()

	inputs := []escore.NewEventInput{
		{Type: "user:created", Stream: "user:1"},
		{Type: "user:deleted", Stream: "user:1"}, // unknown type aborts the whole sequence
	}

	_, err := store.AddEventSequence(ctx, inputs)
	require.Error(t, err)

	records, err := backing.Events.Get(ctx, escore.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, records, "no record from an aborted sequence should be committed")
}

func TestAddEventSequenceCommitsAllOnSuccess(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	inputs := []escore.NewEventInput{
		{Type: "user:created", Stream: "user:1"},
		{Type: "user:name-set", Stream: "user:1", Data: map[string]any{"name": "ada"}},
	}

	ids, err := store.AddEventSequence(ctx, inputs)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	records, err := store.GetByStream(ctx, "user:1", escore.GetOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "user:created", records[0].Type)
	assert.Equal(t, "user:name-set", records[1].Type)
}

func TestReplayDoesNotReinsert(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()

	id, err := store.AddEvent(ctx, escore.NewEventInput{Type: "user:created", Stream: "user:1"})
	require.NoError(t, err)

	var replayHydrated []bool
	record, err := store.GetByID(ctx, id)
	require.NoError(t, err)

	store2 := escore.New(backing.Events, backing.Contexts, backing.Snapshots,
		[]string{"user:created", "user:name-set", "user:email-set"}, testValidators(t),
		escore.WithHooks(escore.Hooks{
			EventInserted: func(_ escore.EventRecord, existing, hydrated, outdated bool) {
				replayHydrated = append(replayHydrated, hydrated)
			},
		}))
	err = store2.Replay(ctx, []escore.EventRecord{record})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, replayHydrated)

	all, err := backing.Events.Get(ctx, escore.GetOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "Replay must never insert, only fan out")
}

func TestValidationErrorSurfacesFromPushEvent(t *testing.T) {
	files := []escore.SchemaFile{}
	f := escore.SchemaFile{}
	f.Event.Type = "user:created"
	f.Event.Data = []byte(`{"type": "object", "required": ["name"]}`)
	files = append(files, f)
	registry, err := escore.LoadSchemaSet(files)
	require.NoError(t, err)

	backing := mem.New()
	store := escore.New(backing.Events, backing.Contexts, backing.Snapshots, []string{"user:created"}, registry)

	_, err = store.AddEvent(context.Background(), escore.NewEventInput{Type: "user:created", Stream: "user:1"})
	require.Error(t, err)
	var ve *escore.ValidationError
	assert.ErrorAs(t, err, &ve)
}
