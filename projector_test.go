package escore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	escore "github.com/corvusdb/escore"
)

func TestProjectorOnFiresForHydratedAndFresh(t *testing.T) {
	projector := escore.NewProjector(nil)
	var calls []bool // one entry per handler call
	projector.On("user:created", func(_ context.Context, record escore.EventRecord) error {
		calls = append(calls, true)
		return nil
	})

	record := escore.EventRecord{ID: "1", Type: "user:created"}
	projector.Project(context.Background(), record, false, false, nil)
	projector.Project(context.Background(), record, true, false, nil)

	assert.Len(t, calls, 2)
}

func TestProjectorOnSkipsOutdatedUnlessOptedIn(t *testing.T) {
	projector := escore.NewProjector(nil)
	var fired int
	projector.On("user:created", func(_ context.Context, record escore.EventRecord) error {
		fired++
		return nil
	})

	record := escore.EventRecord{ID: "1", Type: "user:created"}
	projector.Project(context.Background(), record, false, true, nil)
	assert.Equal(t, 0, fired)
}

func TestProjectorOnIncludeOutdatedStillFires(t *testing.T) {
	projector := escore.NewProjector(nil)
	var fired int
	projector.On("user:created", func(_ context.Context, record escore.EventRecord) error {
		fired++
		return nil
	}, escore.IncludeOutdated())

	record := escore.EventRecord{ID: "1", Type: "user:created"}
	projector.Project(context.Background(), record, false, true, nil)
	assert.Equal(t, 1, fired)
}

func TestProjectorOnceOnlyFiresForFreshNonOutdated(t *testing.T) {
	projector := escore.NewProjector(nil)
	var fired int
	projector.Once("user:created", func(_ context.Context, record escore.EventRecord) error {
		fired++
		return nil
	})

	record := escore.EventRecord{ID: "1", Type: "user:created"}
	projector.Project(context.Background(), record, true, false, nil) // hydrated: skip
	projector.Project(context.Background(), record, false, true, nil) // outdated: skip
	projector.Project(context.Background(), record, false, false, nil) // fresh: fires

	assert.Equal(t, 1, fired)
}

func TestProjectorDuplicateOnRegistrationPanics(t *testing.T) {
	projector := escore.NewProjector(nil)
	projector.On("user:created", func(context.Context, escore.EventRecord) error { return nil })

	assert.Panics(t, func() {
		projector.On("user:created", func(context.Context, escore.EventRecord) error { return nil })
	})
}

func TestProjectorDuplicateOnceRegistrationPanics(t *testing.T) {
	projector := escore.NewProjector(nil)
	projector.Once("user:created", func(context.Context, escore.EventRecord) error { return nil })

	assert.Panics(t, func() {
		projector.Once("user:created", func(context.Context, escore.EventRecord) error { return nil })
	})
}

func TestProjectorHandlerErrorRoutesToOnError(t *testing.T) {
	projector := escore.NewProjector(nil)
	boom := errors.New("boom")
	projector.On("user:created", func(context.Context, escore.EventRecord) error { return boom })

	var got error
	projector.Project(context.Background(), escore.EventRecord{Type: "user:created"}, false, false, func(err error) {
		got = err
	})

	require.Error(t, got)
	var handlerErr *escore.HandlerError
	require.ErrorAs(t, got, &handlerErr)
	assert.ErrorIs(t, handlerErr, boom)
}

func TestProjectorOutdatedHookFires(t *testing.T) {
	var hookCalls int
	projector := escore.NewProjector(func(record escore.EventRecord, outdated bool) {
		hookCalls++
		assert.True(t, outdated)
	})

	projector.Project(context.Background(), escore.EventRecord{Type: "user:created"}, false, true, nil)
	assert.Equal(t, 1, hookCalls)
}
