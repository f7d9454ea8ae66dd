package escore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReducerKind selects whether a Reducer folds one stream's events or
// one context key's fanned-in events (spec.md §4.7).
type ReducerKind string

const (
	ReducerStream  ReducerKind = "stream"
	ReducerContext ReducerKind = "context"
)

// SnapshotMode controls whether Reduce upserts a snapshot after every
// fold (spec.md §4.7 step 6).
type SnapshotMode string

const (
	SnapshotManual SnapshotMode = "manual"
	SnapshotAuto   SnapshotMode = "auto"
)

// Reducer is an immutable left-fold descriptor over a filtered event
// sequence (spec.md §4.7). Fold is a pure function; Reduce is the free
// function that drives it because Go methods cannot carry their own
// type parameters independent of the receiver's.
type Reducer[S any] struct {
	Name    string
	Kind    ReducerKind
	Filter  GetFilter
	Initial S
	Fold    func(events []EventRecord, state S) S
}

// ReducerEngine binds the providers a Reduce call needs together with
// the store's configured SnapshotMode.
type ReducerEngine struct {
	events    EventProvider
	contexts  ContextProvider
	snapshots SnapshotProvider
	mode      SnapshotMode
}

// NewReducerEngine builds a ReducerEngine over the given providers.
func NewReducerEngine(events EventProvider, contexts ContextProvider, snapshots SnapshotProvider, mode SnapshotMode) *ReducerEngine {
	return &ReducerEngine{events: events, contexts: contexts, snapshots: snapshots, mode: mode}
}

// Reduce folds the events of a stream or context key into state,
// resuming from any existing snapshot (spec.md §4.7 steps 1-6).
//
// Returns found=false when there is neither a snapshot nor any events
// — the reduction is genuinely undefined, per spec.md §4.7 step 3.
func Reduce[S any](ctx context.Context, engine *ReducerEngine, key string, reducer Reducer[S]) (state S, found bool, err error) {
	snap, err := engine.snapshots.GetByStream(ctx, reducer.Name, key)
	if err != nil {
		return state, false, &StorageError{Cause: err}
	}

	cursor := ""
	hasSnapshot := false
	if snap.Found {
		if err := decodeState(snap.State, &state); err != nil {
			return state, false, err
		}
		cursor = snap.Cursor
		hasSnapshot = true
	} else {
		state = reducer.Initial
	}

	events, err := fetchReducerEvents(ctx, engine, key, reducer, cursor)
	if err != nil {
		return state, false, err
	}

	if len(events) == 0 {
		if !hasSnapshot {
			var zero S
			return zero, false, nil
		}
		return state, true, nil
	}

	state = reducer.Fold(events, state)

	if engine.mode == SnapshotAuto {
		last := events[len(events)-1]
		if err := engine.writeSnapshot(ctx, reducer.Name, key, last.Created, state); err != nil {
			return state, true, err
		}
	}

	return state, true, nil
}

// CreateSnapshot force-computes a reducer from scratch over every
// matching event, ignoring any existing snapshot, and writes the
// result (spec.md §4.7 createSnapshot). When no event matches, it
// returns reducer.Initial and writes nothing.
func CreateSnapshot[S any](ctx context.Context, engine *ReducerEngine, key string, reducer Reducer[S]) (S, error) {
	events, err := fetchReducerEvents(ctx, engine, key, reducer, "")
	if err != nil {
		var zero S
		return zero, err
	}

	state := reducer.Initial
	if len(events) == 0 {
		return state, nil
	}
	state = reducer.Fold(events, state)

	last := events[len(events)-1]
	if err := engine.writeSnapshot(ctx, reducer.Name, key, last.Created, state); err != nil {
		return state, err
	}
	return state, nil
}

// DeleteSnapshot removes the snapshot at (name, key) unconditionally.
func DeleteSnapshot(ctx context.Context, engine *ReducerEngine, name, key string) error {
	if err := engine.snapshots.Remove(ctx, name, key); err != nil {
		return &StorageError{Cause: err}
	}
	return nil
}

func fetchReducerEvents[S any](ctx context.Context, engine *ReducerEngine, key string, reducer Reducer[S], cursor string) ([]EventRecord, error) {
	opts := GetOptions{Filter: reducer.Filter, Cursor: cursor, Direction: Ascending}

	switch reducer.Kind {
	case ReducerStream:
		events, err := engine.events.GetByStream(ctx, key, opts)
		if err != nil {
			return nil, &StorageError{Cause: err}
		}
		return events, nil
	case ReducerContext:
		streams, err := engine.contexts.GetByKey(ctx, key)
		if err != nil {
			return nil, &StorageError{Cause: err}
		}
		names := make([]string, len(streams))
		for i, s := range streams {
			names[i] = s.Stream
		}
		events, err := engine.events.GetByStreams(ctx, names, opts)
		if err != nil {
			return nil, &StorageError{Cause: err}
		}
		return events, nil
	default:
		return nil, fmt.Errorf("escore: unknown reducer kind %q", reducer.Kind)
	}
}

func (e *ReducerEngine) writeSnapshot(ctx context.Context, name, key, cursor string, state any) error {
	encoded, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := e.snapshots.Insert(ctx, name, key, cursor, encoded); err != nil {
		return &StorageError{Cause: err}
	}
	return nil
}

func encodeState(state any) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("escore: could not encode reducer state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("escore: reducer state did not encode as a JSON object: %w", err)
	}
	return m, nil
}

func decodeState[S any](m map[string]any, out *S) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("escore: could not remarshal snapshot state: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("escore: could not decode snapshot state: %w", err)
	}
	return nil
}
