package escore

import (
	"context"
)

// Direction controls the order get/getByStream/getByStreams return
// records in.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// GetFilter narrows a read to a subset of declared event types. A nil
// or empty Types means "no filter".
type GetFilter struct {
	Types []string
}

// GetOptions are the options shared by get/getByStream/getByStreams
// (spec.md §4.3 EventProvider).
type GetOptions struct {
	Filter GetFilter
	// Cursor is compared strictly: > when Direction is Ascending,
	// < when Direction is Descending.
	Cursor    string
	Direction Direction
	// Limit caps the number of returned records; zero means unlimited.
	Limit int
}

// CheckOutdatedInput is the probe input for EventProvider.CheckOutdated.
type CheckOutdatedInput struct {
	Stream  string
	Type    string
	Created string
}

// EventProvider persists and queries the events table (spec.md §4.3).
//
// Implementations must be safe for concurrent callers; the façade
// (Store) is responsible for transactional composition across
// EventProvider/ContextProvider/SnapshotProvider calls (spec.md §4.4).
type EventProvider interface {
	// Insert appends one record. It fails with ErrIDCollision on an id
	// unique-index violation and with ErrStreamCreatedCollision on a
	// (stream, created) one.
	Insert(ctx context.Context, record EventRecord) error

	// InsertMany appends records atomically: all-or-nothing over the
	// whole set, batched internally in groups of at most batchSize.
	InsertMany(ctx context.Context, records []EventRecord, batchSize int) error

	// GetByID returns the record with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (EventRecord, error)

	// Get returns records across all streams, ordered by (created, id).
	Get(ctx context.Context, opts GetOptions) ([]EventRecord, error)

	// GetByStream returns records for one stream, ordered by (created, id).
	GetByStream(ctx context.Context, stream string, opts GetOptions) ([]EventRecord, error)

	// GetByStreams returns records across several streams, merged and
	// ordered by (created, id) as if they were a single stream.
	GetByStreams(ctx context.Context, streams []string, opts GetOptions) ([]EventRecord, error)

	// CheckOutdated reports whether any record exists with the same
	// stream and type and a strictly greater created.
	CheckOutdated(ctx context.Context, in CheckOutdatedInput) (bool, error)
}

// ContextOp is one entry applied by ContextProvider.Handle.
type ContextOp struct {
	Key    string
	Op     ContextOpKind
	Stream string
}

type ContextOpKind string

const (
	ContextInsert ContextOpKind = "insert"
	ContextRemove ContextOpKind = "remove"
)

// ContextStream is one distinct stream currently associated with a key.
type ContextStream struct {
	Stream string
}

// ContextProvider persists and queries the contexts table (spec.md §4.3).
// The table is append-only; the logical set of (key -> {stream}) is the
// sequential replay of ops.
type ContextProvider interface {
	// Handle applies one insert or remove entry.
	Handle(ctx context.Context, op ContextOp) error

	// GetByKey returns the distinct streams currently associated with
	// key, derived by replaying its ops in insertion order.
	GetByKey(ctx context.Context, key string) ([]ContextStream, error)
}

// SnapshotRecord is a cached reducer result with a resumption cursor
// (spec.md §3 Snapshot).
type SnapshotRecord struct {
	Name   string
	Key    string
	Cursor string
	State  map[string]any
	Found  bool
}

// SnapshotProvider persists and queries the snapshots table (spec.md §4.3).
// At most one row exists per (name, key); Insert replaces any existing
// row (upsert).
type SnapshotProvider interface {
	// Insert upserts the snapshot at (name, key).
	Insert(ctx context.Context, name, key, cursor string, state map[string]any) error

	// GetByStream returns the snapshot at (name, key), or Found=false.
	GetByStream(ctx context.Context, name, key string) (SnapshotRecord, error)

	// Remove deletes the snapshot at (name, key) unconditionally.
	Remove(ctx context.Context, name, key string) error
}
