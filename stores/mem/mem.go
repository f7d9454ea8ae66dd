// Package mem is an in-memory implementation of escore's three storage
// providers. It is concurrency-safe and suitable for tests, prototypes,
// and local runs — events, contexts, and snapshots are kept in-process
// and lost on restart, the same trade-off the teacher's mem.Store made.
package mem

import (
	"context"
	"sort"
	"sync"

	escore "github.com/corvusdb/escore"
)

// Store bundles the three in-memory providers. Each field is usable on
// its own wherever an escore.EventProvider/ContextProvider/
// SnapshotProvider is expected; Store just keeps one New() call for the
// common case of wiring all three to the same escore.Store.
type Store struct {
	Events    *Events
	Contexts  *Contexts
	Snapshots *Snapshots
}

// New creates a fresh, empty in-memory Store.
func New() *Store {
	return &Store{
		Events:    NewEvents(),
		Contexts:  NewContexts(),
		Snapshots: NewSnapshots(),
	}
}

// Events is an in-memory escore.EventProvider.
type Events struct {
	mu       sync.RWMutex
	byID     map[string]escore.EventRecord
	byStream map[string][]escore.EventRecord
}

// NewEvents creates an empty Events provider.
func NewEvents() *Events {
	return &Events{
		byID:     make(map[string]escore.EventRecord),
		byStream: make(map[string][]escore.EventRecord),
	}
}

// Insert appends one record, failing with escore.ErrIDCollision or
// escore.ErrStreamCreatedCollision on the id or (stream, created)
// unique index respectively.
func (e *Events) Insert(_ context.Context, record escore.EventRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(record)
}

func (e *Events) insertLocked(record escore.EventRecord) error {
	if _, exists := e.byID[record.ID]; exists {
		return escore.ErrIDCollision
	}
	for _, existing := range e.byStream[record.Stream] {
		if existing.Created == record.Created {
			return escore.ErrStreamCreatedCollision
		}
	}

	e.byID[record.ID] = record
	e.byStream[record.Stream] = append(e.byStream[record.Stream], record)
	return nil
}

// InsertMany appends records atomically: the whole batch is checked
// against the unique indexes (including against itself) before
// anything is written.
func (e *Events) InsertMany(_ context.Context, records []escore.EventRecord, _ int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seenIDs := make(map[string]struct{}, len(records))
	seenCreated := make(map[string]map[string]struct{})

	for _, record := range records {
		if _, exists := e.byID[record.ID]; exists {
			return escore.ErrIDCollision
		}
		if _, dup := seenIDs[record.ID]; dup {
			return escore.ErrIDCollision
		}
		seenIDs[record.ID] = struct{}{}

		for _, existing := range e.byStream[record.Stream] {
			if existing.Created == record.Created {
				return escore.ErrStreamCreatedCollision
			}
		}
		if seenCreated[record.Stream] == nil {
			seenCreated[record.Stream] = make(map[string]struct{})
		}
		if _, dup := seenCreated[record.Stream][record.Created]; dup {
			return escore.ErrStreamCreatedCollision
		}
		seenCreated[record.Stream][record.Created] = struct{}{}
	}

	for _, record := range records {
		e.byID[record.ID] = record
		e.byStream[record.Stream] = append(e.byStream[record.Stream], record)
	}
	return nil
}

// GetByID returns the record with the given id, or *escore.NotFoundError.
func (e *Events) GetByID(_ context.Context, id string) (escore.EventRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	record, ok := e.byID[id]
	if !ok {
		return escore.EventRecord{}, &escore.NotFoundError{Kind: "record", Key: id}
	}
	return record, nil
}

// Get returns records across every stream, ordered by (created, id).
func (e *Events) Get(_ context.Context, opts escore.GetOptions) ([]escore.EventRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	all := make([]escore.EventRecord, 0, len(e.byID))
	for _, records := range e.byStream {
		all = append(all, records...)
	}
	return applyOptions(all, opts), nil
}

// GetByStream returns one stream's records, ordered by (created, id).
func (e *Events) GetByStream(_ context.Context, stream string, opts escore.GetOptions) ([]escore.EventRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	records := append([]escore.EventRecord(nil), e.byStream[stream]...)
	return applyOptions(records, opts), nil
}

// GetByStreams returns several streams' records, merged and ordered by
// (created, id).
func (e *Events) GetByStreams(_ context.Context, streams []string, opts escore.GetOptions) ([]escore.EventRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var merged []escore.EventRecord
	for _, stream := range streams {
		merged = append(merged, e.byStream[stream]...)
	}
	return applyOptions(merged, opts), nil
}

// CheckOutdated reports whether a record exists with the same stream
// and type and a strictly greater created.
func (e *Events) CheckOutdated(_ context.Context, in escore.CheckOutdatedInput) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, record := range e.byStream[in.Stream] {
		if record.Type == in.Type && record.Created > in.Created {
			return true, nil
		}
	}
	return false, nil
}

func applyOptions(records []escore.EventRecord, opts escore.GetOptions) []escore.EventRecord {
	filtered := records[:0:0]
	for _, record := range records {
		if len(opts.Filter.Types) > 0 && !containsString(opts.Filter.Types, record.Type) {
			continue
		}
		if opts.Cursor != "" {
			if opts.Direction == escore.Descending {
				if !(record.Created < opts.Cursor) {
					continue
				}
			} else if !(record.Created > opts.Cursor) {
				continue
			}
		}
		filtered = append(filtered, record)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Created != filtered[j].Created {
			if opts.Direction == escore.Descending {
				return filtered[i].Created > filtered[j].Created
			}
			return filtered[i].Created < filtered[j].Created
		}
		if opts.Direction == escore.Descending {
			return filtered[i].ID > filtered[j].ID
		}
		return filtered[i].ID < filtered[j].ID
	})

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// Contexts is an in-memory escore.ContextProvider: an append-only log
// of ops per key, replayed on read.
type Contexts struct {
	mu  sync.RWMutex
	ops map[string][]escore.ContextOp
}

// NewContexts creates an empty Contexts provider.
func NewContexts() *Contexts {
	return &Contexts{ops: make(map[string][]escore.ContextOp)}
}

// Handle applies one context insert/remove entry.
func (c *Contexts) Handle(_ context.Context, op escore.ContextOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ops[op.Key] = append(c.ops[op.Key], op)
	return nil
}

// GetByKey replays a key's ops in order and returns the distinct
// streams currently associated with it.
func (c *Contexts) GetByKey(_ context.Context, key string) ([]escore.ContextStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	present := make(map[string]bool)
	order := make([]string, 0)
	for _, op := range c.ops[key] {
		switch op.Op {
		case escore.ContextInsert:
			if !present[op.Stream] {
				order = append(order, op.Stream)
			}
			present[op.Stream] = true
		case escore.ContextRemove:
			present[op.Stream] = false
		}
	}

	out := make([]escore.ContextStream, 0, len(order))
	for _, stream := range order {
		if present[stream] {
			out = append(out, escore.ContextStream{Stream: stream})
		}
	}
	return out, nil
}

// Snapshots is an in-memory escore.SnapshotProvider: at most one row
// per (name, key), last write wins.
type Snapshots struct {
	mu   sync.RWMutex
	rows map[string]escore.SnapshotRecord
}

// NewSnapshots creates an empty Snapshots provider.
func NewSnapshots() *Snapshots {
	return &Snapshots{rows: make(map[string]escore.SnapshotRecord)}
}

func snapshotKey(name, key string) string { return name + "\x00" + key }

// Insert upserts the snapshot at (name, key).
func (s *Snapshots) Insert(_ context.Context, name, key, cursor string, state map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[snapshotKey(name, key)] = escore.SnapshotRecord{
		Name:   name,
		Key:    key,
		Cursor: cursor,
		State:  state,
		Found:  true,
	}
	return nil
}

// GetByStream returns the snapshot at (name, key), or Found=false.
func (s *Snapshots) GetByStream(_ context.Context, name, key string) (escore.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.rows[snapshotKey(name, key)]
	if !ok {
		return escore.SnapshotRecord{Found: false}, nil
	}
	return snap, nil
}

// Remove deletes the snapshot at (name, key) unconditionally.
func (s *Snapshots) Remove(_ context.Context, name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, snapshotKey(name, key))
	return nil
}

var (
	_ escore.EventProvider    = (*Events)(nil)
	_ escore.ContextProvider  = (*Contexts)(nil)
	_ escore.SnapshotProvider = (*Snapshots)(nil)
)
