package escore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxCreatedBumpAttempts bounds the (stream, created) conflict retry
// of spec.md §4.4 step 4. Exceeding it fails with
// ConflictError{Reason: ReasonStreamTimestampExhausted}.
const MaxCreatedBumpAttempts = 16

// EventStoreOps is the append/replay/read surface the façade exposes,
// implemented by both the top-level Store and the transaction-scoped
// view PushEventSequence uses internally — per the Design Note in
// spec.md §9, this avoids constructing a second full Store mid-batch.
type EventStoreOps interface {
	PushEvent(ctx context.Context, record EventRecord, hydrated bool) (string, error)
	PushEventSequence(ctx context.Context, records []EventRecord) ([]string, error)
	AddEvent(ctx context.Context, input NewEventInput) (string, error)
	AddEventSequence(ctx context.Context, inputs []NewEventInput) ([]string, error)
	Replay(ctx context.Context, records []EventRecord) error
	HasEvent(eventType string) bool
	GetValidator() *ValidatorRegistry
}

// Store is the event-store façade (spec.md §4.8): it coordinates the
// validator registry, the three storage providers, the projector, and
// the contextor behind the append protocol of §4.4.
type Store struct {
	events    EventProvider
	contexts  ContextProvider
	snapshots SnapshotProvider

	declared   map[string]struct{}
	validators *ValidatorRegistry

	projector *Projector
	contextor *Contextor

	hooks        Hooks
	logger       zerolog.Logger
	snapshotMode SnapshotMode

	// fanOutEnabled is false only for the transaction-scoped view used
	// inside PushEventSequence's preparation phase: that phase must
	// never run handlers before the batch actually commits.
	fanOutEnabled bool
}

var _ EventStoreOps = (*Store)(nil)

// New constructs a Store over the given providers, declared event
// union, and validator registry. Every declared event type must have a
// registered validator — a missing one is a configuration fault and
// panics (spec.md §4.2), the same build-time failure posture the
// projector/contextor registration methods use for duplicate handlers.
//
// The returned Store's Projector() and Contextor() accessors are for
// registering handlers before the store is used; per the Design Note
// in spec.md §9, that dispatch table is meant to be built once, at
// startup, and treated as immutable afterward.
func New(events EventProvider, contexts ContextProvider, snapshots SnapshotProvider, declaredEvents []string, validators *ValidatorRegistry, opts ...Option) *Store {
	declared := make(map[string]struct{}, len(declaredEvents))
	for _, t := range declaredEvents {
		if !validators.HasValidator(t) {
			panic(fmt.Sprintf("escore: no validator registered for declared event type %q", t))
		}
		declared[t] = struct{}{}
	}

	s := &Store{
		events:        events,
		contexts:      contexts,
		snapshots:     snapshots,
		declared:      declared,
		validators:    validators,
		logger:        zerolog.Nop(),
		snapshotMode:  SnapshotManual,
		fanOutEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.projector = NewProjector(nil)
	s.contextor = NewContextor(contexts)

	return s
}

// Projector returns the store's Projector, for handler registration.
func (s *Store) Projector() *Projector { return s.projector }

// Contextor returns the store's Contextor, for reducer registration.
func (s *Store) Contextor() *Contextor { return s.contextor }

// ReducerEngine returns a ReducerEngine bound to this store's
// providers and configured SnapshotMode.
func (s *Store) ReducerEngine() *ReducerEngine {
	return NewReducerEngine(s.events, s.contexts, s.snapshots, s.snapshotMode)
}

// HasEvent reports whether eventType is in the store's declared union.
func (s *Store) HasEvent(eventType string) bool {
	_, ok := s.declared[eventType]
	return ok
}

// GetValidator returns the store's validator registry.
func (s *Store) GetValidator() *ValidatorRegistry { return s.validators }

// GetByID returns a single record by id.
func (s *Store) GetByID(ctx context.Context, id string) (EventRecord, error) {
	return s.events.GetByID(ctx, id)
}

// Get returns records across all streams, ordered by (created, id).
func (s *Store) Get(ctx context.Context, opts GetOptions) ([]EventRecord, error) {
	return s.events.Get(ctx, opts)
}

// GetByStream returns one stream's records, ordered by (created, id).
func (s *Store) GetByStream(ctx context.Context, stream string, opts GetOptions) ([]EventRecord, error) {
	return s.events.GetByStream(ctx, stream, opts)
}

// GetByStreams returns several streams' records merged and ordered by
// (created, id).
func (s *Store) GetByStreams(ctx context.Context, streams []string, opts GetOptions) ([]EventRecord, error) {
	return s.events.GetByStreams(ctx, streams, opts)
}

// GetByContext returns the union of records across every stream
// currently associated with a context key (spec.md §8 scenario 5).
func (s *Store) GetByContext(ctx context.Context, key string, opts GetOptions) ([]EventRecord, error) {
	streams, err := s.contexts.GetByKey(ctx, key)
	if err != nil {
		return nil, &StorageError{Cause: err}
	}
	names := make([]string, len(streams))
	for i, cs := range streams {
		names[i] = cs.Stream
	}
	return s.events.GetByStreams(ctx, names, opts)
}

// AddEvent builds a record via NewEvent and pushes it as a newly
// authored (hydrated=false) event.
func (s *Store) AddEvent(ctx context.Context, input NewEventInput) (string, error) {
	return s.PushEvent(ctx, NewEvent(input), false)
}

// AddEventSequence builds records via NewEvent and pushes them as one
// sequence.
func (s *Store) AddEventSequence(ctx context.Context, inputs []NewEventInput) ([]string, error) {
	records := make([]EventRecord, len(inputs))
	for i, in := range inputs {
		records[i] = NewEvent(in)
	}
	return s.PushEventSequence(ctx, records)
}

// PushEvent runs the append protocol of spec.md §4.4 for one record.
func (s *Store) PushEvent(ctx context.Context, record EventRecord, hydrated bool) (string, error) {
	if existing, err := s.events.GetByID(ctx, record.ID); err == nil {
		s.hooks.fireInserted(existing, true, hydrated, false)
		return existing.ID, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", &StorageError{Cause: err}
	}

	outdated, err := s.prepareInsert(ctx, record, hydrated)
	if err != nil {
		s.hooks.fireEventError(record, err)
		return "", err
	}

	cur := record
	cur.Recorded = FormatCreated(time.Now())
	for attempt := 0; ; attempt++ {
		insertErr := s.events.Insert(ctx, cur)
		if insertErr == nil {
			break
		}

		if errors.Is(insertErr, ErrIDCollision) {
			existing, gerr := s.events.GetByID(ctx, cur.ID)
			if gerr != nil {
				return "", &StorageError{Cause: gerr}
			}
			s.hooks.fireInserted(existing, true, hydrated, false)
			return existing.ID, nil
		}

		if errors.Is(insertErr, ErrStreamCreatedCollision) {
			if attempt >= MaxCreatedBumpAttempts {
				s.logger.Warn().
					Str("event_id", cur.ID).
					Str("stream", cur.Stream).
					Msg("(stream, created) retry budget exhausted")
				return "", &ConflictError{Stream: cur.Stream, Reason: ReasonStreamTimestampExhausted}
			}
			bumped, berr := bumpCreated(cur.Created)
			if berr != nil {
				return "", &StorageError{Cause: berr}
			}
			cur.Created = bumped
			continue
		}

		return "", &StorageError{Cause: insertErr}
	}

	s.commitAndFanOut(ctx, cur, hydrated, outdated)
	return cur.ID, nil
}

// PushEventSequence runs spec.md §4.4's sequence-insert protocol: every
// record is validated and prepared (steps 2-3) before any of them are
// committed; the whole set is then inserted atomically via
// EventProvider.InsertMany, and fan-out runs only for the committed
// records, after commit, in original order. The (stream, created) bump
// is applied only between records of the same batch; a collision with
// an already-stored row fails the whole sequence with a *ConflictError.
func (s *Store) PushEventSequence(ctx context.Context, records []EventRecord) ([]string, error) {
	tx := newTxStore(s)

	prepared := make([]EventRecord, len(records))
	outdatedFlags := make([]bool, len(records))
	seenCreated := make(map[string]map[string]struct{})

	for i, record := range records {
		outdated, err := tx.prepareInsert(ctx, record, false)
		if err != nil {
			s.hooks.fireEventError(record, err)
			return nil, err
		}
		outdatedFlags[i] = outdated

		cur := record
		cur.Recorded = FormatCreated(time.Now())
		for attempt := 0; ; attempt++ {
			if _, used := seenCreated[cur.Stream][cur.Created]; !used {
				break
			}
			if attempt >= MaxCreatedBumpAttempts {
				s.logger.Warn().
					Str("event_id", cur.ID).
					Str("stream", cur.Stream).
					Msg("(stream, created) retry budget exhausted")
				return nil, &ConflictError{Stream: cur.Stream, Reason: ReasonStreamTimestampExhausted}
			}
			bumped, berr := bumpCreated(cur.Created)
			if berr != nil {
				return nil, &StorageError{Cause: berr}
			}
			cur.Created = bumped
		}
		if seenCreated[cur.Stream] == nil {
			seenCreated[cur.Stream] = make(map[string]struct{})
		}
		seenCreated[cur.Stream][cur.Created] = struct{}{}
		prepared[i] = cur
	}

	if err := s.events.InsertMany(ctx, prepared, 1000); err != nil {
		if errors.Is(err, ErrIDCollision) {
			return nil, &ConflictError{Reason: ReasonIDCollisionDistinctPayload}
		}
		if errors.Is(err, ErrStreamCreatedCollision) {
			return nil, &ConflictError{Reason: ReasonStreamTimestampExhausted}
		}
		return nil, &StorageError{Cause: err}
	}

	ids := make([]string, len(prepared))
	for i, record := range prepared {
		ids[i] = record.ID
		s.commitAndFanOut(ctx, record, false, outdatedFlags[i])
	}
	return ids, nil
}

// Replay re-runs fan-out for an already-persisted record set, with
// hydrated=true and outdated=false (spec.md §4.4 replay). It never
// inserts. Replay is additive: it does not reset projector or
// contextor state on the caller's behalf (spec.md §9 Open Questions).
func (s *Store) Replay(ctx context.Context, records []EventRecord) error {
	for _, record := range records {
		s.commitAndFanOut(ctx, record, true, false)
	}
	return nil
}

// ReplayStream fetches a stream's records and replays them in order.
func (s *Store) ReplayStream(ctx context.Context, stream string, opts GetOptions) error {
	records, err := s.events.GetByStream(ctx, stream, opts)
	if err != nil {
		return &StorageError{Cause: err}
	}
	return s.Replay(ctx, records)
}

// prepareInsert runs spec.md §4.4 steps 2-3 (validate, outdatedness
// probe) for one record, without inserting or fanning out. Hydrated
// events bypass the outdatedness probe entirely and always report
// outdated=false (spec.md §4.4 step 3).
func (s *Store) prepareInsert(ctx context.Context, record EventRecord, hydrated bool) (outdated bool, err error) {
	if !s.HasEvent(record.Type) {
		return false, &UnknownEventError{Type: record.Type}
	}
	if err := s.validators.Validate(record); err != nil {
		return false, err
	}
	if hydrated {
		return false, nil
	}
	probe, err := s.events.CheckOutdated(ctx, CheckOutdatedInput{
		Stream:  record.Stream,
		Type:    record.Type,
		Created: record.Created,
	})
	if err != nil {
		return false, &StorageError{Cause: err}
	}
	return probe, nil
}

// commitAndFanOut runs the projector/contextor fan-out for a committed
// record and fires EventInserted. Cancellation observed between commit
// and fan-out is reported via PostCommitAbandon, but fan-out still runs
// to completion against a context that can no longer be cancelled by
// the caller (spec.md §5).
func (s *Store) commitAndFanOut(ctx context.Context, record EventRecord, hydrated, outdated bool) {
	if s.fanOutEnabled {
		fanOutCtx := context.WithoutCancel(ctx)
		if ctx.Err() != nil {
			s.hooks.firePostCommitAbandon(record)
			s.logger.Warn().
				Str("event_id", record.ID).
				Str("stream", record.Stream).
				Msg("post-commit abandon: caller context cancelled before fan-out")
		}
		s.runFanOut(fanOutCtx, record, hydrated, outdated)
	}
	s.hooks.fireInserted(record, false, hydrated, outdated)
}

// runFanOut concurrently invokes the contextor and the projector for
// one record, awaiting both before returning (spec.md §4.4 step 5).
func (s *Store) runFanOut(ctx context.Context, record EventRecord, hydrated, outdated bool) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.contextor.Push(gctx, record); err != nil {
			s.hooks.fireContextError(record, err)
		}
		return nil
	})

	g.Go(func() error {
		s.projector.Project(gctx, record, hydrated, outdated, func(err error) {
			s.hooks.fireProjectorError(record, err)
		})
		return nil
	})

	_ = g.Wait()
}

// txStore is the transaction-scoped view of Design Note §9: a shallow
// copy of Store with fan-out disabled, sharing the same provider
// instances. PushEventSequence uses it only for the validate+prepare
// phase, before the batch is committed via EventProvider.InsertMany.
type txStore struct {
	*Store
}

func newTxStore(s *Store) *txStore {
	view := *s
	view.fanOutEnabled = false
	return &txStore{&view}
}

var _ EventStoreOps = (*txStore)(nil)
