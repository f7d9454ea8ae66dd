package escore

import (
	"fmt"
)

// Sentinels for errors.Is, generalizing the teacher's single
// ErrVersionConflict into the error kinds of spec.md §7. Each struct
// below satisfies Is(target error) bool against its sentinel, exactly
// the way the teacher's *VersionConflictError does for ErrVersionConflict.
var (
	ErrValidation   = fmt.Errorf("escore: validation error")
	ErrUnknownEvent = fmt.Errorf("escore: unknown event type")
	ErrConflict     = fmt.Errorf("escore: conflict")
	ErrNotFound     = fmt.Errorf("escore: not found")
	ErrHandler      = fmt.Errorf("escore: handler error")
	ErrStorage      = fmt.Errorf("escore: storage error")

	// ErrIDCollision and ErrStreamCreatedCollision are the raw signals
	// an EventProvider.Insert/InsertMany returns when it hits the id or
	// (stream, created) unique index, respectively. They sit at the
	// provider/Store boundary only: Store.PushEvent translates the
	// former into an idempotent-replay outcome and the latter into the
	// §4.4 retry-then-bump loop, so callers never see these two
	// directly — they see EventInserted{existing:true} or a
	// *ConflictError instead.
	ErrIDCollision            = fmt.Errorf("escore: id collision")
	ErrStreamCreatedCollision = fmt.Errorf("escore: stream/created collision")
)

// ValidationError reports a data/meta schema failure for one event.
type ValidationError struct {
	Type    string
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("escore: validation error on %s at %s: %s", e.Type, e.Path, e.Message)
	}
	return fmt.Sprintf("escore: validation error on %s: %s", e.Type, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnknownEventError reports a type outside the store's declared set.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("escore: unknown event type %q", e.Type)
}

func (e *UnknownEventError) Is(target error) bool { return target == ErrUnknownEvent }

// ConflictReason classifies why Store.pushEvent gave up on an insert.
type ConflictReason string

const (
	// ReasonIDCollisionDistinctPayload: Store.PushEventSequence got an id
	// collision from EventProvider.InsertMany (an id in the batch already
	// exists, or repeats within the batch). Store.PushEvent never produces
	// it: its id-collision path silently succeeds per spec §4.4 step 1.
	ReasonIDCollisionDistinctPayload ConflictReason = "id-collision-distinct-payload"
	// ReasonStreamTimestampExhausted: the (stream, created) retry budget
	// (MaxCreatedBumpAttempts) was exhausted. Store.PushEventSequence also
	// returns it, without retrying, when InsertMany reports a (stream,
	// created) collision with an already-stored row.
	ReasonStreamTimestampExhausted ConflictReason = "stream-timestamp-exhausted"
)

// ConflictError reports a (stream, created) or id conflict that could
// not be resolved within the retry budget.
type ConflictError struct {
	Stream string
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("escore: conflict on stream %s: %s", e.Stream, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError reports a lookup that found nothing where a result was
// required (e.g. EventProvider.GetByID for an unknown id).
type NotFoundError struct {
	Kind string // "record", "snapshot", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("escore: %s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// HandlerError wraps an error returned by a projector handler. It never
// fails an append (the record is already durable); it is delivered
// through hooks only (spec.md §7). Panics are not recovered, and
// contextor failures arrive as *StorageError instead.
type HandlerError struct {
	Record EventRecord
	Cause  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("escore: handler error on event %s (%s): %v", e.Record.ID, e.Record.Type, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

func (e *HandlerError) Is(target error) bool { return target == ErrHandler }

// StorageError wraps a provider-layer failure (connection, transaction
// abort, driver error).
type StorageError struct {
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("escore: storage error: %v", e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
