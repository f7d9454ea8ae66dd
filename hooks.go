package escore

// Hooks is a struct of optional callbacks, not a dynamic observer list
// — per the Design Note in spec.md §9, the source had a single hook
// object and this preserves that shape instead of growing a multi-
// subscriber event bus nothing in the spec asks for.
type Hooks struct {
	// EventInserted fires once a record is durable: existing reports
	// the spec §4.4 step-1 idempotent-replay case, hydrated/outdated
	// report the flags the append protocol computed for it.
	EventInserted func(record EventRecord, existing, hydrated, outdated bool)

	// EventError fires when a record is rejected before insert: an
	// undeclared type, a failed validation, or a failed outdatedness probe.
	EventError func(record EventRecord, err error)

	// ProjectorError fires when a projector handler returns an error.
	ProjectorError func(record EventRecord, err error)

	// ContextError fires when the context provider driven by the
	// contextor returns an error while applying a record's ops.
	ContextError func(record EventRecord, err error)

	// PostCommitAbandon fires when the caller's context is cancelled
	// between commit and fan-out (spec.md §5): fan-out still runs to
	// completion, but the cancellation is reported here.
	PostCommitAbandon func(record EventRecord)
}

func (h Hooks) fireInserted(record EventRecord, existing, hydrated, outdated bool) {
	if h.EventInserted != nil {
		h.EventInserted(record, existing, hydrated, outdated)
	}
}

func (h Hooks) fireEventError(record EventRecord, err error) {
	if h.EventError != nil {
		h.EventError(record, err)
	}
}

func (h Hooks) fireProjectorError(record EventRecord, err error) {
	if h.ProjectorError != nil {
		h.ProjectorError(record, err)
	}
}

func (h Hooks) fireContextError(record EventRecord, err error) {
	if h.ContextError != nil {
		h.ContextError(record, err)
	}
}

func (h Hooks) firePostCommitAbandon(record EventRecord) {
	if h.PostCommitAbandon != nil {
		h.PostCommitAbandon(record)
	}
}
