package escore

import (
	"context"
	"fmt"
)

// HandlerFunc is a typed event handler registered with a Projector.
type HandlerFunc func(ctx context.Context, record EventRecord) error

// OnOption configures an "on" registration.
type OnOption func(*projectorEntry)

// IncludeOutdated opts an "on" handler into running even when the
// record being dispatched is outdated (spec.md §4.5 step 1). Without
// it, outdated records only trigger the outdated hook, not the handler.
func IncludeOutdated() OnOption {
	return func(e *projectorEntry) { e.includeOutdated = true }
}

type projectorEntry struct {
	handler         HandlerFunc
	includeOutdated bool
}

// Projector dispatches accepted records to registered typed handlers
// (spec.md §4.5). Registration happens at startup, before the store
// goes live; the dispatch table is immutable afterward (spec.md §5).
type Projector struct {
	on   map[string]*projectorEntry
	once map[string]*projectorEntry
	hook func(record EventRecord, outdated bool)
}

// NewProjector returns an empty Projector. onOutdated, if non-nil, is
// invoked once per dispatched record flagged outdated (spec.md §4.5
// step 1's "outdated hook").
func NewProjector(onOutdated func(record EventRecord, outdated bool)) *Projector {
	return &Projector{
		on:   make(map[string]*projectorEntry),
		once: make(map[string]*projectorEntry),
		hook: onOutdated,
	}
}

// On registers an exclusive handler for type: exactly one "on" handler
// may exist per type. Runs for both newly-authored and replayed/hydrated
// events. Duplicate registration is a configuration fault and panics,
// matching the teacher's build-time failure posture for misconfiguration.
func (p *Projector) On(eventType string, handler HandlerFunc, opts ...OnOption) {
	if _, exists := p.on[eventType]; exists {
		panic(fmt.Sprintf("escore: duplicate On registration for event type %q", eventType))
	}
	entry := &projectorEntry{handler: handler}
	for _, opt := range opts {
		opt(entry)
	}
	p.on[eventType] = entry
}

// Once registers a handler that fires only when a record is genuinely
// new (hydrated=false) — it never fires during Store.Replay, and it is
// always skipped for outdated records. Exactly one Once handler may
// exist per type.
func (p *Projector) Once(eventType string, handler HandlerFunc) {
	if _, exists := p.once[eventType]; exists {
		panic(fmt.Sprintf("escore: duplicate Once registration for event type %q", eventType))
	}
	p.once[eventType] = &projectorEntry{handler: handler}
}

// Project dispatches one record to its registered handlers, in order:
// the "on" handler first, then the "once" handler. Handlers for a
// single record run sequentially and are awaited before Project
// returns (spec.md §4.5 step 2); a handler error is reported via
// onError and does not prevent the next handler from running
// (spec.md §4.5 step 3).
func (p *Projector) Project(ctx context.Context, record EventRecord, hydrated, outdated bool, onError func(err error)) {
	if outdated && p.hook != nil {
		p.hook(record, true)
	}

	if entry, ok := p.on[record.Type]; ok {
		if !outdated || entry.includeOutdated {
			if err := entry.handler(ctx, record); err != nil {
				reportHandlerError(record, err, onError)
			}
		}
	}

	if entry, ok := p.once[record.Type]; ok && !hydrated && !outdated {
		if err := entry.handler(ctx, record); err != nil {
			reportHandlerError(record, err, onError)
		}
	}
}

func reportHandlerError(record EventRecord, err error, onError func(err error)) {
	wrapped := &HandlerError{Record: record, Cause: err}
	if onError != nil {
		onError(wrapped)
	}
}
