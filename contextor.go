package escore

import (
	"context"
)

// ContextReducerFunc derives zero or more context operations from one
// event (spec.md §4.6). Reducers are registered per event type; more
// than one reducer may be registered for the same type, and all of
// them run for a matching record.
type ContextReducerFunc func(record EventRecord) []ContextOp

// Contextor maps each record to context insert/remove operations and
// applies them via a ContextProvider (spec.md §4.6). Ops are not
// transactional with the originating event insert: they live
// downstream of commit, and a failure here never rolls back the event.
type Contextor struct {
	reducers map[string][]ContextReducerFunc
	provider ContextProvider
}

// NewContextor builds a Contextor backed by provider.
func NewContextor(provider ContextProvider) *Contextor {
	return &Contextor{
		reducers: make(map[string][]ContextReducerFunc),
		provider: provider,
	}
}

// Register adds a reducer for eventType. Registration is expected to
// happen at startup, before the store goes live.
func (c *Contextor) Register(eventType string, reducer ContextReducerFunc) {
	c.reducers[eventType] = append(c.reducers[eventType], reducer)
}

// Push collects every op produced by every reducer registered for
// record.Type, in registration order, and applies them to the
// ContextProvider in that order. The first error aborts the remaining
// ops for this record and is returned to the caller (Store wraps it
// into a ContextError hook; it does not affect the event's durability).
func (c *Contextor) Push(ctx context.Context, record EventRecord) error {
	reducers, ok := c.reducers[record.Type]
	if !ok {
		return nil
	}

	for _, reduce := range reducers {
		for _, op := range reduce(record) {
			if err := c.provider.Handle(ctx, op); err != nil {
				return &StorageError{Cause: err}
			}
		}
	}
	return nil
}
