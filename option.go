package escore

import (
	"github.com/rs/zerolog"
)

// Option configures a Store at construction time, following the
// teacher's functional-option pattern (mem.Option, pgx.Option) lifted
// to the façade.
type Option func(*Store)

// WithSnapshotMode sets how Reduce resumes reducers: "manual" (the
// default) never writes a snapshot on its own; "auto" upserts one after
// every fold (spec.md §4.7 step 6).
func WithSnapshotMode(mode SnapshotMode) Option {
	return func(s *Store) { s.snapshotMode = mode }
}

// WithLogger sets the zerolog.Logger used for internal diagnostics
// (PostCommitAbandon, retry-budget exhaustion). The default is
// zerolog.Nop(): a library must not log unless asked.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithHooks installs the store's Hooks struct.
func WithHooks(hooks Hooks) Option {
	return func(s *Store) { s.hooks = hooks }
}
