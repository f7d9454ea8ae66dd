package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store bundles the three PostgreSQL-backed providers over one pool.
type Store struct {
	Events    *Events
	Contexts  *Contexts
	Snapshots *Snapshots
}

// New builds a Store over an existing pool. Run Schema against the
// target database first (or fold it into the application's own
// migrations).
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Events:    NewEvents(pool),
		Contexts:  NewContexts(pool),
		Snapshots: NewSnapshots(pool),
	}
}
