// Package sqlite implements escore's three storage providers on top of
// an embedded, pure-Go SQLite engine (modernc.org/sqlite), giving the
// provider contracts a second, embedded (serverless) backend alongside
// stores/postgres — demonstrating that spec.md §4.3's contracts are
// genuinely backend-agnostic.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store bundles the three SQLite-backed providers over one *sql.DB.
type Store struct {
	Events    *Events
	Contexts  *Contexts
	Snapshots *Snapshots

	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and
// applies Schema. path may be ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: could not open %s: %w", path, err)
	}
	// SQLite serializes writers at the connection-pool level; a single
	// connection avoids "database is locked" errors under concurrent
	// escore.Store callers sharing one Store.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: could not apply schema: %w", err)
	}

	return &Store{
		Events:    &Events{db: db},
		Contexts:  &Contexts{db: db},
		Snapshots: &Snapshots{db: db},
		db:        db,
	}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite wraps the sqlite3 result code in its error
	// string; there is no typed sentinel exported for constraint
	// violations, so a substring check is the idiomatic probe.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
