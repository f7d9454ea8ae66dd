package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	escore "github.com/corvusdb/escore"
)

// Contexts is a SQLite-backed escore.ContextProvider: an append-only
// log of ops, replayed on read (spec.md §6).
type Contexts struct {
	db *sql.DB
}

// Handle appends one insert/remove entry.
func (c *Contexts) Handle(ctx context.Context, op escore.ContextOp) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO contexts (key, op, stream, created)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	`, op.Key, string(op.Op), op.Stream)
	if err != nil {
		return fmt.Errorf("sqlite: could not append context op: %w", err)
	}
	return nil
}

// GetByKey replays a key's ops in insertion order and returns the
// distinct streams currently associated with it.
func (c *Contexts) GetByKey(ctx context.Context, key string) ([]escore.ContextStream, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT op, stream FROM contexts WHERE key = ? ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: could not query context ops: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	order := make([]string, 0)
	for rows.Next() {
		var op, stream string
		if err := rows.Scan(&op, &stream); err != nil {
			return nil, fmt.Errorf("sqlite: could not scan context op: %w", err)
		}
		switch escore.ContextOpKind(op) {
		case escore.ContextInsert:
			if !present[stream] {
				order = append(order, stream)
			}
			present[stream] = true
		case escore.ContextRemove:
			present[stream] = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]escore.ContextStream, 0, len(order))
	for _, stream := range order {
		if present[stream] {
			out = append(out, escore.ContextStream{Stream: stream})
		}
	}
	return out, nil
}

var _ escore.ContextProvider = (*Contexts)(nil)
