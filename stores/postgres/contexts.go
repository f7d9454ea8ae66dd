package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	escore "github.com/corvusdb/escore"
)

// Contexts is a PostgreSQL-backed escore.ContextProvider: an
// append-only log of ops, replayed on read (spec.md §6).
type Contexts struct {
	pool *pgxpool.Pool
}

// NewContexts builds a Contexts provider over an existing pool.
func NewContexts(pool *pgxpool.Pool) *Contexts {
	return &Contexts{pool: pool}
}

// Handle appends one insert/remove entry.
func (c *Contexts) Handle(ctx context.Context, op escore.ContextOp) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO contexts (key, op, stream, created)
		VALUES ($1, $2, $3, now()::text)
	`, op.Key, string(op.Op), op.Stream)
	if err != nil {
		return fmt.Errorf("postgres: could not append context op: %w", err)
	}
	return nil
}

// GetByKey replays a key's ops in insertion order and returns the
// distinct streams currently associated with it.
func (c *Contexts) GetByKey(ctx context.Context, key string) ([]escore.ContextStream, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT op, stream FROM contexts WHERE key = $1 ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("postgres: could not query context ops: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	order := make([]string, 0)
	for rows.Next() {
		var op, stream string
		if err := rows.Scan(&op, &stream); err != nil {
			return nil, fmt.Errorf("postgres: could not scan context op: %w", err)
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
