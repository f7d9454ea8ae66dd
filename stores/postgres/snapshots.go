package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	escore "github.com/corvusdb/escore"
)

// Snapshots is a PostgreSQL-backed escore.SnapshotProvider: at most one
// row per (name, key), upserted on every write (spec.md §6).
type Snapshots struct {
	pool *pgxpool.Pool
}

// NewSnapshots builds a Snapshots provider over an existing pool.
func NewSnapshots(pool *pgxpool.Pool) *Snapshots {
	return &Snapshots{pool: pool}
}

// Insert upserts the snapshot at (name, key).
func (s *Snapshots) Insert(ctx context.Context, name, key, cursor string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres: could not encode snapshot state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshots (name, key, cursor, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, key) DO UPDATE
		SET cursor = EXCLUDED.cursor, state = EXCLUDED.state
	`, name, key, cursor, data)
	if err != nil {
		return fmt.Errorf("postgres: could not upsert snapshot: %w", err)
	}
	return nil
}

// GetByStream returns the snapshot at (name, key), or Found=false.
func (s *Snapshots) GetByStream(ctx context.Context, name, key string) (escore.SnapshotRecord, error) {
	var (
		cursor string
		raw    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT cursor, state FROM snapshots WHERE name = $1 AND key = $2
	`, name, key).Scan(&cursor, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return escore.SnapshotRecord{Found: false}, nil
		}
		return escore.SnapshotRecord{}, fmt.Errorf("postgres: could not scan snapshot: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return escore.SnapshotRecord{}, fmt.Errorf("postgres: could not decode snapshot state: %w", err)
	}
	return escore.SnapshotRecord{Name: name, Key: key, Cursor: cursor, State: state, Found: true}, nil
}

// Remove deletes the snapshot at (name, key) unconditionally.
func (s *Snapshots) Remove(ctx context.Context, name, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE name = $1 AND key = $2`, name, key)
	if err != nil {
		return fmt.Errorf("postgres: could not remove snapshot: %w", err)
	}
	return nil
}

var _ escore.SnapshotProvider = (*Snapshots)(nil)
