package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	escore "github.com/corvusdb/escore"
)

// Snapshots is a SQLite-backed escore.SnapshotProvider: at most one
// row per (name, key), upserted on every write (spec.md §6).
type Snapshots struct {
	db *sql.DB
}

// Insert upserts the snapshot at (name, key).
func (s *Snapshots) Insert(ctx context.Context, name, key, cursor string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("sqlite: could not encode snapshot state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, key, cursor, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name, key) DO UPDATE
		SET cursor = excluded.cursor, state = excluded.state
	`, name, key, cursor, data)
	if err != nil {
		return fmt.Errorf("sqlite: could not upsert snapshot: %w", err)
	}
	return nil
}

// GetByStream returns the snapshot at (name, key), or Found=false.
func (s *Snapshots) GetByStream(ctx context.Context, name, key string) (escore.SnapshotRecord, error) {
	var (
		cursor string
		raw    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor, state FROM snapshots WHERE name = ? AND key = ?
	`, name, key).Scan(&cursor, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return escore.SnapshotRecord{Found: false}, nil
		}
		return escore.SnapshotRecord{}, fmt.Errorf("sqlite: could not scan snapshot: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return escore.SnapshotRecord{}, fmt.Errorf("sqlite: could not decode snapshot state: %w", err)
	}
	return escore.SnapshotRecord{Name: name, Key: key, Cursor: cursor, State: state, Found: true}, nil
}

// Remove deletes the snapshot at (name, key) unconditionally.
func (s *Snapshots) Remove(ctx context.Context, name, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ? AND key = ?`, name, key)
	if err != nil {
		return fmt.Errorf("sqlite: could not remove snapshot: %w", err)
	}
	return nil
}

var _ escore.SnapshotProvider = (*Snapshots)(nil)
