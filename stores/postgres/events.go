// Package postgres implements escore's three storage providers on top
// of PostgreSQL via jackc/pgx, generalizing the teacher's single-table
// pgx event store into the three-table layout of spec.md §6.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	escore "github.com/corvusdb/escore"
)

// Events is a PostgreSQL-backed escore.EventProvider.
type Events struct {
	pool *pgxpool.Pool
}

// NewEvents builds an Events provider over an existing pool. Schema
// management (see Schema) is the caller's responsibility.
func NewEvents(pool *pgxpool.Pool) *Events {
	return &Events{pool: pool}
}

// Insert appends one record.
func (e *Events) Insert(ctx context.Context, record escore.EventRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("postgres: could not encode data: %w", err)
	}
	meta, err := json.Marshal(record.Meta)
	if err != nil {
		return fmt.Errorf("postgres: could not encode meta: %w", err)
	}

	_, err = e.pool.Exec(ctx, `
		INSERT INTO events (id, stream, type, data, meta, created, recorded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.Stream, record.Type, data, meta, record.Created, record.Recorded)
	if err != nil {
		return translateInsertErr(err)
	}
	return nil
}

// InsertMany appends records atomically inside one transaction,
// batching the underlying statements in groups of at most batchSize.
func (e *Events) InsertMany(ctx context.Context, records []escore.EventRecord, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(records)
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := &pgx.Batch{}
		for _, record := range records[start:end] {
			data, err := json.Marshal(record.Data)
			if err != nil {
				return fmt.Errorf("postgres: could not encode data: %w", err)
			}
			meta, err := json.Marshal(record.Meta)
			if err != nil {
				return fmt.Errorf("postgres: could not encode meta: %w", err)
			}
			batch.Queue(`
				INSERT INTO events (id, stream, type, data, meta, created, recorded)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, record.ID, record.Stream, record.Type, data, meta, record.Created, record.Recorded)
		}

		br := tx.SendBatch(ctx, batch)
		for range records[start:end] {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return translateInsertErr(err)
			}
		}
		if err := br.Close(); err != nil {
			return translateInsertErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: could not commit transaction: %w", err)
	}
	return nil
}

func translateInsertErr(err error) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("postgres: could not insert event: %w", err)
	}
	// The constraint name tells us which unique index was hit: the
	// primary key is the id index, anything else is (stream, created) —
	// the one Store retries against.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "events_pkey" {
		return escore.ErrIDCollision
	}
	return escore.ErrStreamCreatedCollision
}

// GetByID returns the record with the given id.
func (e *Events) GetByID(ctx context.Context, id string) (escore.EventRecord, error) {
	row := e.pool.QueryRow(ctx, `
		SELECT id, stream, type, data, meta, created, recorded FROM events WHERE id = $1
	`, id)
	record, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return escore.EventRecord{}, &escore.NotFoundError{Kind: "record", Key: id}
		}
		return escore.EventRecord{}, fmt.Errorf("postgres: could not scan event: %w", err)
	}
	return record, nil
}

// Get returns records across all streams.
func (e *Events) Get(ctx context.Context, opts escore.GetOptions) ([]escore.EventRecord, error) {
	query, args := buildGetQuery(`SELECT id, stream, type, data, meta, created, recorded FROM events`, nil, opts)
	return e.query(ctx, query, args)
}

// GetByStream returns one stream's records.
func (e *Events) GetByStream(ctx context.Context, stream string, opts escore.GetOptions) ([]escore.EventRecord, error) {
	query, args := buildGetQuery(`SELECT id, stream, type, data, meta, created, recorded FROM events`, []string{stream}, opts)
	return e.query(ctx, query, args)
}

// GetByStreams returns records across several streams, merged.
func (e *Events) GetByStreams(ctx context.Context, streams []string, opts escore.GetOptions) ([]escore.EventRecord, error) {
	query, args := buildGetQuery(`SELECT id, stream, type, data, meta, created, recorded FROM events`, streams, opts)
	return e.query(ctx, query, args)
}

func (e *Events) query(ctx context.Context, query string, args []any) ([]escore.EventRecord, error) {
	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: could not query events: %w", err)
	}
	defer rows.Close()

	var out []escore.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: could not scan event: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// CheckOutdated reports whether a record exists with the same stream
// and type and a strictly greater created.
func (e *Events) CheckOutdated(ctx context.Context, in escore.CheckOutdatedInput) (bool, error) {
	var exists bool
	err := e.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events WHERE stream = $1 AND type = $2 AND created > $3
		)
	`, in.Stream, in.Type, in.Created).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: could not check outdatedness: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (escore.EventRecord, error) {
	var (
		record  escore.EventRecord
		dataRaw []byte
		metaRaw []byte
	)
	if err := row.Scan(&record.ID, &record.Stream, &record.Type, &dataRaw, &metaRaw, &record.Created, &record.Recorded); err != nil {
		return escore.EventRecord{}, err
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &record.Data); err != nil {
			return escore.EventRecord{}, fmt.Errorf("postgres: could not decode data: %w", err)
		}
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &record.Meta); err != nil {
			return escore.EventRecord{}, fmt.Errorf("postgres: could not decode meta: %w", err)
		}
	}
	return record, nil
}

// buildGetQuery appends stream/type/cursor filters and ordering to a
// base SELECT. streams == nil means no stream filter (Get); a single
// entry means GetByStream; several means GetByStreams.
func buildGetQuery(base string, streams []string, opts escore.GetOptions) (string, []any) {
	query := base
	var args []any
	where := []string{}

	if streams != nil {
		args = append(args, streams)
		where = append(where, fmt.Sprintf("stream = ANY($%d)", len(args)))
	}
	if len(opts.Filter.Types) > 0 {
		args = append(args, opts.Filter.Types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if opts.Cursor != "" {
		args = append(args, opts.Cursor)
		if opts.Direction == escore.Descending {
			where = append(where, fmt.Sprintf("created < $%d", len(args)))
		} else {
			where = append(where, fmt.Sprintf("created > $%d", len(args)))
		}
	}

	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	if opts.Direction == escore.Descending {
		query += " ORDER BY created DESC, id DESC"
	} else {
		query += " ORDER BY created ASC, id ASC"
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}

var _ escore.EventProvider = (*Events)(nil)
