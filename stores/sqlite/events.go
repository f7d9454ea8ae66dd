package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	escore "github.com/corvusdb/escore"
)

// Events is a SQLite-backed escore.EventProvider.
type Events struct {
	db *sql.DB
}

// Insert appends one record.
func (e *Events) Insert(ctx context.Context, record escore.EventRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("sqlite: could not encode data: %w", err)
	}
	meta, err := json.Marshal(record.Meta)
	if err != nil {
		return fmt.Errorf("sqlite: could not encode meta: %w", err)
	}

	_, err = e.db.ExecContext(ctx, `
		INSERT INTO events (id, stream, type, data, meta, created, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.Stream, record.Type, data, meta, record.Created, record.Recorded)
	if err != nil {
		return translateInsertErr(ctx, e.db, record, err)
	}
	return nil
}

// InsertMany appends records atomically inside one transaction.
func (e *Events) InsertMany(ctx context.Context, records []escore.EventRecord, _ int) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, stream, type, data, meta, created, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: could not prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		data, err := json.Marshal(record.Data)
		if err != nil {
			return fmt.Errorf("sqlite: could not encode data: %w", err)
		}
		meta, err := json.Marshal(record.Meta)
		if err != nil {
			return fmt.Errorf("sqlite: could not encode meta: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, record.ID, record.Stream, record.Type, data, meta, record.Created, record.Recorded); err != nil {
			return translateInsertErr(ctx, tx, record, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: could not commit transaction: %w", err)
	}
	return nil
}

// translateInsertErr distinguishes an id collision from a (stream,
// created) collision: SQLite's driver error doesn't name the violated
// constraint, so we probe for an existing row with the same id. Inside
// InsertMany the probe runs on the open transaction, which holds the
// pool's only connection.
func translateInsertErr(ctx context.Context, db interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, record escore.EventRecord, err error) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("sqlite: could not insert event: %w", err)
	}
	var exists bool
	probeErr := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = ?)`, record.ID).Scan(&exists)
	if probeErr == nil && exists {
		return escore.ErrIDCollision
	}
	return escore.ErrStreamCreatedCollision
}

// GetByID returns the record with the given id.
func (e *Events) GetByID(ctx context.Context, id string) (escore.EventRecord, error) {
	row := e.db.QueryRowContext(ctx, `
		SELECT id, stream, type, data, meta, created, recorded FROM events WHERE id = ?
	`, id)
	record, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return escore.EventRecord{}, &escore.NotFoundError{Kind: "record", Key: id}
		}
		return escore.EventRecord{}, fmt.Errorf("sqlite: could not scan event: %w", err)
	}
	return record, nil
}

// Get returns records across all streams.
func (e *Events) Get(ctx context.Context, opts escore.GetOptions) ([]escore.EventRecord, error) {
	query, args := buildGetQuery(nil, opts)
	return e.query(ctx, query, args)
}

// GetByStream returns one stream's records.
func (e *Events) GetByStream(ctx context.Context, stream string, opts escore.GetOptions) ([]escore.EventRecord, error) {
	query, args := buildGetQuery([]string{stream}, opts)
	return e.query(ctx, query, args)
}

// GetByStreams returns records across several streams, merged.
func (e *Events) GetByStreams(ctx context.Context, streams []string, opts escore.GetOptions) ([]escore.EventRecord, error) {
	query, args := buildGetQuery(streams, opts)
	return e.query(ctx, query, args)
}

func (e *Events) query(ctx context.Context, query string, args []any) ([]escore.EventRecord, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: could not query events: %w", err)
	}
	defer rows.Close()

	var out []escore.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: could not scan event: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// CheckOutdated reports whether a record exists with the same stream
// and type and a strictly greater created.
func (e *Events) CheckOutdated(ctx context.Context, in escore.CheckOutdatedInput) (bool, error) {
	var exists bool
	err := e.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM events WHERE stream = ? AND type = ? AND created > ?
		)
	`, in.Stream, in.Type, in.Created).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: could not check outdatedness: %w", err)
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
			return escore.EventRecord{}, fmt.Errorf("sqlite: could not decode data: %w", err)
		}
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &record.Meta); err != nil {
			return escore.EventRecord{}, fmt.Errorf("sqlite: could not decode meta: %w", err)
		}
	}
	return record, nil
}

// buildGetQuery builds a SELECT with optional stream/type/cursor
// filters. streams == nil means no stream filter (Get); one entry
// means GetByStream; several means GetByStreams.
func buildGetQuery(streams []string, opts escore.GetOptions) (string, []any) {
	query := `SELECT id, stream, type, data, meta, created, recorded FROM events`
	var args []any
	where := []string{}

	if streams != nil {
		if len(streams) == 0 {
			// A non-nil but empty stream list (e.g. a context key with
			// no currently-associated streams) matches nothing; "stream
			// IN ()" isn't valid SQL, so short-circuit to an always-false
			// clause instead of dropping the filter entirely.
			where = append(where, "1 = 0")
		} else {
			placeholders := make([]string, len(streams))
			for i, s := range streams {
				placeholders[i] = "?"
				args = append(args, s)
			}
			where = append(where, "stream IN ("+joinComma(placeholders)+")")
		}
	}
	if len(opts.Filter.Types) > 0 {
		placeholders := make([]string, len(opts.Filter.Types))
		for i, t := range opts.Filter.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		where = append(where, "type IN ("+joinComma(placeholders)+")")
	}
	if opts.Cursor != "" {
		args = append(args, opts.Cursor)
		if opts.Direction == escore.Descending {
			where = append(where, "created < ?")
		} else {
			where = append(where, "created > ?")
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
		query += " LIMIT ?"
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

func joinComma(items []string) string {
	out := items[0]
	for _, i := range items[1:] {
		out += ", " + i
	}
	return out
}

var _ escore.EventProvider = (*Events)(nil)
