package postgres

// Schema is the DDL for the three tables described in spec.md §6. The
// package does not run migrations itself — teacher's pgx store left
// schema management to the caller too — this is offered as a
// reference for wiring into whatever migration tool the application
// already uses.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	stream   TEXT NOT NULL,
	type     TEXT NOT NULL,
	data     JSONB NOT NULL DEFAULT '{}',
	meta     JSONB NOT NULL DEFAULT '{}',
	created  TEXT NOT NULL,
	recorded TEXT NOT NULL,
	UNIQUE (stream, created)
);
CREATE INDEX IF NOT EXISTS events_stream_type_created_idx ON events (stream, type, created);

CREATE TABLE IF NOT EXISTS contexts (
	seq     BIGSERIAL PRIMARY KEY,
	key     TEXT NOT NULL,
	op      TEXT NOT NULL,
	stream  TEXT NOT NULL,
	created TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS contexts_key_idx ON contexts (key);

CREATE TABLE IF NOT EXISTS snapshots (
	name    TEXT NOT NULL,
	key     TEXT NOT NULL,
	cursor  TEXT NOT NULL,
	state   JSONB NOT NULL,
	PRIMARY KEY (name, key)
);
`
