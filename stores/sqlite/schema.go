package sqlite

// Schema is the DDL for the three tables described in spec.md §6,
// expressed for SQLite. Open runs it automatically against every
// freshly opened database.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	stream   TEXT NOT NULL,
	type     TEXT NOT NULL,
	data     TEXT NOT NULL DEFAULT '{}',
	meta     TEXT NOT NULL DEFAULT '{}',
	created  TEXT NOT NULL,
	recorded TEXT NOT NULL,
	UNIQUE (stream, created)
);
CREATE INDEX IF NOT EXISTS events_stream_type_created_idx ON events (stream, type, created);

CREATE TABLE IF NOT EXISTS contexts (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	key     TEXT NOT NULL,
	op      TEXT NOT NULL,
	stream  TEXT NOT NULL,
	created TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS contexts_key_idx ON contexts (key);

CREATE TABLE IF NOT EXISTS snapshots (
	name   TEXT NOT NULL,
	key    TEXT NOT NULL,
	cursor TEXT NOT NULL,
	state  TEXT NOT NULL,
	PRIMARY KEY (name, key)
);
`
