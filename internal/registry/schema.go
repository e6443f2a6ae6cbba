// Package registry is the embedded transactional store for
// reservations: a SQLite file holding the reservations table described
// in spec §4.4/§6, opened through pocketbase/dbx the way the teacher's
// settings and routes packages build queries, but over a bare
// modernc.org/sqlite *sql.DB instead of a PocketBase app.
package registry

// CurrentSchemaVersion is the only schema version this build
// understands. Open refuses to operate on a file stamped with a
// higher version.
const CurrentSchemaVersion = 1

const createMetadataTable = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY NOT NULL,
	value TEXT NOT NULL
)`

const createReservationsTable = `
CREATE TABLE IF NOT EXISTS reservations (
	path         TEXT NOT NULL,
	tag          TEXT,
	port         INTEGER NOT NULL UNIQUE,
	project      TEXT,
	task         TEXT,
	created_at   INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL,
	PRIMARY KEY (path, tag)
)`

const createPortIndex = `CREATE INDEX IF NOT EXISTS idx_reservations_port ON reservations(port)`
const createProjectIndex = `CREATE INDEX IF NOT EXISTS idx_reservations_project ON reservations(project)`
const createLastUsedIndex = `CREATE INDEX IF NOT EXISTS idx_reservations_last_used ON reservations(last_used_at)`
