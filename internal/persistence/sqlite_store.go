package persistence

import (
	"context"
	"database/sql"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// In-memory databases are private to a connection, so callers using
// ":memory:" should limit the pool with db.SetMaxOpenConns(1).
type SQLiteStore struct {
	*sqlStore
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS statum_schematics (
		name TEXT PRIMARY KEY,
		definition BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS statum_machines (
		id TEXT PRIMARY KEY,
		schematic_name TEXT NOT NULL,
		schematic BLOB NOT NULL,
		metadata BLOB,
		state BLOB NOT NULL,
		input BLOB,
		parameter TEXT NOT NULL DEFAULT '',
		commit_tag TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
}

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s, err := newSQLStore(ctx, db, sqlDialect{schema: sqliteSchema})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: s}, nil
}
