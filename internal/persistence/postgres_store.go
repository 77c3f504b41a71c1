package persistence

import (
	"context"
	"database/sql"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	*sqlStore
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS statum_schematics (
		name TEXT PRIMARY KEY,
		definition BYTEA NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS statum_machines (
		id TEXT PRIMARY KEY,
		schematic_name TEXT NOT NULL,
		schematic BYTEA NOT NULL,
		metadata BYTEA,
		state BYTEA NOT NULL,
		input BYTEA,
		parameter TEXT NOT NULL DEFAULT '',
		commit_tag TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
}

// NewPostgresStore initializes the required schema in the given
// database and returns a new PostgresStore.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s, err := newSQLStore(ctx, db, sqlDialect{schema: postgresSchema, numbered: true})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore: s}, nil
}
