package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/statum/pkg/api"
	"github.com/petrijr/statum/pkg/wire"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	schema []string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

// sqlStore implements Store on database/sql. Queries are written with ?
// placeholders and rebound for the dialect.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLStore(ctx context.Context, db *sql.DB, d sqlDialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) StoreSchematic(ctx context.Context, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO statum_schematics (name, definition, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`),
		name, data, time.Now().UTC().UnixNano(),
	)
	return err
}

func (s *sqlStore) GetSchematic(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT definition FROM statum_schematics WHERE name = ?`), name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrSchematicNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *sqlStore) CreateMachine(ctx context.Context, rec MachineRecord) (StateRecord, error) {
	ts := rec.CreatedAt.UTC().UnixNano()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO statum_machines (id, schematic_name, schematic, metadata, state, input, parameter, commit_tag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, '', ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		rec.ID,
		rec.SchematicName,
		rec.Schematic,
		wire.EncodeStringMap(rec.Metadata),
		rec.InitialState,
		rec.CommitTag,
		ts,
		ts,
	)
	if err != nil {
		return StateRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StateRecord{}, err
	}
	if n == 0 {
		return StateRecord{}, api.ErrMachineExists
	}
	return stateFromRecord(rec), nil
}

func (s *sqlStore) DeleteMachine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM statum_machines WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return api.ErrMachineNotFound
	}
	return nil
}

func (s *sqlStore) GetMachineState(ctx context.Context, id string) (StateRecord, error) {
	st := StateRecord{MachineID: id}
	var ts int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT state, input, parameter, commit_tag, updated_at
		FROM statum_machines WHERE id = ?`), id,
	).Scan(&st.State, &st.Input, &st.Parameter, &st.CommitTag, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRecord{}, api.ErrMachineNotFound
	}
	if err != nil {
		return StateRecord{}, err
	}
	st.Input = nilIfEmpty(st.Input)
	st.UpdatedAt = time.Unix(0, ts).UTC()
	return st, nil
}

func (s *sqlStore) SetMachineState(ctx context.Context, id string, upd StateUpdate) (StateRecord, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE statum_machines
		SET state = ?, input = ?, parameter = ?, commit_tag = ?, updated_at = ?
		WHERE id = ? AND commit_tag = ?`),
		upd.State,
		nilIfEmpty(upd.Input),
		upd.Parameter,
		upd.NewCommitTag,
		upd.UpdatedAt.UTC().UnixNano(),
		id,
		upd.ExpectedCommitTag,
	)
	if err != nil {
		return StateRecord{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StateRecord{}, err
	}
	if n == 0 {
		if err := s.exists(ctx, id); err != nil {
			return StateRecord{}, err
		}
		return StateRecord{}, api.ErrConcurrencyConflict
	}
	return stateFromUpdate(id, upd), nil
}

func (s *sqlStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM statum_machines WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return api.ErrMachineNotFound
	}
	return err
}

func (s *sqlStore) GetMachineMetadata(ctx context.Context, id string) (map[string]string, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT metadata FROM statum_machines WHERE id = ?`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrMachineNotFound
	}
	if err != nil {
		return nil, err
	}
	return wire.DecodeStringMap(raw)
}

func (s *sqlStore) GetMachineSchematic(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT schematic FROM statum_machines WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.ErrMachineNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
