package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrStateNotFound is returned when a unit of work does not exist in the
// persistence layer.
var ErrStateNotFound = errors.New("unit of work not found")

// StatePersistence stores unit-of-work states and their transition history.
type StatePersistence interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, st *State) error
	RecordTransition(ctx context.Context, id string, tr Transition) error
	Transitions(ctx context.Context, id string) ([]Transition, error)
}

// The schema stays within the SQL subset shared by sqlite and postgres so the
// store works against either driver unchanged.
const schema = `
CREATE TABLE IF NOT EXISTS uow_states (
	id         TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS uow_transitions (
	state_id   TEXT NOT NULL,
	from_phase TEXT NOT NULL,
	to_phase   TEXT NOT NULL,
	at         TIMESTAMP NOT NULL,
	reason     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_uow_transitions_state ON uow_transitions (state_id, at);
`

// SQLStore is the sqlx-backed StatePersistence. It supports the sqlite3 and
// postgres drivers.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLStore connects to the database and bootstraps the schema.
func NewSQLStore(driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}
	store := NewSQLStoreFromDB(db, logger)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap uow schema: %w", err)
	}
	return store, nil
}

// NewSQLStoreFromDB wraps an existing connection without touching the schema.
func NewSQLStoreFromDB(db *sqlx.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, logger: logger}
}

// Close releases the database connection.
func (s *SQLStore) Close() error { return s.db.Close() }

// Load retrieves a unit-of-work state by ID.
func (s *SQLStore) Load(ctx context.Context, id string) (*State, error) {
	var st State
	err := s.db.GetContext(ctx, &st,
		s.db.Rebind(`SELECT id, phase, created_at, updated_at FROM uow_states WHERE id = ?`), id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load uow %s: %w", id, err)
	}
	return &st, nil
}

// Save upserts the unit-of-work state.
func (s *SQLStore) Save(ctx context.Context, st *State) error {
	if st == nil || st.ID == "" {
		return fmt.Errorf("cannot save state without id")
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO uow_states (id, phase, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET phase = excluded.phase, updated_at = excluded.updated_at`),
		st.ID, st.Phase, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save uow %s: %w", st.ID, err)
	}
	return nil
}

// RecordTransition appends one transition to the unit of work's history.
func (s *SQLStore) RecordTransition(ctx context.Context, id string, tr Transition) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO uow_transitions (state_id, from_phase, to_phase, at, reason)
		VALUES (?, ?, ?, ?, ?)`),
		id, tr.From, tr.To, tr.At, tr.Reason)
	if err != nil {
		return fmt.Errorf("record transition for uow %s: %w", id, err)
	}
	return nil
}

// Transitions returns the transition history of a unit of work in order.
func (s *SQLStore) Transitions(ctx context.Context, id string) ([]Transition, error) {
	var out []Transition
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT from_phase, to_phase, at, reason
		FROM uow_transitions WHERE state_id = ? ORDER BY at`), id)
	if err != nil {
		return nil, fmt.Errorf("load transitions for uow %s: %w", id, err)
	}
	return out, nil
}
