package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liquidprojections/projector/framework/eventsourcing"
)

// PostgresConfig configures a PostgresStoreSessionFactory.
type PostgresConfig struct {
	DSN        string
	SchemaName string
}

// Validate reports a configuration error, if any.
func (c PostgresConfig) Validate() error {
	if c.DSN == "" {
		return errors.New("DSN cannot be empty")
	}
	return nil
}

// DefaultPostgresConfig returns a config defaulting SchemaName to "public".
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{SchemaName: "public"}
}

// PostgresStoreSessionFactory produces StoreSessions backed by a pgxpool
// connection pool. Every projection row lives in a single generic table
// keyed by (table_name, entity_key); the projector's own checkpoint rows
// live in projector_state. Both can be created by EnsureSchema or by the
// goose-managed migrations in framework/migrations, which carry the same
// DDL.
type PostgresStoreSessionFactory struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStoreSessionFactory opens a connection pool against config.DSN.
func NewPostgresStoreSessionFactory(ctx context.Context, config PostgresConfig) (*PostgresStoreSessionFactory, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	pool, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	schema := config.SchemaName
	if schema == "" {
		schema = "public"
	}
	return &PostgresStoreSessionFactory{pool: pool, schema: schema}, nil
}

// Close releases the underlying connection pool.
func (f *PostgresStoreSessionFactory) Close() {
	f.pool.Close()
}

// EnsureSchema creates the projections and projector_state tables if they
// don't already exist. Production deployments should prefer the
// goose-managed migrations in framework/migrations (applied against a
// connection whose search_path already points at config.SchemaName).
func (f *PostgresStoreSessionFactory) EnsureSchema(ctx context.Context) error {
	_, err := f.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.projections (
			table_name VARCHAR(255) NOT NULL,
			entity_key VARCHAR(255) NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (table_name, entity_key)
		);
		CREATE TABLE IF NOT EXISTS %s.projector_state (
			state_key VARCHAR(150) PRIMARY KEY,
			checkpoint BIGINT NOT NULL,
			last_update_utc TIMESTAMPTZ NOT NULL
		);
	`, f.schema, f.schema))
	return err
}

// NewSession implements eventsourcing.StoreSessionFactory.
func (f *PostgresStoreSessionFactory) NewSession(ctx context.Context) (eventsourcing.StoreSession, error) {
	return &PostgresStoreSession{pool: f.pool, schema: f.schema}, nil
}

// PostgresStoreSession is a unit-of-work over one pgx.Tx. Unlike the
// in-memory session it needs no application-level staging: pgx's own
// transaction isolation already hides uncommitted writes from other
// sessions, so Insert/Delete/Reattach/AddState execute against the open
// tx immediately.
type PostgresStoreSession struct {
	pool   *pgxpool.Pool
	schema string
	tx     pgx.Tx
}

func (s *PostgresStoreSession) BeginTransaction(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *PostgresStoreSession) Load(ctx context.Context, table string, key string) ([]byte, bool, error) {
	query := fmt.Sprintf("SELECT data FROM %s.projections WHERE table_name = $1 AND entity_key = $2", s.schema)
	var data []byte
	err := s.tx.QueryRow(ctx, query, table, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *PostgresStoreSession) Insert(ctx context.Context, table string, key string, data []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.projections (table_name, entity_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (table_name, entity_key) DO UPDATE SET data = EXCLUDED.data
	`, s.schema)
	_, err := s.tx.Exec(ctx, query, table, key, data)
	return err
}

func (s *PostgresStoreSession) Delete(ctx context.Context, table string, key string) error {
	query := fmt.Sprintf("DELETE FROM %s.projections WHERE table_name = $1 AND entity_key = $2", s.schema)
	_, err := s.tx.Exec(ctx, query, table, key)
	return err
}

func (s *PostgresStoreSession) Reattach(ctx context.Context, table string, key string, data []byte) error {
	return s.Insert(ctx, table, key, data)
}

func (s *PostgresStoreSession) FindState(ctx context.Context, stateKey string) (*eventsourcing.ProjectorState, bool, error) {
	query := fmt.Sprintf("SELECT checkpoint, last_update_utc FROM %s.projector_state WHERE state_key = $1", s.schema)
	state := &eventsourcing.ProjectorState{StateKey: stateKey}
	err := s.tx.QueryRow(ctx, query, stateKey).Scan(&state.Checkpoint, &state.LastUpdateUTC)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return state, true, nil
}

func (s *PostgresStoreSession) AddState(ctx context.Context, state *eventsourcing.ProjectorState) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.projector_state (state_key, checkpoint, last_update_utc)
		VALUES ($1, $2, $3)
		ON CONFLICT (state_key) DO UPDATE SET checkpoint = EXCLUDED.checkpoint, last_update_utc = EXCLUDED.last_update_utc
	`, s.schema)
	_, err := s.tx.Exec(ctx, query, state.StateKey, state.Checkpoint, state.LastUpdateUTC)
	return err
}

// Flush is a no-op: every write above already executed against the open
// transaction.
func (s *PostgresStoreSession) Flush(ctx context.Context) error {
	return nil
}

func (s *PostgresStoreSession) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *PostgresStoreSession) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
