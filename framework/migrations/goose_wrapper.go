// Package migrations manages the projector's own schema: the projections
// and projector_state tables a PostgresStoreSessionFactory (see
// framework/adapters/repository) reads and writes. Schema changes ship as
// goose SQL migrations embedded directly in this binary, so a deployed
// projector never depends on a migrations directory existing on disk next
// to it; the embedded set is also what cmd/projector-migrate applies.
//
// MongoDB needs no equivalent: MongoStoreSessionFactory creates its
// collections and documents on first write, and its only fixed name,
// projector_state, requires no DDL.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embeddedSchema embed.FS

const schemaDir = "sql"

// dialect is the only one framework/adapters/repository's Postgres session
// speaks, so it's fixed rather than configurable.
const dialect = "postgres"

func init() {
	goose.SetBaseFS(embeddedSchema)
}

// MigrationStatus reports one schema migration's applied state.
type MigrationStatus struct {
	Version   int64
	AppliedAt *time.Time
}

func setDialect() error {
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	return nil
}

// Migrate applies every pending projector schema migration to db.
func Migrate(db *sql.DB) error {
	if err := setDialect(); err != nil {
		return err
	}
	return goose.Up(db, schemaDir)
}

// MigrateTo applies migrations up to and including version.
func MigrateTo(db *sql.DB, version int64) error {
	if err := setDialect(); err != nil {
		return err
	}
	return goose.UpTo(db, schemaDir, version)
}

// Rollback reverts the most recently applied projector schema migration.
func Rollback(db *sql.DB) error {
	if err := setDialect(); err != nil {
		return err
	}
	return goose.Down(db, schemaDir)
}

// RollbackTo reverts every applied migration newer than version; version
// itself stays applied.
func RollbackTo(db *sql.DB, version int64) error {
	if err := setDialect(); err != nil {
		return err
	}
	return goose.DownTo(db, schemaDir, version)
}

// CurrentVersion returns the schema's current migration version, or 0 if
// no migration has ever been applied.
func CurrentVersion(db *sql.DB) (int64, error) {
	return goose.GetDBVersion(db)
}

// PrintStatus writes the applied/pending state of every projector schema
// migration through goose's logger (the standard log package, which
// writes to stderr, unless goose.SetLogger replaced it).
func PrintStatus(db *sql.DB) error {
	if err := setDialect(); err != nil {
		return err
	}
	return goose.Status(db, schemaDir)
}

// CreateSQLMigration writes a new, empty SQL migration file (with
// -- +goose Up / -- +goose Down sections) under dir, timestamped the way
// goose names its own files. dir is meant for local development against
// an on-disk copy of framework/migrations/sql; the projector binary
// itself only ever applies the set embedded at build time, so a newly
// created file still needs to be copied there (and embedded in a
// rebuild) before it takes effect.
func CreateSQLMigration(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create migrations directory: %w", err)
	}
	return goose.Create(nil, dir, name, "sql")
}
