package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pvcaptest/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the result store schema. The statements are
// portable between sqlite and postgres.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. It is safe to run twice.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create capacity_runs table", err)
	}

	if err := r.createResultsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create capacity_results table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS capacity_runs (
			id VARCHAR(36) PRIMARY KEY,
			study_hash VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS capacity_results (
			run_id VARCHAR(36) NOT NULL REFERENCES capacity_runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			dataset VARCHAR(255) NOT NULL,
			period_start TIMESTAMP,
			fit DOUBLE PRECISION,
			lwr DOUBLE PRECISION,
			upr DOUBLE PRECISION,
			PRIMARY KEY (run_id, seq)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_capacity_runs_created_at ON capacity_runs(created_at)
	`)
	return err
}
