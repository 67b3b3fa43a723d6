// Package store persists capacity test results in sqlite or postgres.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pvcaptest/domain/core"
	"pvcaptest/internal"
	"pvcaptest/internal/errors"
	"pvcaptest/internal/migration"
	"pvcaptest/ports"
)

// Driver names registered by modernc.org/sqlite and github.com/lib/pq.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store implements ports.ResultStore over sqlx.
type Store struct {
	db  *sqlx.DB
	log *internal.Logger
}

// Open connects and creates the schema if needed.
func Open(ctx context.Context, driver, url string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", driver))
	}
	db, err := sqlx.ConnectContext(ctx, driver, url)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if driver == DriverSQLite {
		// a single connection serializes writers
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open connection and runs the migrations.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db, log: internal.DefaultLogger.With("Store")}, nil
}

// resultRecord is a capacity_results row. NaN values are stored as NULL.
type resultRecord struct {
	RunID       string          `db:"run_id"`
	Seq         int             `db:"seq"`
	Dataset     string          `db:"dataset"`
	PeriodStart sql.NullTime    `db:"period_start"`
	Fit         sql.NullFloat64 `db:"fit"`
	Lwr         sql.NullFloat64 `db:"lwr"`
	Upr         sql.NullFloat64 `db:"upr"`
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveResults records the run and its rows in one transaction.
func (s *Store) SaveResults(ctx context.Context, run ports.RunRecord, rows []ports.ResultRow) error {
	if run.ID == "" {
		return errors.InvalidInput("run ID cannot be empty")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC().Truncate(time.Microsecond)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO capacity_runs (id, study_hash, created_at) VALUES (?, ?, ?)
	`), string(run.ID), string(run.StudyHash), run.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.InvalidInput(fmt.Sprintf("run %s already stored", run.ID))
		}
		return errors.DatabaseError("failed to insert run", err)
	}

	for i, r := range rows {
		rec := resultRecord{
			RunID:   string(run.ID),
			Seq:     i,
			Dataset: r.Dataset,
			Fit:     nullFloat(r.Fit),
			Lwr:     nullFloat(r.Lower),
			Upr:     nullFloat(r.Upper),
		}
		if !r.Period.IsZero() {
			rec.PeriodStart = sql.NullTime{Time: r.Period.UTC(), Valid: true}
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO capacity_results (run_id, seq, dataset, period_start, fit, lwr, upr)
			VALUES (:run_id, :seq, :dataset, :period_start, :fit, :lwr, :upr)
		`, rec)
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert result %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit results", err)
	}
	s.log.Info("stored run %s (%d rows)", run.ID, len(rows))
	return nil
}

// LoadResults returns a run's rows in the order they were saved.
func (s *Store) LoadResults(ctx context.Context, runID core.RunID) ([]ports.ResultRow, error) {
	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM capacity_runs WHERE id = ?`), string(runID))
	if err != nil {
		return nil, errors.DatabaseError("failed to look up run", err)
	}
	if exists == 0 {
		return nil, errors.NotFound(fmt.Sprintf("run %s", runID))
	}

	var records []resultRecord
	err = s.db.SelectContext(ctx, &records, s.db.Rebind(`
		SELECT run_id, seq, dataset, period_start, fit, lwr, upr
		FROM capacity_results
		WHERE run_id = ?
		ORDER BY seq
	`), string(runID))
	if err != nil {
		return nil, errors.DatabaseError("failed to load results", err)
	}

	out := make([]ports.ResultRow, len(records))
	for i, rec := range records {
		row := ports.ResultRow{
			Dataset: rec.Dataset,
			Prediction: ports.Prediction{
				Fit:   floatOrNaN(rec.Fit),
				Lower: floatOrNaN(rec.Lwr),
				Upper: floatOrNaN(rec.Upr),
			},
		}
		if rec.PeriodStart.Valid {
			row.Period = rec.PeriodStart.Time.UTC()
		}
		out[i] = row
	}
	return out, nil
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]ports.RunRecord, error) {
	var runs []ports.RunRecord
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, study_hash, created_at
		FROM capacity_runs
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	for i := range runs {
		runs[i].CreatedAt = runs[i].CreatedAt.UTC()
	}
	return runs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ ports.ResultStore = (*Store)(nil)

// isUniqueViolation reports a primary key or unique constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
