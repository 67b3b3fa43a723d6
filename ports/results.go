package ports

import (
	"context"
	"time"

	"pvcaptest/domain/core"
)

// ResultRow is one partition's prediction as persisted. A zero Period marks
// an unpartitioned dataset.
type ResultRow struct {
	Dataset string
	Period  time.Time
	Prediction
}

// RunRecord describes one stored run.
type RunRecord struct {
	ID        core.RunID `db:"id"`
	StudyHash core.Hash  `db:"study_hash"`
	CreatedAt time.Time  `db:"created_at"`
}

// ResultStore persists the results of capacity test runs.
type ResultStore interface {
	SaveResults(ctx context.Context, run RunRecord, rows []ResultRow) error
	LoadResults(ctx context.Context, runID core.RunID) ([]ResultRow, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	Close() error
}
