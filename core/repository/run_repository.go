package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// RunRepository handles database operations for QC runs and their results
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateQueued inserts a new queued run. The partial unique index on
// (batch_id) WHERE status IN ('queued','running') turns a concurrent
// submission race into ErrActiveRun instead of a second active run.
func (r *RunRepository) CreateQueued(ctx context.Context, run *models.QCRun) error {
	query := `
		INSERT INTO qc_runs (batch_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, run.BatchID, models.QCRunStatusQueued).
		Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrActiveRun
		}
		return eris.Wrap(err, "repository: insert qc run")
	}
	run.Status = models.QCRunStatusQueued
	return nil
}

// Get retrieves a run by id, returning nil when absent.
func (r *RunRepository) Get(ctx context.Context, id int64) (*models.QCRun, error) {
	return r.getWhere(ctx, `WHERE id = $1`, id)
}

// LatestByBatch returns the batch's most recent run (highest id), or nil.
func (r *RunRepository) LatestByBatch(ctx context.Context, batchID int64) (*models.QCRun, error) {
	return r.getWhere(ctx, `WHERE batch_id = $1 ORDER BY id DESC LIMIT 1`, batchID)
}

// ActiveByBatch returns the batch's queued or running run, or nil.
func (r *RunRepository) ActiveByBatch(ctx context.Context, batchID int64) (*models.QCRun, error) {
	return r.getWhere(ctx,
		`WHERE batch_id = $1 AND status IN ('queued', 'running') ORDER BY id DESC LIMIT 1`,
		batchID)
}

func (r *RunRepository) getWhere(ctx context.Context, where string, args ...interface{}) (*models.QCRun, error) {
	query := `
		SELECT id, batch_id, status, correlation_id, error, created_at, started_at, finished_at
		FROM qc_runs ` + where

	var run models.QCRun
	var errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &run.BatchID, &run.Status, &run.CorrelationID,
		&errMsg, &run.CreatedAt, &startedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "repository: get qc run")
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// SetCorrelationID stores the queue message id returned at dispatch.
func (r *RunRepository) SetCorrelationID(ctx context.Context, runID int64, correlationID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE qc_runs SET correlation_id = $1 WHERE id = $2`, correlationID, runID)
	if err != nil {
		return eris.Wrap(err, "repository: set correlation id")
	}
	return nil
}

// MarkRunning transitions the run to running, records the start time and
// clears any stale error from a previous delivery.
func (r *RunRepository) MarkRunning(ctx context.Context, runID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE qc_runs SET status = $1, started_at = $2, error = NULL WHERE id = $3`,
		models.QCRunStatusRunning, at, runID)
	if err != nil {
		return eris.Wrap(err, "repository: mark run running")
	}
	return nil
}

// MarkDone transitions the run to done.
func (r *RunRepository) MarkDone(ctx context.Context, runID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE qc_runs SET status = $1, finished_at = $2 WHERE id = $3`,
		models.QCRunStatusDone, at, runID)
	if err != nil {
		return eris.Wrap(err, "repository: mark run done")
	}
	return nil
}

// MarkFailed transitions the run to failed with the captured message.
func (r *RunRepository) MarkFailed(ctx context.Context, runID int64, message string, at time.Time) error {
	if len(message) > 500 {
		message = message[:500]
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE qc_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		models.QCRunStatusFailed, message, at, runID)
	if err != nil {
		return eris.Wrap(err, "repository: mark run failed")
	}
	return nil
}

// DeleteResults removes all result rows of a run so that a redelivered job
// recomputes them from scratch.
func (r *RunRepository) DeleteResults(ctx context.Context, runID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM qc_results WHERE run_id = $1`, runID)
	if err != nil {
		return eris.Wrap(err, "repository: delete qc results")
	}
	return nil
}

// InsertResults inserts the full result set of a run in one transaction.
func (r *RunRepository) InsertResults(ctx context.Context, results []*models.QCResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "repository: begin tx")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO qc_results (run_id, batch_id, asset_id, duplicate_score, duplicate_of_asset_id, ai_score, flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	for _, res := range results {
		flags, err := json.Marshal(res.Flags)
		if err != nil {
			return eris.Wrap(err, "repository: marshal flags")
		}
		if err := tx.QueryRowContext(ctx, query,
			res.RunID, res.BatchID, res.AssetID,
			res.DuplicateScore, res.DuplicateOfAsset, res.AIScore, flags,
		).Scan(&res.ID, &res.CreatedAt); err != nil {
			return eris.Wrap(err, "repository: insert qc result")
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "repository: commit qc results")
	}
	return nil
}

// ResultsByRun lists a run's results in ascending asset id order.
func (r *RunRepository) ResultsByRun(ctx context.Context, runID int64) ([]*models.QCResult, error) {
	query := `
		SELECT id, run_id, batch_id, asset_id, duplicate_score, duplicate_of_asset_id, ai_score, flags, created_at
		FROM qc_results
		WHERE run_id = $1
		ORDER BY asset_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrap(err, "repository: list qc results")
	}
	defer rows.Close()

	var results []*models.QCResult
	for rows.Next() {
		var res models.QCResult
		var dupOf sql.NullInt64
		var flags []byte
		if err := rows.Scan(
			&res.ID, &res.RunID, &res.BatchID, &res.AssetID,
			&res.DuplicateScore, &dupOf, &res.AIScore, &flags, &res.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "repository: scan qc result")
		}
		if dupOf.Valid {
			res.DuplicateOfAsset = &dupOf.Int64
		}
		if err := json.Unmarshal(flags, &res.Flags); err != nil {
			return nil, eris.Wrap(err, "repository: unmarshal flags")
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// CountResults counts a run's result rows.
func (r *RunRepository) CountResults(ctx context.Context, runID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM qc_results WHERE run_id = $1`, runID,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "repository: count qc results")
	}
	return count, nil
}
