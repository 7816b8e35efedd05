package repository

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// ExportRepository handles database operations for exports
type ExportRepository struct {
	db *DB
}

// NewExportRepository creates a new export repository
func NewExportRepository(db *DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a new export attempt and fills in its generated id.
func (r *ExportRepository) Create(ctx context.Context, e *models.Export) error {
	query := `
		INSERT INTO exports (batch_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, e.BatchID, e.Status).
		Scan(&e.ID, &e.CreatedAt); err != nil {
		return eris.Wrap(err, "repository: insert export")
	}
	return nil
}

// Update persists the export's terminal state.
func (r *ExportRepository) Update(ctx context.Context, e *models.Export) error {
	query := `
		UPDATE exports
		SET status = $1, storage_path = $2, error = $3, finished_at = $4
		WHERE id = $5
	`
	if _, err := r.db.ExecContext(ctx, query,
		e.Status, e.StoragePath, e.Error, e.FinishedAt, e.ID,
	); err != nil {
		return eris.Wrap(err, "repository: update export")
	}
	return nil
}

// LatestByBatch returns the batch's most recent export (highest id), or nil.
func (r *ExportRepository) LatestByBatch(ctx context.Context, batchID int64) (*models.Export, error) {
	query := `
		SELECT id, batch_id, status, storage_path, error, created_at, finished_at
		FROM exports
		WHERE batch_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var e models.Export
	var storagePath, errMsg sql.NullString
	var finishedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, batchID).Scan(
		&e.ID, &e.BatchID, &e.Status, &storagePath, &errMsg, &e.CreatedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "repository: latest export")
	}
	if storagePath.Valid {
		e.StoragePath = &storagePath.String
	}
	if errMsg.Valid {
		e.Error = &errMsg.String
	}
	if finishedAt.Valid {
		e.FinishedAt = &finishedAt.Time
	}
	return &e, nil
}
