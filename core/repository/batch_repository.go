package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// BatchRepository handles database operations for batches
type BatchRepository struct {
	db *DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a batch and fills in its generated id.
func (r *BatchRepository) Create(ctx context.Context, b *models.Batch) error {
	classes, err := json.Marshal(b.Classes)
	if err != nil {
		return eris.Wrap(err, "repository: marshal classes")
	}

	query := `
		INSERT INTO batches (owner_id, title, description, classes, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		b.OwnerID, b.Title, b.Description, classes, b.Status,
	).Scan(&b.ID); err != nil {
		return eris.Wrap(err, "repository: insert batch")
	}
	return nil
}

// Get retrieves a batch by id, returning nil when absent.
func (r *BatchRepository) Get(ctx context.Context, id int64) (*models.Batch, error) {
	query := `
		SELECT id, owner_id, title, description, classes, status
		FROM batches
		WHERE id = $1
	`
	b, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "repository: get batch")
	}
	return b, nil
}

// ListByOwner lists a customer's batches, newest first.
func (r *BatchRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Batch, error) {
	query := `
		SELECT id, owner_id, title, description, classes, status
		FROM batches
		WHERE owner_id = $1
		ORDER BY id DESC
	`
	return r.list(ctx, query, ownerID)
}

// ListAll lists every batch, newest first.
func (r *BatchRepository) ListAll(ctx context.Context) ([]*models.Batch, error) {
	query := `
		SELECT id, owner_id, title, description, classes, status
		FROM batches
		ORDER BY id DESC
	`
	return r.list(ctx, query)
}

// UpdateStatus advances a batch's lifecycle status.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id int64, status models.BatchStatus) error {
	query := `UPDATE batches SET status = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, id); err != nil {
		return eris.Wrap(err, "repository: update batch status")
	}
	return nil
}

func (r *BatchRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Batch, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "repository: list batches")
	}
	defer rows.Close()

	var batches []*models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "repository: scan batch")
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*models.Batch, error) {
	var b models.Batch
	var classes []byte
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Description, &classes, &b.Status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(classes, &b.Classes); err != nil {
		return nil, err
	}
	return &b, nil
}
