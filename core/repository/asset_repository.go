package repository

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// AssetRepository handles database operations for assets
type AssetRepository struct {
	db *DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create inserts an asset and fills in its generated id and creation time.
func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	query := `
		INSERT INTO assets (batch_id, file_name, content_type, storage_path, sha256)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query,
		a.BatchID, a.FileName, a.ContentType, a.StoragePath, a.SHA256,
	).Scan(&a.ID, &a.CreatedAt); err != nil {
		return eris.Wrap(err, "repository: insert asset")
	}
	return nil
}

// Get retrieves an asset by id, returning nil when absent.
func (r *AssetRepository) Get(ctx context.Context, id int64) (*models.Asset, error) {
	query := `
		SELECT id, batch_id, file_name, content_type, storage_path, sha256, created_at
		FROM assets
		WHERE id = $1
	`
	var a models.Asset
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.BatchID, &a.FileName, &a.ContentType, &a.StoragePath, &a.SHA256, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "repository: get asset")
	}
	return &a, nil
}

// ListByBatch lists a batch's assets in ascending id order, the stable order
// the duplicate pass and the export builder rely on.
func (r *AssetRepository) ListByBatch(ctx context.Context, batchID int64) ([]*models.Asset, error) {
	query := `
		SELECT id, batch_id, file_name, content_type, storage_path, sha256, created_at
		FROM assets
		WHERE batch_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "repository: list assets")
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(
			&a.ID, &a.BatchID, &a.FileName, &a.ContentType, &a.StoragePath, &a.SHA256, &a.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "repository: scan asset")
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

// CountByBatch counts a batch's assets.
func (r *AssetRepository) CountByBatch(ctx context.Context, batchID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE batch_id = $1`, batchID,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "repository: count assets")
	}
	return count, nil
}
