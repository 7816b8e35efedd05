package repository

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// AnnotationRepository handles database operations for annotations
type AnnotationRepository struct {
	db *DB
}

// NewAnnotationRepository creates a new annotation repository
func NewAnnotationRepository(db *DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// Upsert writes a label set keyed by (task, asset, labeler), refreshing
// updated_at on conflict so the last writer wins.
func (r *AnnotationRepository) Upsert(ctx context.Context, a *models.Annotation) error {
	labels, err := json.Marshal(a.Labels)
	if err != nil {
		return eris.Wrap(err, "repository: marshal labels")
	}

	query := `
		INSERT INTO annotations (task_id, asset_id, labeler_id, labels)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id, asset_id, labeler_id)
		DO UPDATE SET labels = EXCLUDED.labels, updated_at = now()
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowContext(ctx, query,
		a.TaskID, a.AssetID, a.LabelerID, labels,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return eris.Wrap(err, "repository: upsert annotation")
	}
	return nil
}

// CountAssetsByLabeler counts distinct annotated assets in a task for one labeler.
func (r *AnnotationRepository) CountAssetsByLabeler(ctx context.Context, taskID, labelerID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT asset_id) FROM annotations WHERE task_id = $1 AND labeler_id = $2`,
		taskID, labelerID,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "repository: count labeler annotations")
	}
	return count, nil
}

// CountLabeledAssets counts distinct assets of a batch annotated by anyone.
func (r *AnnotationRepository) CountLabeledAssets(ctx context.Context, batchID int64) (int, error) {
	query := `
		SELECT COUNT(DISTINCT ann.asset_id)
		FROM annotations ann
		JOIN assets a ON a.id = ann.asset_id
		WHERE a.batch_id = $1
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, batchID).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "repository: count labeled assets")
	}
	return count, nil
}

// LatestByAsset returns the most recently updated annotation per asset of the
// batch, across all labelers. Ties on updated_at break by highest id.
func (r *AnnotationRepository) LatestByAsset(ctx context.Context, batchID int64) (map[int64]*models.Annotation, error) {
	query := `
		SELECT DISTINCT ON (ann.asset_id)
			ann.id, ann.task_id, ann.asset_id, ann.labeler_id, ann.labels, ann.created_at, ann.updated_at
		FROM annotations ann
		JOIN assets a ON a.id = ann.asset_id
		WHERE a.batch_id = $1
		ORDER BY ann.asset_id ASC, ann.updated_at DESC, ann.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "repository: latest annotations")
	}
	defer rows.Close()

	latest := make(map[int64]*models.Annotation)
	for rows.Next() {
		var ann models.Annotation
		var labels []byte
		if err := rows.Scan(
			&ann.ID, &ann.TaskID, &ann.AssetID, &ann.LabelerID, &labels, &ann.CreatedAt, &ann.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "repository: scan annotation")
		}
		if err := json.Unmarshal(labels, &ann.Labels); err != nil {
			return nil, eris.Wrap(err, "repository: unmarshal labels")
		}
		latest[ann.AssetID] = &ann
	}
	return latest, rows.Err()
}
