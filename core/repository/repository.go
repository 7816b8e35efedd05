package repository

import (
	"context"
	"errors"
	"time"

	"dataset-platform/core/models"
)

// ErrActiveRun is returned by Runs.CreateQueued when the batch already has a
// queued or running run. The uniqueness is enforced at the persistence layer,
// never by in-process locks.
var ErrActiveRun = errors.New("batch already has an active qc run")

// Batches persists batch records.
type Batches interface {
	Create(ctx context.Context, b *models.Batch) error
	Get(ctx context.Context, id int64) (*models.Batch, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Batch, error)
	ListAll(ctx context.Context) ([]*models.Batch, error)
	UpdateStatus(ctx context.Context, id int64, status models.BatchStatus) error
}

// Assets persists asset records. Assets are append-only.
type Assets interface {
	Create(ctx context.Context, a *models.Asset) error
	Get(ctx context.Context, id int64) (*models.Asset, error)
	ListByBatch(ctx context.Context, batchID int64) ([]*models.Asset, error) // ascending id
	CountByBatch(ctx context.Context, batchID int64) (int, error)
}

// Runs persists QC runs and their result rows.
type Runs interface {
	// CreateQueued inserts a new queued run, returning ErrActiveRun when the
	// batch already has a run in a non-terminal status.
	CreateQueued(ctx context.Context, run *models.QCRun) error
	Get(ctx context.Context, id int64) (*models.QCRun, error)
	LatestByBatch(ctx context.Context, batchID int64) (*models.QCRun, error)
	ActiveByBatch(ctx context.Context, batchID int64) (*models.QCRun, error)
	SetCorrelationID(ctx context.Context, runID int64, correlationID string) error
	MarkRunning(ctx context.Context, runID int64, at time.Time) error
	MarkDone(ctx context.Context, runID int64, at time.Time) error
	MarkFailed(ctx context.Context, runID int64, message string, at time.Time) error

	DeleteResults(ctx context.Context, runID int64) error
	InsertResults(ctx context.Context, results []*models.QCResult) error
	ResultsByRun(ctx context.Context, runID int64) ([]*models.QCResult, error) // ascending asset id
	CountResults(ctx context.Context, runID int64) (int, error)
}

// Tasks persists labeling tasks and their asset membership.
type Tasks interface {
	// Create inserts the task and its asset links atomically.
	Create(ctx context.Context, t *models.LabelingTask, assetIDs []int64) error
	Get(ctx context.Context, id int64) (*models.LabelingTask, error)
	GetByBatch(ctx context.Context, batchID int64) (*models.LabelingTask, error)
	ListByAssignee(ctx context.Context, assigneeID int64) ([]*models.LabelingTask, error)
	ListAll(ctx context.Context) ([]*models.LabelingTask, error)
	UpdateStatus(ctx context.Context, id int64, status models.TaskStatus) error
	AssetIDs(ctx context.Context, taskID int64) ([]int64, error)
	HasAsset(ctx context.Context, taskID, assetID int64) (bool, error)
	CountAssets(ctx context.Context, taskID int64) (int, error)
}

// Annotations persists label sets, upserted by (task, asset, labeler).
type Annotations interface {
	Upsert(ctx context.Context, a *models.Annotation) error
	// CountAssetsByLabeler counts distinct annotated assets in a task for one labeler.
	CountAssetsByLabeler(ctx context.Context, taskID, labelerID int64) (int, error)
	// CountLabeledAssets counts distinct assets of a batch with at least one
	// annotation from any labeler.
	CountLabeledAssets(ctx context.Context, batchID int64) (int, error)
	// LatestByAsset returns, per asset of the batch, the most recently updated
	// annotation across all labelers (ties broken by highest id).
	LatestByAsset(ctx context.Context, batchID int64) (map[int64]*models.Annotation, error)
}

// Exports persists export attempts.
type Exports interface {
	Create(ctx context.Context, e *models.Export) error
	Update(ctx context.Context, e *models.Export) error
	LatestByBatch(ctx context.Context, batchID int64) (*models.Export, error)
}

// Users persists platform accounts.
type Users interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// LowestActiveLabeler returns the active labeler with the lowest id, or
	// nil when none exists.
	LowestActiveLabeler(ctx context.Context) (*models.User, error)
}
