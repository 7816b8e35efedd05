package repository

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"dataset-platform/core/models"
)

// TaskRepository handles database operations for labeling tasks
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the task and its asset links in one transaction. The link
// set is fixed here and never extended afterwards.
func (r *TaskRepository) Create(ctx context.Context, t *models.LabelingTask, assetIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "repository: begin tx")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tasks (batch_id, assignee_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := tx.QueryRowContext(ctx, query,
		t.BatchID, t.AssigneeID, t.Status,
	).Scan(&t.ID, &t.CreatedAt); err != nil {
		return eris.Wrap(err, "repository: insert task")
	}

	for _, assetID := range assetIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_assets (task_id, asset_id) VALUES ($1, $2)`,
			t.ID, assetID,
		); err != nil {
			return eris.Wrap(err, "repository: insert task asset link")
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "repository: commit task")
	}
	return nil
}

// Get retrieves a task by id, returning nil when absent.
func (r *TaskRepository) Get(ctx context.Context, id int64) (*models.LabelingTask, error) {
	return r.getWhere(ctx, `WHERE id = $1`, id)
}

// GetByBatch returns the batch's task (the most recent if several exist), or nil.
func (r *TaskRepository) GetByBatch(ctx context.Context, batchID int64) (*models.LabelingTask, error) {
	return r.getWhere(ctx, `WHERE batch_id = $1 ORDER BY id DESC LIMIT 1`, batchID)
}

func (r *TaskRepository) getWhere(ctx context.Context, where string, args ...interface{}) (*models.LabelingTask, error) {
	query := `
		SELECT id, batch_id, assignee_id, status, created_at
		FROM tasks ` + where

	var t models.LabelingTask
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.BatchID, &t.AssigneeID, &t.Status, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "repository: get task")
	}
	return &t, nil
}

// ListByAssignee lists a labeler's tasks, newest first.
func (r *TaskRepository) ListByAssignee(ctx context.Context, assigneeID int64) ([]*models.LabelingTask, error) {
	query := `
		SELECT id, batch_id, assignee_id, status, created_at
		FROM tasks
		WHERE assignee_id = $1
		ORDER BY id DESC
	`
	return r.list(ctx, query, assigneeID)
}

// ListAll lists every task, newest first.
func (r *TaskRepository) ListAll(ctx context.Context) ([]*models.LabelingTask, error) {
	query := `
		SELECT id, batch_id, assignee_id, status, created_at
		FROM tasks
		ORDER BY id DESC
	`
	return r.list(ctx, query)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.LabelingTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "repository: list tasks")
	}
	defer rows.Close()

	var tasks []*models.LabelingTask
	for rows.Next() {
		var t models.LabelingTask
		if err := rows.Scan(&t.ID, &t.BatchID, &t.AssigneeID, &t.Status, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "repository: scan task")
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// UpdateStatus advances a task's lifecycle status.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = $1 WHERE id = $2`, status, id,
	); err != nil {
		return eris.Wrap(err, "repository: update task status")
	}
	return nil
}

// AssetIDs lists the asset ids linked to a task in ascending order.
func (r *TaskRepository) AssetIDs(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT asset_id FROM task_assets WHERE task_id = $1 ORDER BY asset_id ASC`, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "repository: list task assets")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "repository: scan task asset")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasAsset reports whether the asset belongs to the task's scope.
func (r *TaskRepository) HasAsset(ctx context.Context, taskID, assetID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_assets WHERE task_id = $1 AND asset_id = $2)`,
		taskID, assetID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "repository: check task asset")
	}
	return exists, nil
}

// CountAssets counts the assets linked to a task.
func (r *TaskRepository) CountAssets(ctx context.Context, taskID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_assets WHERE task_id = $1`, taskID,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "repository: count task assets")
	}
	return count, nil
}
