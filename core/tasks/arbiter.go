package tasks

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dataset-platform/core/apperr"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

// Arbiter decides labeling assignment. The current policy is deterministic:
// one task per batch, assigned to the active labeler with the lowest id.
type Arbiter struct {
	tasks  repository.Tasks
	assets repository.Assets
	users  repository.Users
}

// NewArbiter creates a task arbiter.
func NewArbiter(tasks repository.Tasks, assets repository.Assets, users repository.Users) *Arbiter {
	return &Arbiter{tasks: tasks, assets: assets, users: users}
}

// EnsureTask creates the batch's labeling task if none exists and returns it.
// Repeat calls return the existing task; the asset scope is frozen at
// creation time.
func (a *Arbiter) EnsureTask(ctx context.Context, batchID int64) (*models.LabelingTask, error) {
	existing, err := a.tasks.GetByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: get by batch")
	}
	if existing != nil {
		return existing, nil
	}

	assignee, err := a.users.LowestActiveLabeler(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: pick assignee")
	}
	if assignee == nil {
		return nil, apperr.Internal("no active labeler configured", nil)
	}

	assets, err := a.assets.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: list batch assets")
	}
	assetIDs := make([]int64, 0, len(assets))
	for _, asset := range assets {
		assetIDs = append(assetIDs, asset.ID)
	}

	task := &models.LabelingTask{
		BatchID:    batchID,
		AssigneeID: assignee.ID,
		Status:     models.TaskStatusOpen,
	}
	if err := a.tasks.Create(ctx, task, assetIDs); err != nil {
		return nil, eris.Wrap(err, "tasks: create")
	}

	zap.L().Info("labeling task created",
		zap.Int64("task_id", task.ID),
		zap.Int64("batch_id", batchID),
		zap.Int64("assignee_id", assignee.ID),
		zap.Int("assets", len(assetIDs)),
	)
	return task, nil
}
