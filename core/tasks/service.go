package tasks

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dataset-platform/core/apperr"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

// Service is the labeler-facing task surface: task inspection, label
// submission and completion.
type Service struct {
	tasks       repository.Tasks
	batches     repository.Batches
	assets      repository.Assets
	annotations repository.Annotations
}

// NewService creates a task service.
func NewService(taskRepo repository.Tasks, batchRepo repository.Batches, assetRepo repository.Assets, annotationRepo repository.Annotations) *Service {
	return &Service{tasks: taskRepo, batches: batchRepo, assets: assetRepo, annotations: annotationRepo}
}

// List returns the tasks visible to the caller: labelers see their
// assignments, elevated roles see everything.
func (s *Service) List(ctx context.Context, user *models.User) ([]*models.LabelingTask, error) {
	switch {
	case user.Role == models.RoleLabeler:
		return s.tasks.ListByAssignee(ctx, user.ID)
	case user.Role.Elevated():
		return s.tasks.ListAll(ctx)
	default:
		return nil, apperr.Forbidden("no labeling task access")
	}
}

// AssetRef points a labeler at one asset of the task.
type AssetRef struct {
	ID          int64
	FileName    string
	ContentType string
	ContentURL  string
}

// TaskDetail is a task with its labeling context: the batch's class
// vocabulary and the asset list.
type TaskDetail struct {
	Task    *models.LabelingTask
	Title   string
	Classes []string
	Assets  []AssetRef
}

// Get returns a task with its batch context and asset references.
func (s *Service) Get(ctx context.Context, user *models.User, taskID int64) (*TaskDetail, error) {
	task, err := s.authorize(ctx, user, taskID)
	if err != nil {
		return nil, err
	}

	batch, err := s.batches.Get(ctx, task.BatchID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: get batch")
	}
	if batch == nil {
		return nil, apperr.NotFound("batch not found")
	}

	assetIDs, err := s.tasks.AssetIDs(ctx, task.ID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: list task assets")
	}

	refs := make([]AssetRef, 0, len(assetIDs))
	for _, id := range assetIDs {
		asset, err := s.assets.Get(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, "tasks: get asset")
		}
		if asset == nil {
			continue
		}
		refs = append(refs, AssetRef{
			ID:          asset.ID,
			FileName:    asset.FileName,
			ContentType: asset.ContentType,
			ContentURL:  fmt.Sprintf("/v1/assets/%d/content", asset.ID),
		})
	}

	return &TaskDetail{
		Task:    task,
		Title:   batch.Title,
		Classes: batch.Classes,
		Assets:  refs,
	}, nil
}

// TaskProgress counts a labeler's annotated assets within a task.
type TaskProgress struct {
	Total   int
	Labeled int
}

// Progress reports how many of the task's assets the effective labeler has
// annotated.
func (s *Service) Progress(ctx context.Context, user *models.User, taskID int64) (*TaskProgress, error) {
	task, err := s.authorize(ctx, user, taskID)
	if err != nil {
		return nil, err
	}

	total, err := s.tasks.CountAssets(ctx, task.ID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: count assets")
	}
	labeled, err := s.annotations.CountAssetsByLabeler(ctx, task.ID, s.effectiveLabeler(user, task))
	if err != nil {
		return nil, eris.Wrap(err, "tasks: count annotations")
	}
	return &TaskProgress{Total: total, Labeled: labeled}, nil
}

// SaveLabels records a label set for one asset of the task, replacing any
// previous set by the same labeler. The first save moves an open task to
// in_progress.
func (s *Service) SaveLabels(ctx context.Context, user *models.User, taskID, assetID int64, labels []string) (*models.Annotation, error) {
	task, err := s.authorize(ctx, user, taskID)
	if err != nil {
		return nil, err
	}

	inTask, err := s.tasks.HasAsset(ctx, task.ID, assetID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: check asset membership")
	}
	if !inTask {
		return nil, apperr.BadRequest("asset does not belong to this task")
	}

	if labels == nil {
		labels = []string{}
	}
	annotation := &models.Annotation{
		TaskID:    task.ID,
		AssetID:   assetID,
		LabelerID: s.effectiveLabeler(user, task),
		Labels:    labels,
	}
	if err := s.annotations.Upsert(ctx, annotation); err != nil {
		return nil, eris.Wrap(err, "tasks: save annotation")
	}

	if task.Status == models.TaskStatusOpen {
		if err := s.tasks.UpdateStatus(ctx, task.ID, models.TaskStatusInProgress); err != nil {
			return nil, eris.Wrap(err, "tasks: update status")
		}
	}
	return annotation, nil
}

// Complete marks the task done once every asset carries at least one label
// from the effective labeler, and moves the batch to labeled. Completing an
// already-done task is a no-op.
func (s *Service) Complete(ctx context.Context, user *models.User, taskID int64) (*models.LabelingTask, error) {
	task, err := s.authorize(ctx, user, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == models.TaskStatusDone {
		return task, nil
	}

	total, err := s.tasks.CountAssets(ctx, task.ID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: count assets")
	}
	if total == 0 {
		return nil, apperr.Conflict("task has no assets")
	}
	labeled, err := s.annotations.CountAssetsByLabeler(ctx, task.ID, s.effectiveLabeler(user, task))
	if err != nil {
		return nil, eris.Wrap(err, "tasks: count annotations")
	}
	if labeled < total {
		return nil, apperr.Conflict(fmt.Sprintf("not all assets labeled (%d/%d)", labeled, total))
	}

	if err := s.tasks.UpdateStatus(ctx, task.ID, models.TaskStatusDone); err != nil {
		return nil, eris.Wrap(err, "tasks: update status")
	}
	if err := s.batches.UpdateStatus(ctx, task.BatchID, models.BatchStatusLabeled); err != nil {
		return nil, eris.Wrap(err, "tasks: update batch status")
	}
	task.Status = models.TaskStatusDone

	zap.L().Info("labeling task completed",
		zap.Int64("task_id", task.ID),
		zap.Int64("batch_id", task.BatchID),
	)
	return task, nil
}

// authorize loads the task and checks the caller may act on it: its assignee
// or an elevated role.
func (s *Service) authorize(ctx context.Context, user *models.User, taskID int64) (*models.LabelingTask, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "tasks: get")
	}
	if task == nil {
		return nil, apperr.NotFound("task not found")
	}
	if !user.Role.Elevated() && task.AssigneeID != user.ID {
		return nil, apperr.Forbidden("not assigned to this task")
	}
	return task, nil
}

// effectiveLabeler is whose annotations an action reads and writes: the
// caller for labelers, the assignee when an elevated role acts on their
// behalf.
func (s *Service) effectiveLabeler(user *models.User, task *models.LabelingTask) int64 {
	if user.Role.Elevated() {
		return task.AssigneeID
	}
	return user.ID
}
