package tasks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-platform/core/apperr"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

type taskEnv struct {
	service *Service
	arbiter *Arbiter
	mem     *repository.Memory
	labeler *models.User
	admin   *models.User
	batch   *models.Batch
	assets  []*models.Asset
}

func newTaskEnv(t *testing.T, assetCount int) *taskEnv {
	t.Helper()
	mem := repository.NewMemory()
	ctx := context.Background()

	labeler := &models.User{Username: "labeler1", Role: models.RoleLabeler, Active: true}
	admin := &models.User{Username: "admin1", Role: models.RoleAdmin, Active: true}
	require.NoError(t, mem.Users.Create(ctx, labeler))
	require.NoError(t, mem.Users.Create(ctx, admin))

	batch := &models.Batch{
		OwnerID: 99,
		Title:   "street scenes",
		Classes: []string{"car", "person"},
		Status:  models.BatchStatusProcessing,
	}
	require.NoError(t, mem.Batches.Create(ctx, batch))

	assets := make([]*models.Asset, 0, assetCount)
	for i := 0; i < assetCount; i++ {
		asset := &models.Asset{
			BatchID:  batch.ID,
			FileName: fmt.Sprintf("img%d.jpg", i),
			SHA256:   fmt.Sprintf("sha%d", i),
		}
		require.NoError(t, mem.Assets.Create(ctx, asset))
		assets = append(assets, asset)
	}

	return &taskEnv{
		service: NewService(mem.Tasks, mem.Batches, mem.Assets, mem.Annotations),
		arbiter: NewArbiter(mem.Tasks, mem.Assets, mem.Users),
		mem:     mem,
		labeler: labeler,
		admin:   admin,
		batch:   batch,
		assets:  assets,
	}
}

func (e *taskEnv) ensureTask(t *testing.T) *models.LabelingTask {
	t.Helper()
	task, err := e.arbiter.EnsureTask(context.Background(), e.batch.ID)
	require.NoError(t, err)
	return task
}

func TestEnsureTaskAssignsLowestLabeler(t *testing.T) {
	env := newTaskEnv(t, 2)

	task := env.ensureTask(t)
	assert.Equal(t, env.labeler.ID, task.AssigneeID)
	assert.Equal(t, models.TaskStatusOpen, task.Status)

	again := env.ensureTask(t)
	assert.Equal(t, task.ID, again.ID)
}

func TestEnsureTaskNoLabeler(t *testing.T) {
	mem := repository.NewMemory()
	batch := &models.Batch{OwnerID: 1, Title: "b", Classes: []string{"x"}}
	require.NoError(t, mem.Batches.Create(context.Background(), batch))

	arbiter := NewArbiter(mem.Tasks, mem.Assets, mem.Users)
	_, err := arbiter.EnsureTask(context.Background(), batch.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestListByRole(t *testing.T) {
	env := newTaskEnv(t, 1)
	env.ensureTask(t)

	mine, err := env.service.List(context.Background(), env.labeler)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := env.service.List(context.Background(), env.admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	other := &models.User{Username: "labeler2", Role: models.RoleLabeler, Active: true}
	require.NoError(t, env.mem.Users.Create(context.Background(), other))
	none, err := env.service.List(context.Background(), other)
	require.NoError(t, err)
	assert.Empty(t, none)

	customer := &models.User{ID: 99, Role: models.RoleCustomer}
	_, err = env.service.List(context.Background(), customer)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestGetTaskDetail(t *testing.T) {
	env := newTaskEnv(t, 2)
	task := env.ensureTask(t)

	detail, err := env.service.Get(context.Background(), env.labeler, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "street scenes", detail.Title)
	assert.Equal(t, []string{"car", "person"}, detail.Classes)
	require.Len(t, detail.Assets, 2)
	assert.Equal(t, env.assets[0].ID, detail.Assets[0].ID)
	assert.Equal(t, fmt.Sprintf("/v1/assets/%d/content", env.assets[0].ID), detail.Assets[0].ContentURL)
}

func TestGetTaskForbiddenForOtherLabeler(t *testing.T) {
	env := newTaskEnv(t, 1)
	task := env.ensureTask(t)

	other := &models.User{Username: "labeler2", Role: models.RoleLabeler, Active: true}
	require.NoError(t, env.mem.Users.Create(context.Background(), other))

	_, err := env.service.Get(context.Background(), other, task.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSaveLabelsRejectsForeignAsset(t *testing.T) {
	env := newTaskEnv(t, 1)
	task := env.ensureTask(t)

	_, err := env.service.SaveLabels(context.Background(), env.labeler, task.ID, 9999, []string{"car"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestSaveLabelsMovesTaskInProgress(t *testing.T) {
	env := newTaskEnv(t, 2)
	task := env.ensureTask(t)

	annotation, err := env.service.SaveLabels(context.Background(), env.labeler,
		task.ID, env.assets[0].ID, []string{"car"})
	require.NoError(t, err)
	assert.Equal(t, []string{"car"}, annotation.Labels)
	assert.Equal(t, env.labeler.ID, annotation.LabelerID)

	got, err := env.mem.Tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, got.Status)

	// Re-labeling replaces the previous set, not adds to it.
	updated, err := env.service.SaveLabels(context.Background(), env.labeler,
		task.ID, env.assets[0].ID, []string{"person"})
	require.NoError(t, err)
	assert.Equal(t, annotation.ID, updated.ID)
	assert.Equal(t, []string{"person"}, updated.Labels)

	progress, err := env.service.Progress(context.Background(), env.labeler, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Labeled)
}

func TestElevatedActsForAssignee(t *testing.T) {
	env := newTaskEnv(t, 1)
	task := env.ensureTask(t)

	annotation, err := env.service.SaveLabels(context.Background(), env.admin,
		task.ID, env.assets[0].ID, []string{"car"})
	require.NoError(t, err)
	assert.Equal(t, env.labeler.ID, annotation.LabelerID)

	progress, err := env.service.Progress(context.Background(), env.labeler, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Labeled)
}

func TestCompleteGatesOnFullLabeling(t *testing.T) {
	env := newTaskEnv(t, 2)
	task := env.ensureTask(t)

	_, err := env.service.SaveLabels(context.Background(), env.labeler,
		task.ID, env.assets[0].ID, []string{"car"})
	require.NoError(t, err)

	_, err = env.service.Complete(context.Background(), env.labeler, task.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "(1/2)")

	_, err = env.service.SaveLabels(context.Background(), env.labeler,
		task.ID, env.assets[1].ID, []string{"person"})
	require.NoError(t, err)

	done, err := env.service.Complete(context.Background(), env.labeler, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, done.Status)

	batch, err := env.mem.Batches.Get(context.Background(), env.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusLabeled, batch.Status)

	// Completing again is a no-op.
	again, err := env.service.Complete(context.Background(), env.labeler, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, again.Status)
}

func TestCompleteEmptyTask(t *testing.T) {
	env := newTaskEnv(t, 0)
	task := env.ensureTask(t)

	_, err := env.service.Complete(context.Background(), env.labeler, task.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}
