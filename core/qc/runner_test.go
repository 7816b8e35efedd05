package qc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-platform/core/models"
	"dataset-platform/core/repository"
	"dataset-platform/core/tasks"
)

type runnerEnv struct {
	runner *Runner
	mem    *repository.Memory
	batch  *models.Batch
}

func newRunnerEnv(t *testing.T) *runnerEnv {
	t.Helper()
	mem := repository.NewMemory()

	labeler := &models.User{Username: "labeler1", Role: models.RoleLabeler, Active: true}
	require.NoError(t, mem.Users.Create(context.Background(), labeler))

	batch := &models.Batch{
		OwnerID: 99,
		Title:   "street scenes",
		Classes: []string{"car"},
		Status:  models.BatchStatusProcessing,
	}
	require.NoError(t, mem.Batches.Create(context.Background(), batch))

	arbiter := tasks.NewArbiter(mem.Tasks, mem.Assets, mem.Users)
	return &runnerEnv{
		runner: NewRunner(mem.Runs, mem.Assets, ConstantScorer{Value: 0.5}, arbiter),
		mem:    mem,
		batch:  batch,
	}
}

func (e *runnerEnv) addAssets(t *testing.T, hashes ...string) []*models.Asset {
	t.Helper()
	out := make([]*models.Asset, 0, len(hashes))
	for _, sha := range hashes {
		asset := &models.Asset{BatchID: e.batch.ID, FileName: sha + ".jpg", SHA256: sha}
		require.NoError(t, e.mem.Assets.Create(context.Background(), asset))
		out = append(out, asset)
	}
	return out
}

func (e *runnerEnv) queueRun(t *testing.T) *models.QCRun {
	t.Helper()
	run := &models.QCRun{BatchID: e.batch.ID}
	require.NoError(t, e.mem.Runs.CreateQueued(context.Background(), run))
	return run
}

func TestProcessFlagsDuplicates(t *testing.T) {
	env := newRunnerEnv(t)
	assets := env.addAssets(t, "a", "b", "a", "c", "b")
	run := env.queueRun(t)

	require.NoError(t, env.runner.Process(context.Background(), run.ID))

	got, err := env.mem.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QCRunStatusDone, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)

	results, err := env.mem.Runs.ResultsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 5)

	wantDup := []bool{false, false, true, false, true}
	wantOriginal := []*models.Asset{nil, nil, assets[0], nil, assets[1]}
	for i, res := range results {
		assert.Equal(t, assets[i].ID, res.AssetID)
		assert.Equal(t, 0.5, res.AIScore)
		if wantDup[i] {
			assert.Equal(t, 1.0, res.DuplicateScore, "asset %d", i)
			require.NotNil(t, res.DuplicateOfAsset, "asset %d", i)
			assert.Equal(t, wantOriginal[i].ID, *res.DuplicateOfAsset)
			assert.Contains(t, res.Flags, models.FlagDuplicate)
		} else {
			assert.Zero(t, res.DuplicateScore, "asset %d", i)
			assert.Nil(t, res.DuplicateOfAsset, "asset %d", i)
			assert.Empty(t, res.Flags, "asset %d", i)
		}
	}
}

func TestProcessCreatesLabelingTask(t *testing.T) {
	env := newRunnerEnv(t)
	assets := env.addAssets(t, "a", "b")
	run := env.queueRun(t)

	require.NoError(t, env.runner.Process(context.Background(), run.ID))

	task, err := env.mem.Tasks.GetByBatch(context.Background(), env.batch.ID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStatusOpen, task.Status)

	ids, err := env.mem.Tasks.AssetIDs(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{assets[0].ID, assets[1].ID}, ids)
}

func TestProcessIdempotent(t *testing.T) {
	env := newRunnerEnv(t)
	env.addAssets(t, "a", "a")
	run := env.queueRun(t)

	require.NoError(t, env.runner.Process(context.Background(), run.ID))
	require.NoError(t, env.runner.Process(context.Background(), run.ID))

	results, err := env.mem.Runs.ResultsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	task, err := env.mem.Tasks.GetByBatch(context.Background(), env.batch.ID)
	require.NoError(t, err)
	require.NotNil(t, task)

	all, err := env.mem.Tasks.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessMissingRun(t *testing.T) {
	env := newRunnerEnv(t)
	assert.NoError(t, env.runner.Process(context.Background(), 12345))
}

func TestProcessEmptyBatchFails(t *testing.T) {
	env := newRunnerEnv(t)
	run := env.queueRun(t)

	err := env.runner.Process(context.Background(), run.ID)
	require.Error(t, err)

	got, err := env.mem.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QCRunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
}

func TestProcessNoLabelerFails(t *testing.T) {
	mem := repository.NewMemory()
	batch := &models.Batch{OwnerID: 1, Title: "b", Classes: []string{"x"}}
	require.NoError(t, mem.Batches.Create(context.Background(), batch))
	require.NoError(t, mem.Assets.Create(context.Background(),
		&models.Asset{BatchID: batch.ID, SHA256: "a"}))
	run := &models.QCRun{BatchID: batch.ID}
	require.NoError(t, mem.Runs.CreateQueued(context.Background(), run))

	arbiter := tasks.NewArbiter(mem.Tasks, mem.Assets, mem.Users)
	runner := NewRunner(mem.Runs, mem.Assets, ConstantScorer{Value: 0.5}, arbiter)

	err := runner.Process(context.Background(), run.ID)
	require.Error(t, err)

	got, err := mem.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QCRunStatusFailed, got.Status)
}
