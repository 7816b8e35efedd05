package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-platform/core/apperr"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

type fakeStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[bucket+"/"+key] = append([]byte(nil), body...)
	return nil
}

func (s *fakeStore) PresignGet(ctx context.Context, bucket, key string) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?sig=get", nil
}

type exportEnv struct {
	builder *Builder
	mem     *repository.Memory
	store   *fakeStore
	owner   *models.User
	labeler *models.User
	batch   *models.Batch
	assets  []*models.Asset
	task    *models.LabelingTask
}

func newExportEnv(t *testing.T, assetCount int) *exportEnv {
	t.Helper()
	mem := repository.NewMemory()
	store := newFakeStore()
	ctx := context.Background()

	owner := &models.User{Username: "customer1", Role: models.RoleCustomer, Active: true}
	labeler := &models.User{Username: "labeler1", Role: models.RoleLabeler, Active: true}
	require.NoError(t, mem.Users.Create(ctx, owner))
	require.NoError(t, mem.Users.Create(ctx, labeler))

	batch := &models.Batch{
		OwnerID: owner.ID,
		Title:   "street scenes",
		Classes: []string{"car", "person"},
		Status:  models.BatchStatusLabeled,
	}
	require.NoError(t, mem.Batches.Create(ctx, batch))

	assets := make([]*models.Asset, 0, assetCount)
	assetIDs := make([]int64, 0, assetCount)
	for i := 0; i < assetCount; i++ {
		asset := &models.Asset{
			BatchID:     batch.ID,
			FileName:    fmt.Sprintf("img%d.jpg", i),
			StoragePath: fmt.Sprintf("s3://assets/batches/1/img%d.jpg", i),
			SHA256:      fmt.Sprintf("sha%d", i),
		}
		require.NoError(t, mem.Assets.Create(ctx, asset))
		assets = append(assets, asset)
		assetIDs = append(assetIDs, asset.ID)
	}

	task := &models.LabelingTask{BatchID: batch.ID, AssigneeID: labeler.ID, Status: models.TaskStatusDone}
	require.NoError(t, mem.Tasks.Create(ctx, task, assetIDs))

	return &exportEnv{
		builder: NewBuilder(mem.Batches, mem.Assets, mem.Runs, mem.Annotations, mem.Exports, store, "exports"),
		mem:     mem,
		store:   store,
		owner:   owner,
		labeler: labeler,
		batch:   batch,
		assets:  assets,
		task:    task,
	}
}

func (e *exportEnv) label(t *testing.T, asset *models.Asset, labels ...string) {
	t.Helper()
	require.NoError(t, e.mem.Annotations.Upsert(context.Background(), &models.Annotation{
		TaskID:    e.task.ID,
		AssetID:   asset.ID,
		LabelerID: e.labeler.ID,
		Labels:    labels,
	}))
}

func TestBuildGatesOnCompleteness(t *testing.T) {
	env := newExportEnv(t, 3)
	env.label(t, env.assets[0], "car")
	env.label(t, env.assets[1], "person")

	_, err := env.builder.Build(context.Background(), env.owner, env.batch.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "(2/3)")

	// A gated build leaves no export row behind.
	latest, err := env.mem.Exports.LatestByBatch(context.Background(), env.batch.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestBuildEmptyBatch(t *testing.T) {
	env := newExportEnv(t, 0)

	_, err := env.builder.Build(context.Background(), env.owner, env.batch.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestBuildWritesParquetSnapshot(t *testing.T) {
	env := newExportEnv(t, 3)
	for i, asset := range env.assets {
		env.label(t, asset, fmt.Sprintf("label%d", i))
	}

	// A finished run contributes QC columns.
	run := &models.QCRun{BatchID: env.batch.ID}
	require.NoError(t, env.mem.Runs.CreateQueued(context.Background(), run))
	dup := env.assets[0].ID
	require.NoError(t, env.mem.Runs.InsertResults(context.Background(), []*models.QCResult{
		{RunID: run.ID, BatchID: env.batch.ID, AssetID: env.assets[0].ID, AIScore: 0.9},
		{RunID: run.ID, BatchID: env.batch.ID, AssetID: env.assets[1].ID, AIScore: 0.8},
		{RunID: run.ID, BatchID: env.batch.ID, AssetID: env.assets[2].ID, AIScore: 0.7,
			DuplicateScore: 1.0, DuplicateOfAsset: &dup, Flags: []string{models.FlagDuplicate}},
	}))
	require.NoError(t, env.mem.Runs.MarkDone(context.Background(), run.ID, run.CreatedAt))

	result, err := env.builder.Build(context.Background(), env.owner, env.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, models.ExportStatusDone, result.Export.Status)
	require.NotNil(t, result.Export.StoragePath)

	batch, err := env.mem.Batches.Get(context.Background(), env.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusExported, batch.Status)

	require.Len(t, env.store.objects, 1)
	var data []byte
	for _, body := range env.store.objects {
		data = body
	}
	rows, err := parquet.Read[SnapshotRow](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, env.batch.ID, rows[0].BatchID)
	assert.Equal(t, env.assets[0].ID, rows[0].AssetID)
	assert.Equal(t, []string{"label0"}, rows[0].Labels)
	assert.Equal(t, `["label0"]`, rows[0].LabelsJSON)
	assert.Equal(t, env.labeler.ID, rows[0].LabelerID)
	require.NotNil(t, rows[0].AIScore)
	assert.Equal(t, 0.9, *rows[0].AIScore)
	assert.Equal(t, `[]`, rows[0].FlagsJSON)

	require.NotNil(t, rows[2].DuplicateOfAsset)
	assert.Equal(t, env.assets[0].ID, *rows[2].DuplicateOfAsset)
	require.NotNil(t, rows[2].DuplicateScore)
	assert.Equal(t, 1.0, *rows[2].DuplicateScore)
	assert.Equal(t, []string{models.FlagDuplicate}, rows[2].Flags)
	assert.Equal(t, `["DUPLICATE"]`, rows[2].FlagsJSON)
}

func TestBuildStoreFailureMarksExportFailed(t *testing.T) {
	env := newExportEnv(t, 1)
	env.label(t, env.assets[0], "car")
	env.store.putErr = errors.New("disk full")

	_, err := env.builder.Build(context.Background(), env.owner, env.batch.ID)
	require.Error(t, err)

	latest, err := env.mem.Exports.LatestByBatch(context.Background(), env.batch.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.ExportStatusFailed, latest.Status)
	require.NotNil(t, latest.Error)
}

func TestStatusNone(t *testing.T) {
	env := newExportEnv(t, 1)

	exp, err := env.builder.Status(context.Background(), env.owner, env.batch.ID)
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestDownloadGating(t *testing.T) {
	env := newExportEnv(t, 1)

	_, err := env.builder.Download(context.Background(), env.owner, env.batch.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	env.label(t, env.assets[0], "car")
	_, err = env.builder.Build(context.Background(), env.owner, env.batch.ID)
	require.NoError(t, err)

	url, err := env.builder.Download(context.Background(), env.owner, env.batch.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "exports/")

	// A failed attempt on top of a done one hides the download again: the
	// latest export is the one that counts.
	failed := &models.Export{BatchID: env.batch.ID, Status: models.ExportStatusRunning}
	require.NoError(t, env.mem.Exports.Create(context.Background(), failed))
	_, err = env.builder.Download(context.Background(), env.owner, env.batch.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}
