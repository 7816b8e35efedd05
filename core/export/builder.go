package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dataset-platform/core/apperr"
	"dataset-platform/core/batches"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
	"dataset-platform/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

// ObjectStore is the slice of the storage layer the export flow touches.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, bucket, key string) (string, error)
}

// Builder materializes labeled batches into parquet snapshots in the exports
// bucket. A snapshot is only built when every asset of the batch is labeled.
type Builder struct {
	batches     repository.Batches
	assets      repository.Assets
	runs        repository.Runs
	annotations repository.Annotations
	exports     repository.Exports
	store       ObjectStore
	bucket      string
}

// NewBuilder creates an export builder writing into the given bucket.
func NewBuilder(
	batchRepo repository.Batches,
	assetRepo repository.Assets,
	runRepo repository.Runs,
	annotationRepo repository.Annotations,
	exportRepo repository.Exports,
	store ObjectStore,
	bucket string,
) *Builder {
	return &Builder{
		batches:     batchRepo,
		assets:      assetRepo,
		runs:        runRepo,
		annotations: annotationRepo,
		exports:     exportRepo,
		store:       store,
		bucket:      bucket,
	}
}

// SnapshotRow is one asset of the exported dataset: identity, storage
// location, the winning label set and the QC outcome of the latest run.
type SnapshotRow struct {
	BatchID          int64    `parquet:"batch_id"`
	AssetID          int64    `parquet:"asset_id"`
	FileName         string   `parquet:"file_name"`
	StoragePath      string   `parquet:"storage_path"`
	SHA256           string   `parquet:"sha256"`
	Labels           []string `parquet:"labels,list"`
	LabelsJSON       string   `parquet:"labels_json"`
	LabelerID        int64    `parquet:"labeler_id"`
	LabeledAt        int64    `parquet:"labeled_at,timestamp(millisecond)"`
	DuplicateScore   *float64 `parquet:"duplicate_score,optional"`
	DuplicateOfAsset *int64   `parquet:"duplicate_of_asset,optional"`
	AIScore          *float64 `parquet:"ai_score,optional"`
	Flags            []string `parquet:"flags,list"`
	FlagsJSON        string   `parquet:"flags_json"`
}

// BuildResult reports a finished snapshot.
type BuildResult struct {
	Export *models.Export
	Rows   int
}

// Build creates a new snapshot of the batch. Completeness is checked before
// any export row is created: an incompletely labeled batch conflicts and
// leaves no trace.
func (b *Builder) Build(ctx context.Context, user *models.User, batchID int64) (*BuildResult, error) {
	batch, err := batches.Authorize(ctx, b.batches, user, batchID)
	if err != nil {
		return nil, err
	}

	assets, err := b.assets.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list assets")
	}
	if len(assets) == 0 {
		return nil, apperr.Conflict("batch has no assets")
	}

	labeled, err := b.annotations.CountLabeledAssets(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "export: count labeled assets")
	}
	if labeled < len(assets) {
		return nil, apperr.Conflict(
			fmt.Sprintf("not all assets labeled (%d/%d)", labeled, len(assets)))
	}

	export := &models.Export{BatchID: batchID, Status: models.ExportStatusRunning}
	if err := b.exports.Create(ctx, export); err != nil {
		return nil, eris.Wrap(err, "export: create")
	}

	rows, err := b.snapshot(ctx, batch, assets)
	if err == nil {
		err = b.write(ctx, export, rows)
	}
	if err != nil {
		b.fail(ctx, export, err)
		return nil, eris.Wrap(err, "export: build snapshot")
	}

	if err := b.batches.UpdateStatus(ctx, batchID, models.BatchStatusExported); err != nil {
		return nil, eris.Wrap(err, "export: update batch status")
	}

	zap.L().Info("export built",
		zap.Int64("export_id", export.ID),
		zap.Int64("batch_id", batchID),
		zap.Int("rows", len(rows)),
		zap.Stringp("storage_path", export.StoragePath),
	)
	return &BuildResult{Export: export, Rows: len(rows)}, nil
}

// snapshot joins assets with their winning annotation and the latest run's
// QC results. Completeness was checked by the caller; a hole here means the
// data changed underneath and fails the export.
func (b *Builder) snapshot(ctx context.Context, batch *models.Batch, assets []*models.Asset) ([]SnapshotRow, error) {
	annotations, err := b.annotations.LatestByAsset(ctx, batch.ID)
	if err != nil {
		return nil, eris.Wrap(err, "export: latest annotations")
	}

	qcByAsset := map[int64]*models.QCResult{}
	if run, err := b.runs.LatestByBatch(ctx, batch.ID); err != nil {
		return nil, eris.Wrap(err, "export: latest run")
	} else if run != nil && run.Status == models.QCRunStatusDone {
		results, err := b.runs.ResultsByRun(ctx, run.ID)
		if err != nil {
			return nil, eris.Wrap(err, "export: run results")
		}
		for _, res := range results {
			qcByAsset[res.AssetID] = res
		}
	}

	rows := make([]SnapshotRow, 0, len(assets))
	for _, asset := range assets {
		annotation, ok := annotations[asset.ID]
		if !ok {
			return nil, eris.Errorf("export: asset %d lost its annotation", asset.ID)
		}
		labelsJSON, err := json.Marshal(annotation.Labels)
		if err != nil {
			return nil, eris.Wrap(err, "export: marshal labels")
		}

		row := SnapshotRow{
			BatchID:     batch.ID,
			AssetID:     asset.ID,
			FileName:    asset.FileName,
			StoragePath: asset.StoragePath,
			SHA256:      asset.SHA256,
			Labels:      annotation.Labels,
			LabelsJSON:  string(labelsJSON),
			LabelerID:   annotation.LabelerID,
			LabeledAt:   annotation.UpdatedAt.UnixMilli(),
			Flags:       []string{},
		}
		if res, ok := qcByAsset[asset.ID]; ok {
			duplicateScore, aiScore := res.DuplicateScore, res.AIScore
			row.DuplicateScore = &duplicateScore
			row.AIScore = &aiScore
			row.DuplicateOfAsset = res.DuplicateOfAsset
			if res.Flags != nil {
				row.Flags = res.Flags
			}
		}
		flagsJSON, err := json.Marshal(row.Flags)
		if err != nil {
			return nil, eris.Wrap(err, "export: marshal flags")
		}
		row.FlagsJSON = string(flagsJSON)
		rows = append(rows, row)
	}
	return rows, nil
}

// write encodes the rows as parquet, uploads the file and marks the export
// done.
func (b *Builder) write(ctx context.Context, export *models.Export, rows []SnapshotRow) error {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[SnapshotRow](&buf)
	if _, err := writer.Write(rows); err != nil {
		return eris.Wrap(err, "export: write parquet rows")
	}
	if err := writer.Close(); err != nil {
		return eris.Wrap(err, "export: close parquet writer")
	}

	key := fmt.Sprintf("batches/%d/export_%s_%s.parquet",
		export.BatchID, time.Now().UTC().Format("20060102_150405"), uuid.New().String())
	if err := b.store.PutObject(ctx, b.bucket, key, buf.Bytes(), parquetContentType); err != nil {
		return err
	}

	uri := storage.URI(b.bucket, key)
	now := time.Now().UTC()
	export.Status = models.ExportStatusDone
	export.StoragePath = &uri
	export.FinishedAt = &now
	return b.exports.Update(ctx, export)
}

func (b *Builder) fail(ctx context.Context, export *models.Export, cause error) {
	message := cause.Error()
	now := time.Now().UTC()
	export.Status = models.ExportStatusFailed
	export.Error = &message
	export.FinishedAt = &now
	if err := b.exports.Update(ctx, export); err != nil {
		zap.L().Error("mark export failed",
			zap.Int64("export_id", export.ID), zap.Error(err))
	}
}

// Status returns the batch's latest export, or nil when none was ever built.
func (b *Builder) Status(ctx context.Context, user *models.User, batchID int64) (*models.Export, error) {
	if _, err := batches.Authorize(ctx, b.batches, user, batchID); err != nil {
		return nil, err
	}
	export, err := b.exports.LatestByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "export: latest")
	}
	return export, nil
}

// Download returns a presigned GET URL for the latest finished snapshot.
func (b *Builder) Download(ctx context.Context, user *models.User, batchID int64) (string, error) {
	if _, err := batches.Authorize(ctx, b.batches, user, batchID); err != nil {
		return "", err
	}

	export, err := b.exports.LatestByBatch(ctx, batchID)
	if err != nil {
		return "", eris.Wrap(err, "export: latest")
	}
	if export == nil {
		return "", apperr.NotFound("no export for batch")
	}
	if export.Status != models.ExportStatusDone || export.StoragePath == nil {
		return "", apperr.Conflict("export is not ready")
	}

	bucket, key, err := storage.ParseURI(*export.StoragePath)
	if err != nil {
		return "", apperr.Internal("malformed storage path", err)
	}
	url, err := b.store.PresignGet(ctx, bucket, key)
	if err != nil {
		return "", apperr.Unavailable("object store unavailable", err)
	}
	return url, nil
}
