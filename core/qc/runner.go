package qc

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dataset-platform/core/models"
	"dataset-platform/core/repository"
	"dataset-platform/core/tasks"
)

// Runner executes queued QC runs inside the worker. Processing is
// idempotent: results are wiped and recomputed on every pass, so a
// redelivered job converges to the same state.
type Runner struct {
	runs    repository.Runs
	assets  repository.Assets
	scorer  Scorer
	arbiter *tasks.Arbiter
}

// NewRunner creates a QC runner.
func NewRunner(runRepo repository.Runs, assetRepo repository.Assets, scorer Scorer, arbiter *tasks.Arbiter) *Runner {
	return &Runner{runs: runRepo, assets: assetRepo, scorer: scorer, arbiter: arbiter}
}

// Process executes one run end to end. A missing run is a no-op: the row may
// have been removed between dispatch and delivery. Any processing error
// marks the run failed; the error is also returned for logging.
func (r *Runner) Process(ctx context.Context, runID int64) error {
	run, err := r.runs.Get(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "qc: get run")
	}
	if run == nil {
		zap.L().Warn("qc job references missing run", zap.Int64("run_id", runID))
		return nil
	}

	if err := r.process(ctx, run); err != nil {
		if markErr := r.runs.MarkFailed(ctx, run.ID, err.Error(), time.Now().UTC()); markErr != nil {
			zap.L().Error("mark run failed", zap.Int64("run_id", run.ID), zap.Error(markErr))
		}
		return err
	}
	return nil
}

func (r *Runner) process(ctx context.Context, run *models.QCRun) error {
	assets, err := r.assets.ListByBatch(ctx, run.BatchID)
	if err != nil {
		return eris.Wrap(err, "qc: list assets")
	}
	if len(assets) == 0 {
		return eris.New("qc: batch has no assets")
	}

	if err := r.runs.MarkRunning(ctx, run.ID, time.Now().UTC()); err != nil {
		return eris.Wrap(err, "qc: mark running")
	}
	if err := r.runs.DeleteResults(ctx, run.ID); err != nil {
		return eris.Wrap(err, "qc: clear results")
	}

	results, err := r.evaluate(ctx, run, assets)
	if err != nil {
		return err
	}
	if err := r.runs.InsertResults(ctx, results); err != nil {
		return eris.Wrap(err, "qc: insert results")
	}

	if _, err := r.arbiter.EnsureTask(ctx, run.BatchID); err != nil {
		return eris.Wrap(err, "qc: ensure labeling task")
	}

	if err := r.runs.MarkDone(ctx, run.ID, time.Now().UTC()); err != nil {
		return eris.Wrap(err, "qc: mark done")
	}

	zap.L().Info("qc run done",
		zap.Int64("run_id", run.ID),
		zap.Int64("batch_id", run.BatchID),
		zap.Int("assets", len(assets)),
	)
	return nil
}

// evaluate scores each asset and flags duplicates. An asset duplicates the
// first earlier asset (by id) with the same content hash; the first
// occurrence is never flagged.
func (r *Runner) evaluate(ctx context.Context, run *models.QCRun, assets []*models.Asset) ([]*models.QCResult, error) {
	firstSeen := make(map[string]int64, len(assets))
	results := make([]*models.QCResult, 0, len(assets))

	for _, asset := range assets {
		result := &models.QCResult{
			RunID:   run.ID,
			BatchID: run.BatchID,
			AssetID: asset.ID,
		}

		if original, seen := firstSeen[asset.SHA256]; seen {
			dup := original
			result.DuplicateScore = 1.0
			result.DuplicateOfAsset = &dup
			result.Flags = append(result.Flags, models.FlagDuplicate)
		} else {
			firstSeen[asset.SHA256] = asset.ID
		}

		score, err := r.scorer.Score(ctx, asset)
		if err != nil {
			return nil, eris.Wrapf(err, "qc: score asset %d", asset.ID)
		}
		result.AIScore = score

		results = append(results, result)
	}
	return results, nil
}
