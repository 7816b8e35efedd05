package qc

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dataset-platform/core/apperr"
	"dataset-platform/core/batches"
	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

// Dispatcher hands a queued run to the background worker and returns the
// queue correlation id.
type Dispatcher interface {
	DispatchQCRun(ctx context.Context, runID int64) (string, error)
}

// Service accepts QC submissions and reports run progress. Processing itself
// happens in the worker via Runner.
type Service struct {
	batches    repository.Batches
	assets     repository.Assets
	runs       repository.Runs
	dispatcher Dispatcher
}

// NewService creates a QC service.
func NewService(batchRepo repository.Batches, assetRepo repository.Assets, runRepo repository.Runs, dispatcher Dispatcher) *Service {
	return &Service{batches: batchRepo, assets: assetRepo, runs: runRepo, dispatcher: dispatcher}
}

// Submit queues a QC run over the batch's current assets. At most one run per
// batch may be queued or running; a second submission conflicts and reports
// the active run.
func (s *Service) Submit(ctx context.Context, user *models.User, batchID int64) (*models.QCRun, error) {
	if _, err := batches.Authorize(ctx, s.batches, user, batchID); err != nil {
		return nil, err
	}

	count, err := s.assets.CountByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "qc: count assets")
	}
	if count == 0 {
		return nil, apperr.BadRequest("batch has no assets")
	}

	run := &models.QCRun{BatchID: batchID}
	if err := s.runs.CreateQueued(ctx, run); err != nil {
		if errors.Is(err, repository.ErrActiveRun) {
			return nil, s.activeRunConflict(ctx, batchID)
		}
		return nil, eris.Wrap(err, "qc: create run")
	}

	correlationID, err := s.dispatcher.DispatchQCRun(ctx, run.ID)
	if err != nil {
		// The run row exists but never reached the queue; fail it with the
		// dispatch error so the batch is not wedged behind a run nobody
		// will process.
		if markErr := s.runs.MarkFailed(ctx, run.ID, "dispatch: "+err.Error(), time.Now().UTC()); markErr != nil {
			zap.L().Error("mark undispatched run failed",
				zap.Int64("run_id", run.ID), zap.Error(markErr))
		}
		return nil, apperr.Unavailable("job queue unavailable", err)
	}

	if err := s.runs.SetCorrelationID(ctx, run.ID, correlationID); err != nil {
		return nil, eris.Wrap(err, "qc: set correlation id")
	}
	run.CorrelationID = correlationID

	if err := s.batches.UpdateStatus(ctx, batchID, models.BatchStatusProcessing); err != nil {
		return nil, eris.Wrap(err, "qc: update batch status")
	}

	zap.L().Info("qc run queued",
		zap.Int64("run_id", run.ID),
		zap.Int64("batch_id", batchID),
		zap.String("correlation_id", correlationID),
	)
	return run, nil
}

func (s *Service) activeRunConflict(ctx context.Context, batchID int64) error {
	conflict := apperr.Conflict("qc run already in progress")
	if active, err := s.runs.ActiveByBatch(ctx, batchID); err == nil && active != nil {
		conflict.WithMeta("run_id", active.ID).WithMeta("run_status", string(active.Status))
	}
	return conflict
}

// RunStatus is the progress view of a batch's latest run.
type RunStatus struct {
	Run       *models.QCRun // nil when the batch has never been submitted
	Total     int
	Processed int
}

// Status reports the latest run and its result progress.
func (s *Service) Status(ctx context.Context, user *models.User, batchID int64) (*RunStatus, error) {
	if _, err := batches.Authorize(ctx, s.batches, user, batchID); err != nil {
		return nil, err
	}

	run, err := s.runs.LatestByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "qc: latest run")
	}
	if run == nil {
		return &RunStatus{}, nil
	}

	total, err := s.assets.CountByBatch(ctx, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "qc: count assets")
	}
	processed, err := s.runs.CountResults(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "qc: count results")
	}
	return &RunStatus{Run: run, Total: total, Processed: processed}, nil
}

// Results returns the per-asset outcomes of the latest run. Until the run is
// done the result set is empty: partial results of a running pass are not
// exposed. A batch with no runs yields a nil run and an empty set.
func (s *Service) Results(ctx context.Context, user *models.User, batchID int64) (*models.QCRun, []*models.QCResult, error) {
	if _, err := batches.Authorize(ctx, s.batches, user, batchID); err != nil {
		return nil, nil, err
	}

	run, err := s.runs.LatestByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "qc: latest run")
	}
	if run == nil {
		return nil, nil, nil
	}
	if run.Status != models.QCRunStatusDone {
		return run, nil, nil
	}

	results, err := s.runs.ResultsByRun(ctx, run.ID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "qc: list results")
	}
	return run, results, nil
}
