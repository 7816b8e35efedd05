package models

import "time"

// QCRun is one execution of the quality-control pipeline over a batch's
// current asset set. For a given batch at most one run is queued or running
// at any instant.
type QCRun struct {
	ID            int64
	BatchID       int64
	Status        QCRunStatus
	CorrelationID string // queue message id set at dispatch
	Error         *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// QCRunStatus is the run lifecycle state.
type QCRunStatus string

const (
	QCRunStatusQueued  QCRunStatus = "queued"
	QCRunStatusRunning QCRunStatus = "running"
	QCRunStatusDone    QCRunStatus = "done"
	QCRunStatusFailed  QCRunStatus = "failed"
)

// Terminal reports whether the run can be superseded by a new submission.
func (s QCRunStatus) Terminal() bool {
	return s == QCRunStatusDone || s == QCRunStatusFailed
}

// FlagDuplicate marks an asset whose content hash was already seen in the batch.
const FlagDuplicate = "DUPLICATE"

// QCResult is the per-asset outcome of one run. The full result set is
// regenerated wholesale on every (re)processing of the run.
type QCResult struct {
	ID               int64
	RunID            int64
	BatchID          int64
	AssetID          int64
	DuplicateScore   float64
	DuplicateOfAsset *int64
	AIScore          float64
	Flags            []string
	CreatedAt        time.Time
}
