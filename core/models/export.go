package models

import "time"

// Export is one materialized snapshot attempt for a batch. Every build call
// creates a new row; the latest export is the one with the highest id.
type Export struct {
	ID          int64
	BatchID     int64
	Status      ExportStatus
	StoragePath *string // s3://bucket/key once written
	Error       *string
	CreatedAt   time.Time
	FinishedAt  *time.Time
}

// ExportStatus is the export lifecycle state.
type ExportStatus string

const (
	ExportStatusRunning ExportStatus = "running"
	ExportStatusDone    ExportStatus = "done"
	ExportStatusFailed  ExportStatus = "failed"
)
