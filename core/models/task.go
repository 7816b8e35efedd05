package models

import "time"

// LabelingTask assigns a batch's assets to a labeler. At most one task exists
// per batch; its asset set is fixed at creation time.
type LabelingTask struct {
	ID         int64
	BatchID    int64
	AssigneeID int64
	Status     TaskStatus
	CreatedAt  time.Time
}

// TaskStatus is the labeling task lifecycle state.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)
