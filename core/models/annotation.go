package models

import "time"

// Annotation is one labeler's label set for one asset within a task.
// Upserts are keyed by (task, asset, labeler); the current annotation for an
// asset is the most recently updated row regardless of labeler.
type Annotation struct {
	ID        int64
	TaskID    int64
	AssetID   int64
	LabelerID int64
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
