package models

import "time"

// Asset is one uploaded file belonging to a batch. Created only by upload
// confirmation and never mutated; the content hash identifies duplicates
// within the owning batch.
type Asset struct {
	ID          int64
	BatchID     int64
	FileName    string
	ContentType string
	StoragePath string // s3://bucket/key
	SHA256      string
	CreatedAt   time.Time
}
