package models

// Batch is a customer's unit of work: a named collection of assets to be
// screened and labeled against a fixed class vocabulary.
type Batch struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	Classes     []string
	Status      BatchStatus
}

// BatchStatus tracks how far a batch has progressed through the pipeline.
type BatchStatus string

const (
	BatchStatusDraft      BatchStatus = "draft"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusLabeled    BatchStatus = "labeled"
	BatchStatusExported   BatchStatus = "exported"
)
