package handlers

import (
	"net/http"

	"dataset-platform/core/batches"
	"dataset-platform/core/models"
)

// BatchHandler handles batch-related HTTP requests.
type BatchHandler struct {
	service *batches.Service
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(service *batches.Service) *BatchHandler {
	return &BatchHandler{service: service}
}

// CreateBatchRequest is the payload for creating a batch.
type CreateBatchRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Classes     []string `json:"classes"`
}

// BatchResponse is the wire form of a batch.
type BatchResponse struct {
	ID          int64    `json:"id"`
	OwnerID     int64    `json:"owner_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Classes     []string `json:"classes"`
	Status      string   `json:"status"`
}

func batchResponse(b *models.Batch) BatchResponse {
	return BatchResponse{
		ID:          b.ID,
		OwnerID:     b.OwnerID,
		Title:       b.Title,
		Description: b.Description,
		Classes:     b.Classes,
		Status:      string(b.Status),
	}
}

// CreateBatch handles POST /v1/batches.
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	batch, err := h.service.Create(r.Context(), requestUser(r), batches.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Classes:     req.Classes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse(batch))
}

// ListBatches handles GET /v1/batches.
func (h *BatchHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), requestUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]BatchResponse, len(list))
	for i, b := range list {
		items[i] = batchResponse(b)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// GetBatch handles GET /v1/batches/{id}.
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	batch, err := h.service.Get(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse(batch))
}
