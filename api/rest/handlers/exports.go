package handlers

import (
	"net/http"
	"time"

	"dataset-platform/core/export"
	"dataset-platform/core/models"
)

// ExportHandler handles dataset export HTTP requests.
type ExportHandler struct {
	builder *export.Builder
}

// NewExportHandler creates a new export handler.
func NewExportHandler(builder *export.Builder) *ExportHandler {
	return &ExportHandler{builder: builder}
}

// ExportResponse is the wire form of an export attempt.
type ExportResponse struct {
	ID          int64      `json:"id"`
	BatchID     int64      `json:"batch_id"`
	Status      string     `json:"status"`
	StoragePath *string    `json:"storage_path,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func exportResponse(e *models.Export) ExportResponse {
	return ExportResponse{
		ID:          e.ID,
		BatchID:     e.BatchID,
		Status:      string(e.Status),
		StoragePath: e.StoragePath,
		Error:       e.Error,
		CreatedAt:   e.CreatedAt,
		FinishedAt:  e.FinishedAt,
	}
}

// BuildExport handles POST /v1/batches/{id}/export.
func (h *ExportHandler) BuildExport(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.builder.Build(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := exportResponse(result.Export)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"export": resp,
		"rows":   result.Rows,
	})
}

// GetExportStatus handles GET /v1/batches/{id}/export.
func (h *ExportHandler) GetExportStatus(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	exp, err := h.builder.Status(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exp == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "none"})
		return
	}
	writeJSON(w, http.StatusOK, exportResponse(exp))
}

// DownloadExport handles GET /v1/batches/{id}/export/download with a
// redirect to a presigned URL.
func (h *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	url, err := h.builder.Download(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
