package handlers

import (
	"net/http"
	"time"

	"dataset-platform/core/models"
	"dataset-platform/core/qc"
)

// QCHandler handles quality-control HTTP requests.
type QCHandler struct {
	service *qc.Service
}

// NewQCHandler creates a new QC handler.
func NewQCHandler(service *qc.Service) *QCHandler {
	return &QCHandler{service: service}
}

// RunResponse is the wire form of a QC run.
type RunResponse struct {
	ID            int64      `json:"id"`
	BatchID       int64      `json:"batch_id"`
	Status        string     `json:"status"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func runResponse(run *models.QCRun) RunResponse {
	return RunResponse{
		ID:            run.ID,
		BatchID:       run.BatchID,
		Status:        string(run.Status),
		CorrelationID: run.CorrelationID,
		Error:         run.Error,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}

// SubmitQC handles POST /v1/batches/{id}/qc.
func (h *QCHandler) SubmitQC(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	run, err := h.service.Submit(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse(run))
}

// GetQCStatus handles GET /v1/batches/{id}/qc.
func (h *QCHandler) GetQCStatus(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if status.Run == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "no_runs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    string(status.Run.Status),
		"run":       runResponse(status.Run),
		"total":     status.Total,
		"processed": status.Processed,
	})
}

// ResultResponse is the wire form of a per-asset QC outcome.
type ResultResponse struct {
	AssetID          int64    `json:"asset_id"`
	DuplicateScore   float64  `json:"duplicate_score"`
	DuplicateOfAsset *int64   `json:"duplicate_of_asset,omitempty"`
	AIScore          float64  `json:"ai_score"`
	Flags            []string `json:"flags"`
}

// GetQCResults handles GET /v1/batches/{id}/qc/results.
func (h *QCHandler) GetQCResults(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	run, results, err := h.service.Results(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if run == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "no_runs",
			"items":  []ResultResponse{},
		})
		return
	}

	items := make([]ResultResponse, len(results))
	for i, res := range results {
		flags := res.Flags
		if flags == nil {
			flags = []string{}
		}
		items[i] = ResultResponse{
			AssetID:          res.AssetID,
			DuplicateScore:   res.DuplicateScore,
			DuplicateOfAsset: res.DuplicateOfAsset,
			AIScore:          res.AIScore,
			Flags:            flags,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"status": string(run.Status),
		"items":  items,
	})
}
