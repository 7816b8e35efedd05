package handlers

import (
	"net/http"
	"time"

	"dataset-platform/core/models"
	"dataset-platform/core/tasks"
)

// TaskHandler handles labeling task HTTP requests.
type TaskHandler struct {
	service *tasks.Service
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(service *tasks.Service) *TaskHandler {
	return &TaskHandler{service: service}
}

// TaskResponse is the wire form of a labeling task.
type TaskResponse struct {
	ID         int64     `json:"id"`
	BatchID    int64     `json:"batch_id"`
	AssigneeID int64     `json:"assignee_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func taskResponse(t *models.LabelingTask) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		BatchID:    t.BatchID,
		AssigneeID: t.AssigneeID,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
	}
}

// ListTasks handles GET /v1/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), requestUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]TaskResponse, len(list))
	for i, t := range list {
		items[i] = taskResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// TaskAssetResponse points at one asset of the task.
type TaskAssetResponse struct {
	ID          int64  `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ContentURL  string `json:"content_url"`
}

// GetTask handles GET /v1/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), requestUser(r), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	assets := make([]TaskAssetResponse, len(detail.Assets))
	for i, a := range detail.Assets {
		assets[i] = TaskAssetResponse{
			ID:          a.ID,
			FileName:    a.FileName,
			ContentType: a.ContentType,
			ContentURL:  a.ContentURL,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task":    taskResponse(detail.Task),
		"title":   detail.Title,
		"classes": detail.Classes,
		"assets":  assets,
	})
}

// GetTaskProgress handles GET /v1/tasks/{id}/progress.
func (h *TaskHandler) GetTaskProgress(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	progress, err := h.service.Progress(r.Context(), requestUser(r), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   progress.Total,
		"labeled": progress.Labeled,
	})
}

// SaveLabelsRequest carries the label set for one asset.
type SaveLabelsRequest struct {
	Labels []string `json:"labels"`
}

// SaveLabels handles PUT /v1/tasks/{id}/assets/{asset_id}/labels.
func (h *TaskHandler) SaveLabels(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assetID, ok := pathID(w, r, "asset_id")
	if !ok {
		return
	}
	var req SaveLabelsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	annotation, err := h.service.SaveLabels(r.Context(), requestUser(r), taskID, assetID, req.Labels)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_id":   annotation.AssetID,
		"labels":     annotation.Labels,
		"updated_at": annotation.UpdatedAt,
	})
}

// CompleteTask handles POST /v1/tasks/{id}/complete.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.service.Complete(r.Context(), requestUser(r), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse(task))
}
