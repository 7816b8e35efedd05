package handlers

import (
	"net/http"
	"time"

	"dataset-platform/core/models"
	"dataset-platform/core/uploads"
)

// UploadHandler handles asset upload HTTP requests.
type UploadHandler struct {
	service *uploads.Service
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(service *uploads.Service) *UploadHandler {
	return &UploadHandler{service: service}
}

// PresignRequest describes the file the client wants to upload.
type PresignRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
}

// PresignResponse carries the direct upload URL and storage key.
type PresignResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	Bucket    string `json:"bucket"`
	ExpiresIn int    `json:"expires_in"`
}

// PresignUpload handles POST /v1/batches/{id}/uploads.
func (h *UploadHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PresignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.Presign(r.Context(), requestUser(r), batchID, uploads.PresignInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SHA256:      req.SHA256,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PresignResponse{
		UploadURL: result.UploadURL,
		Key:       result.Key,
		Bucket:    result.Bucket,
		ExpiresIn: result.ExpiresIn,
	})
}

// ConfirmRequest identifies the uploaded object to register.
type ConfirmRequest struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
}

// AssetResponse is the wire form of an asset.
type AssetResponse struct {
	ID          int64     `json:"id"`
	BatchID     int64     `json:"batch_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

func assetResponse(a *models.Asset) AssetResponse {
	return AssetResponse{
		ID:          a.ID,
		BatchID:     a.BatchID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SHA256:      a.SHA256,
		CreatedAt:   a.CreatedAt,
	}
}

// ConfirmUpload handles POST /v1/batches/{id}/uploads/confirm.
func (h *UploadHandler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := h.service.Confirm(r.Context(), requestUser(r), batchID, uploads.ConfirmInput{
		Key:         req.Key,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SHA256:      req.SHA256,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assetResponse(asset))
}

// ListAssets handles GET /v1/batches/{id}/assets.
func (h *UploadHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	assets, err := h.service.List(r.Context(), requestUser(r), batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]AssetResponse, len(assets))
	for i, a := range assets {
		items[i] = assetResponse(a)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// AssetContent handles GET /v1/assets/{id}/content with a redirect to a
// presigned download URL.
func (h *UploadHandler) AssetContent(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	url, err := h.service.AssetURL(r.Context(), requestUser(r), assetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}
