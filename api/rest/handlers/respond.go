package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dataset-platform/core/apperr"
)

// writeJSON encodes a response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError maps a service error onto an HTTP response. Structured errors
// carry their kind and meta fields into the body; anything unclassified is a
// 500 with the detail kept server-side.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindBadRequest:
		status = http.StatusBadRequest
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"error": "internal error",
		"kind":  apperr.KindOf(err).String(),
	}
	if e := apperr.As(err); e != nil {
		body["error"] = e.Message
		for k, v := range e.Meta {
			body[k] = v
		}
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

// pathID extracts a numeric path variable, or writes a 400 and reports false.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid " + name,
			"kind":  apperr.KindBadRequest.String(),
		})
		return 0, false
	}
	return id, true
}

// decodeBody parses a JSON request body, or writes a 400 and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
			"kind":  apperr.KindBadRequest.String(),
		})
		return false
	}
	return true
}
