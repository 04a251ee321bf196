package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/happier-dev/happier-sub002/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusCode maps the core's tagged write results to transport codes.
// VersionMismatch and Conflict share 409; the body's status string
// disambiguates.
func statusCode(s services.WriteStatus) int {
	switch s {
	case services.StatusOK:
		return http.StatusOK
	case services.StatusVersionMismatch, services.StatusConflict:
		return http.StatusConflict
	case services.StatusNotFound:
		return http.StatusNotFound
	case services.StatusInvalidParams:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type valueResponse struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
	Value   string `json:"value,omitempty"`
	Cursor  int64  `json:"cursor,omitempty"`
}

type bytesResponse struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
	Value   []byte `json:"value,omitempty"`
	Cursor  int64  `json:"cursor,omitempty"`
}

type createResponse struct {
	Status   string `json:"status"`
	DidWrite bool   `json:"did_write"`
	Cursor   int64  `json:"cursor,omitempty"`
}

func writeValueResult(w http.ResponseWriter, res services.ValueResult, err error) {
	if err != nil {
		slog.Error("write service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusCode(res.Status), valueResponse{
		Status:  res.Status.String(),
		Version: res.Version,
		Value:   res.Value,
		Cursor:  res.Cursor,
	})
}

func writeBytesResult(w http.ResponseWriter, res services.BytesResult, err error) {
	if err != nil {
		slog.Error("write service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusCode(res.Status), bytesResponse{
		Status:  res.Status.String(),
		Version: res.Version,
		Value:   res.Value,
		Cursor:  res.Cursor,
	})
}

func writeCreateResult(w http.ResponseWriter, res services.CreateResult, err error) {
	if err != nil {
		slog.Error("write service failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, statusCode(res.Status), createResponse{
		Status:   res.Status.String(),
		DidWrite: res.DidWrite,
		Cursor:   res.Cursor,
	})
}
