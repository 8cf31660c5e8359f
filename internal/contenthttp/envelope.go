package contenthttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/rgeddes/contentd/internal/auth"
	"github.com/rgeddes/contentd/internal/content"
)

// envelope is the uniform response shape. Field names and presence rules are
// load-bearing: the admin UI and page scripts key off success/message/data
// and must keep working unchanged against this server.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Details   any    `json:"details,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (api *API) writeSuccess(w http.ResponseWriter, r *http.Request, message string, data any, warning string) {
	api.writeJSON(w, r, http.StatusOK, envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Warning:   warning,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (api *API) writeFailure(w http.ResponseWriter, r *http.Request, status int, message, errText string, details any) {
	api.writeJSON(w, r, status, envelope{
		Success:   false,
		Message:   message,
		Error:     errText,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps core error types to status codes. Corrupt documents and IO
// failures stay 500s with a structured body; nothing here ever panics the
// handler or leaks internals beyond the taxonomy name.
func (api *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *content.ValidationError
	switch {
	case errors.As(err, &verr):
		api.writeFailure(w, r, http.StatusBadRequest, "validation failed", "content failed validation", verr.Problems)
	case errors.Is(err, content.ErrNotFound), errors.Is(err, content.ErrUnknownType), errors.Is(err, content.ErrBackupNotFound):
		api.writeFailure(w, r, http.StatusNotFound, "not found", err.Error(), nil)
	case errors.Is(err, content.ErrCorrupt):
		api.logger.Error(r.Context(), err, "serving corrupt content error")
		api.writeFailure(w, r, http.StatusInternalServerError, "content unavailable", "stored content is not valid JSON", nil)
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidCredentials):
		api.writeFailure(w, r, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	default:
		api.logger.Error(r.Context(), err, "internal error serving content API")
		api.writeFailure(w, r, http.StatusInternalServerError, "internal error", "internal server error", nil)
	}
}

func (api *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(r.Context(), "failed to encode JSON response", "error", err)
	}
}
