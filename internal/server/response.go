package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/addiskers/dispatch--sub001/internal/paginate"
)

// envelope is the body of every API response.
type envelope struct {
	Success    bool           `json:"success"`
	Data       any            `json:"data,omitempty"`
	Pagination *paginate.Page `json:"pagination,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// jsonError is the body of error responses, including the one
// written by http.TimeoutHandler.
type jsonError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes v as JSON with the given HTTP status code.
// Logs a warning if JSON encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writeJSON: encoding response", "err", err)
	}
}

// writeData writes a successful response carrying data.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writePage writes a successful paginated response.
func writePage(w http.ResponseWriter, data any, p paginate.Page) {
	writeJSON(w, http.StatusOK, envelope{
		Success: true, Data: data, Pagination: &p,
	})
}

// writeError writes a JSON error response with the given status
// and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonError{Error: msg})
}

// handleContextError detects context.Canceled and
// context.DeadlineExceeded errors, returning true so the
// caller stops processing. It does NOT write an HTTP
// response: the withTimeout middleware handles that via
// http.TimeoutHandler (503). Writing here would race with
// the middleware's buffered response.
func handleContextError(_ http.ResponseWriter, err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// writeStoreError reports a failed storage fetch. The wrapped
// message is returned to the caller as is.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if handleContextError(w, err) {
		return
	}
	slog.Error("request failed",
		"path", r.URL.Path,
		"request_id", requestIDFrom(r.Context()),
		"err", err,
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}
