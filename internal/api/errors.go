package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/versekeeper/versekeeper/internal/scheduler"
)

// Stable machine-readable error codes returned in the JSON envelope.
const (
	codeValidation = "VALIDATION_ERROR"
	codeNotFound   = "NOT_FOUND"
	codeDatabase   = "DATABASE_ERROR"
	codeInternal   = "INTERNAL_ERROR"
	codeAuth       = "AUTHENTICATION_ERROR"
)

func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": fmt.Sprintf(format, args...),
		},
	})
}

// serviceError maps the scheduler error taxonomy onto HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	var verr *scheduler.ValidationError
	var serr *scheduler.StorageError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, codeValidation, "%s", verr.Msg)
	case errors.Is(err, scheduler.ErrNotFound):
		httpError(w, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.As(err, &serr):
		httpError(w, http.StatusServiceUnavailable, codeDatabase, "storage temporarily unavailable")
	default:
		httpError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
