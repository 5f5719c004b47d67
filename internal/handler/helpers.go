package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"bilinote/internal/domain"
	"bilinote/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var conflictErr *domain.ConflictError

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		// Also covers InvalidReferenceError
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflictErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, conflictErr.Error(), map[string]interface{}{
			"resource_type": conflictErr.ResourceType,
			"resource_id":   conflictErr.ResourceID,
			"retryable":     conflictErr.Retryable,
		})
	case errors.Is(err, domain.ErrConflict):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleCreateConflict handles conflicts during creation by returning the existing resource with 409
// If the error is a ConflictError, it calls fetchFn to retrieve the existing resource
func HandleCreateConflict[T any](w http.ResponseWriter, logger *slog.Logger, err error, fetchFn func(id string) (*T, error)) {
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		existing, fetchErr := fetchFn(conflictErr.ResourceID)
		if fetchErr != nil {
			handleError(w, logger, fetchErr)
			return
		}

		httputil.RespondJSON(w, http.StatusConflict, existing)
		return
	}

	handleError(w, logger, err)
}
