// Package shared provides helpers common to all API handlers: JSON
// responses, error mapping, and request-scoped identity.
package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/platform/logger"
	"github.com/dhofer/postflow-api/internal/store"
)

// ErrorResponse is the standard error envelope for the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondWithJSON writes a JSON response with the given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log := logger.FromContextOrDefault(r.Context(), nil)
		log.Error("failed to encode response",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))
	}
}

// RespondWithError writes a JSON error envelope with the given status.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{Error: message})
}

// HandleServiceError maps service-layer errors to HTTP responses. The
// mapping is deliberately coarse for unexpected errors: internals are
// logged, not leaked.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOrDefault(r.Context(), nil)

	switch {
	case store.IsNotFoundError(err):
		RespondWithError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrValidation):
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDailyLimitReached):
		RespondWithError(w, r, http.StatusTooManyRequests, "daily engagement limit reached")
	case errors.Is(err, domain.ErrContentImmutable):
		RespondWithError(w, r, http.StatusConflict, "content cannot be changed in its current state")
	case errors.Is(err, domain.ErrContentInFlight):
		RespondWithError(w, r, http.StatusConflict, "content is currently being published")
	case errors.Is(err, domain.ErrUnauthorized):
		RespondWithError(w, r, http.StatusForbidden, "operation not permitted")
	default:
		log.Error("unhandled service error",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))
		RespondWithError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
