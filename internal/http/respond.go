package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/repository"
	"github.com/splax/livelog/internal/service/session"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service and repository errors to status codes.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var validation *domain.ValidationError
	var persistence *domain.PersistenceError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, repository.ErrNotFound):
		r.notFound(w)
	case errors.Is(err, session.ErrInvalidPassword):
		writeError(w, http.StatusUnauthorized, "invalid password")
	case errors.Is(err, session.ErrAccessDenied):
		writeError(w, http.StatusUnauthorized, "session access token required")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, streamRateLimitMessage)
	case errors.As(err, &persistence):
		r.logger.Error("storage failure", "op", persistence.Op, "error", persistence.Err, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	default:
		r.logger.Error("request failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
