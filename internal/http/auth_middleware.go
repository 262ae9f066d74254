package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// streamScope resolves the optional ?session= scope of a stream request and
// checks the viewer token protected sessions require. The token is read from
// ?access= or an Authorization bearer header. On failure the response has
// been written and ok is false.
func (r *Router) streamScope(w http.ResponseWriter, req *http.Request) (scope string, ok bool) {
	scope = strings.TrimSpace(req.URL.Query().Get("session"))
	if scope == "" {
		return "", true
	}
	if r.sessions == nil {
		writeError(w, http.StatusNotFound, "sessions unavailable")
		return "", false
	}
	access := strings.TrimSpace(req.URL.Query().Get("access"))
	if access == "" {
		if token, err := bearerToken(req.Header.Get("Authorization")); err == nil {
			access = token
		}
	}
	if err := r.sessions.Authorize(req.Context(), scope, access); err != nil {
		r.logger.Warn("stream scope rejected", "session", scope, "error", err, "path", req.URL.Path)
		r.writeServiceError(w, req, err)
		return "", false
	}
	return scope, true
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
