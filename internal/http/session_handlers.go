package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/splax/livelog/internal/domain"
	"github.com/splax/livelog/internal/service/session"
)

type sessionView struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"createdAt"`
	IsSaved   bool      `json:"isSaved"`
}

func newSessionView(s domain.Session) sessionView {
	return sessionView{
		Token:     s.Token,
		Name:      s.Name,
		Protected: s.Protected(),
		CreatedAt: s.CreatedAt,
		IsSaved:   s.IsSaved,
	}
}

func (r *Router) handleSessions(w http.ResponseWriter, req *http.Request) {
	if r.sessions == nil {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload session.CreateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.sessions.Create(req.Context(), payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSessionView(*created))
	case http.MethodGet:
		sessions, err := r.sessions.List(req.Context())
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, newSessionView(s))
		}
		writeJSON(w, http.StatusOK, views)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSessionSubroutes(w http.ResponseWriter, req *http.Request) {
	if r.sessions == nil {
		r.notFound(w)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/sessions/"), "/")
	if trimmed == "" {
		r.notFound(w)
		return
	}
	parts := strings.Split(trimmed, "/")
	token := parts[0]
	switch {
	case len(parts) == 1:
		r.handleSession(w, req, token)
	case len(parts) == 2 && parts[1] == "join":
		r.handleSessionJoin(w, req, token)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleSession(w http.ResponseWriter, req *http.Request, token string) {
	switch req.Method {
	case http.MethodGet:
		found, err := r.sessions.Get(req.Context(), token)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(*found))
	case http.MethodDelete:
		if err := r.sessions.Delete(req.Context(), token); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleSessionJoin(w http.ResponseWriter, req *http.Request, token string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Password string `json:"password"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	joined, err := r.sessions.Join(req.Context(), token, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     joined.Session.Token,
		"name":      joined.Session.Name,
		"access":    joined.Access,
		"expiresAt": joined.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
