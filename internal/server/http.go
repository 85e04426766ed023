package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// sessionCookie is the name of the httpOnly cookie carrying the session id.
const sessionCookie = "sessionId"

// NewHTTPHandler returns an http.Handler with all routes registered. Routes
// other than login and health require a valid session, presented either as
// the session cookie or an Authorization: Session <id> header.
func (s *SyncServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("GET /v1/me", s.requireSession(s.handleMe))
	mux.HandleFunc("GET /v1/bootstrap", s.requireSession(s.handleBootstrap))
	mux.HandleFunc("GET /v1/events", s.requireSession(s.handleEvents))
	mux.HandleFunc("GET /v1/presence", s.requireSession(s.handlePresence))
	mux.HandleFunc("GET /v1/ws", s.handleWS)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *SyncServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionKey struct{}

// sessionFromContext returns the session stored by requireSession.
func sessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionKey{}).(*model.Session)
	return sess
}

// sessionIDFromRequest extracts the session id from the cookie or the
// Authorization header. Returns "" when neither is present.
func sessionIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Session "); ok {
		return rest
	}
	return ""
}

// requireSession resolves the request's session and rejects the request with
// 401 when the session is missing, unknown, or expired.
func (s *SyncServer) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.gate.ResolveSession(r.Context(), sessionIDFromRequest(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
