package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Doesntmeananything/sashay/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	User      *userBody `json:"user"`
}

type userBody struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// handleLogin handles POST /v1/login. Unknown usernames and wrong passwords
// both come back as the same generic 401. On success the session id is set as
// an httpOnly cookie and echoed in the body for non-browser clients.
func (s *SyncServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	sessionID, err := s.gate.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		slog.Error("login failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	sess, err := s.gate.ResolveSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to resolve freshly issued session", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: sessionID,
		User:      &userBody{ID: sess.UserID, Username: sess.Username},
	})
}

// handleMe handles GET /v1/me.
func (s *SyncServer) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	user, err := s.store.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("failed to load current user", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
