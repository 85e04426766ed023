package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// bootstrapResponse is the full materialized snapshot a client resets its
// mirror from, plus the watermark live sync resumes after.
type bootstrapResponse struct {
	Users        []*model.User        `json:"users"`
	ChatMessages []*model.ChatMessage `json:"chat_messages"`
	Me           *model.User          `json:"me"`
	LastSyncID   int64                `json:"last_sync_id"`
}

type eventsResponse struct {
	Events     []*model.Event `json:"events"`
	LastSyncID int64          `json:"last_sync_id"`
}

// handleBootstrap handles GET /v1/bootstrap.
func (s *SyncServer) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFromContext(ctx)

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		slog.Error("bootstrap: failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	messages, err := s.store.ListChatMessages(ctx)
	if err != nil {
		slog.Error("bootstrap: failed to list chat messages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	me, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		slog.Error("bootstrap: failed to load current user", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	lastSyncID, err := s.store.LatestEventID(ctx)
	if err != nil {
		slog.Error("bootstrap: failed to read watermark", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	writeJSON(w, http.StatusOK, bootstrapResponse{
		Users:        users,
		ChatMessages: messages,
		Me:           me,
		LastSyncID:   lastSyncID,
	})
}

// handleEvents handles GET /v1/events?after=N, returning committed log rows
// past the given watermark in id order.
func (s *SyncServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	afterID, err := parseAfter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after parameter")
		return
	}

	evts, err := s.store.EventsSince(r.Context(), afterID)
	if err != nil {
		slog.Error("failed to list events", "after", afterID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	lastSyncID := afterID
	if len(evts) > 0 {
		lastSyncID = evts[len(evts)-1].ID
	}
	if evts == nil {
		evts = []*model.Event{}
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: evts, LastSyncID: lastSyncID})
}

// handlePresence handles GET /v1/presence.
func (s *SyncServer) handlePresence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"online": s.Presence.Online()})
}

// parseAfter reads the ?after= watermark, defaulting to 0.
func parseAfter(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		return 0, nil
	}
	afterID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || afterID < 0 {
		return 0, strconv.ErrSyntax
	}
	return afterID, nil
}
