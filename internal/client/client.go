// Package client implements the sync client: an HTTP/websocket API client, an
// in-memory mirror of server state, and the reconciler that keeps the mirror
// converged with the event log.
package client

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	SessionID string      `json:"session_id"`
	User      *model.User `json:"user"`
}

// Snapshot is the full materialized state a client bootstraps its mirror from.
type Snapshot struct {
	Users        []*model.User        `json:"users"`
	ChatMessages []*model.ChatMessage `json:"chat_messages"`
	Me           *model.User          `json:"me"`
	LastSyncID   int64                `json:"last_sync_id"`
}

// API is the server surface the reconciler works against.
type API interface {
	// Login exchanges credentials for a session id, which the client then
	// presents on every subsequent call.
	Login(ctx context.Context, username, password string) (*LoginResult, error)

	// Me returns the authenticated user.
	Me(ctx context.Context) (*model.User, error)

	// Bootstrap returns the full snapshot plus the sync watermark.
	Bootstrap(ctx context.Context) (*Snapshot, error)

	// EventsSince returns committed events past the watermark, and the new
	// watermark after consuming them.
	EventsSince(ctx context.Context, afterID int64) ([]*model.Event, int64, error)

	// DialSync opens the live websocket connection, resuming after the given
	// watermark.
	DialSync(ctx context.Context, afterID int64) (*websocket.Conn, error)

	Close() error
}
