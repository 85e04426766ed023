// Package server exposes the sync service over HTTP: login and snapshot
// endpoints plus the websocket live connection, with an in-process broadcast
// hub fanning committed events out to every open session.
package server

import (
	"context"
	"log/slog"

	"github.com/Doesntmeananything/sashay/internal/auth"
	"github.com/Doesntmeananything/sashay/internal/events"
	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/presence"
	"github.com/Doesntmeananything/sashay/internal/store"
)

// SyncServer ties the store, the auth gate, the broadcast hub, and the NATS
// mirror together behind the HTTP surface.
type SyncServer struct {
	store     store.Store
	gate      *auth.Gate
	publisher events.Publisher
	hub       *Hub
	Presence  *presence.Tracker
}

// NewSyncServer returns a SyncServer backed by the given store and publisher.
func NewSyncServer(s store.Store, g *auth.Gate, p events.Publisher) *SyncServer {
	return &SyncServer{
		store:     s,
		gate:      g,
		publisher: p,
		hub:       NewHub(),
		Presence:  presence.New(),
	}
}

// Hub exposes the broadcast hub, mainly for tests and in-process consumers.
func (s *SyncServer) Hub() *Hub {
	return s.hub
}

// appendAndMirror commits the event through the store, then fans it out. The
// append is authoritative and its error goes back to the caller; the NATS
// mirror and the hub broadcast are best-effort egress on top of the committed
// log row.
func (s *SyncServer) appendAndMirror(ctx context.Context, e *model.Event) (*model.Event, error) {
	stored, err := s.store.AppendEvent(ctx, e)
	if err != nil {
		return nil, err
	}

	subject := events.Subject(stored)
	if err := s.publisher.Publish(ctx, subject, stored); err != nil {
		slog.Warn("failed to mirror event", "subject", subject, "event_id", stored.ID, "error", err)
	}
	s.hub.Publish(TopicChat, &Envelope{Type: EnvelopeEvent, Event: stored})

	return stored, nil
}
