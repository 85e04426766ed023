package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Doesntmeananything/sashay/internal/model"
)

const (
	// closeUnauthorized is sent when the handshake carries no usable session.
	closeUnauthorized = 4001

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The cookie session is the trust boundary; origins are not filtered so
	// the CLI and dev frontends on other ports can connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS handles GET /v1/ws. The upgrade happens first so an invalid
// session can be answered with close code 4001 on the websocket itself; a
// plain 401 would be invisible to most browser websocket clients.
func (s *SyncServer) handleWS(w http.ResponseWriter, r *http.Request) {
	afterID, err := parseAfter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after parameter")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess, err := s.gate.ResolveSession(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		msg := websocket.FormatCloseMessage(closeUnauthorized, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.runSession(r.Context(), conn, sess, afterID)
}

// runSession drives one authenticated sync session: subscribe, replay from
// the watermark, then pump frames both ways until the peer goes away.
func (s *SyncServer) runSession(ctx context.Context, conn *websocket.Conn, sess *model.Session, afterID int64) {
	log := slog.With("user_id", sess.UserID, "username", sess.Username)

	// Subscribe before replaying so nothing committed between the replay
	// query and going live can be missed. Duplicates across the boundary are
	// filtered by event id in the write pump.
	sub := s.hub.Subscribe(TopicChat)

	if s.Presence.Connect(sess.UserID, sess.Username) {
		s.hub.Publish(TopicChat, &Envelope{
			Type:     EnvelopeConnected,
			Presence: &PresenceChange{UserID: sess.UserID, Username: sess.Username},
		})
	}

	defer func() {
		s.hub.Unsubscribe(sub)
		if s.Presence.Disconnect(sess.UserID) {
			s.hub.Publish(TopicChat, &Envelope{
				Type:     EnvelopeDisconnected,
				Presence: &PresenceChange{UserID: sess.UserID, Username: sess.Username},
			})
		}
		conn.Close()
		log.Info("sync session closed")
	}()

	log.Info("sync session opened", "after", afterID)

	quit := make(chan struct{})
	done := make(chan struct{})
	go s.writePump(ctx, conn, sub, afterID, quit, done, log)
	s.readPump(ctx, conn, sess, log)
	close(quit)
	<-done
}

// readPump consumes inbound frames until the connection drops. Only
// chat_message create commands mutate anything; every other shape is noted
// and ignored so a misbehaving client cannot take the session down.
func (s *SyncServer) readPump(ctx context.Context, conn *websocket.Conn, sess *model.Session, log *slog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("sync session read error", "error", err)
			}
			return
		}
		s.Presence.Touch(sess.UserID)

		if env.Type != EnvelopeEvent || env.Event == nil {
			log.Warn("ignoring malformed frame", "type", env.Type)
			continue
		}

		e := env.Event
		if e.EntityType != model.EntityChatMessage || e.EventType != model.EventCreate {
			log.Warn("unhandled sync command", "entity_type", e.EntityType, "event_type", e.EventType)
			continue
		}

		stamped, err := stampSender(e, sess.UserID)
		if err != nil {
			log.Warn("rejecting chat message with bad payload", "error", err)
			continue
		}

		if _, err := s.appendAndMirror(ctx, stamped); err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				log.Warn("rejected chat message", "entity_id", e.EntityID, "error", verr)
			} else {
				log.Error("failed to append chat message", "entity_id", e.EntityID, "error", err)
			}
			// The session stays up and nothing is broadcast.
		}
	}
}

// stampSender overwrites the payload's user_id with the session's identity so
// clients cannot speak for each other.
func stampSender(e *model.Event, userID string) (*model.Event, error) {
	var payload model.ChatMessagePayload
	if err := json.Unmarshal(e.EntityData, &payload); err != nil {
		return nil, err
	}
	payload.UserID = userID
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	stamped := *e
	stamped.EntityData = data
	return &stamped, nil
}

// writePump replays events past the watermark, then streams live frames and
// pings until the subscription is torn down or a write fails.
func (s *SyncServer) writePump(ctx context.Context, conn *websocket.Conn, sub *Subscriber, afterID int64, quit <-chan struct{}, done chan<- struct{}, log *slog.Logger) {
	defer close(done)
	defer conn.Close()

	lastSent := afterID
	missed, err := s.store.EventsSince(ctx, afterID)
	if err != nil {
		log.Error("failed to replay events", "after", afterID, "error", err)
	}
	for _, e := range missed {
		if err := writeFrame(conn, &Envelope{Type: EnvelopeEvent, Event: e}); err != nil {
			return
		}
		lastSent = e.ID
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case env, ok := <-sub.Frames():
			if !ok {
				return
			}
			// Skip events already covered by the replay.
			if env.Type == EnvelopeEvent && env.Event.ID <= lastSent {
				continue
			}
			if err := writeFrame(conn, env); err != nil {
				return
			}
			if env.Type == EnvelopeEvent {
				lastSent = env.Event.ID
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, env *Envelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
