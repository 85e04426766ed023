package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Doesntmeananything/sashay/internal/localstore"
	"github.com/Doesntmeananything/sashay/internal/model"
)

// ErrNotConnected is returned when a send is attempted without a live sync
// connection. Connecting is always explicit; the reconciler never redials on
// its own.
var ErrNotConnected = errors.New("not connected")

// Frame types on the sync wire.
const (
	frameEvent        = "event"
	frameConnected    = "connected"
	frameDisconnected = "disconnected"
)

// syncFrame mirrors the server's websocket envelope.
type syncFrame struct {
	Type     string        `json:"type"`
	Event    *model.Event  `json:"event,omitempty"`
	Presence *presencePeer `json:"presence,omitempty"`
}

type presencePeer struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Reconciler keeps a Mirror converged with the server's event log over a live
// sync connection. Sends are optimistic: the message lands in the mirror
// before it goes over the wire, and the broadcast echo of the committed event
// overwrites it in place.
type Reconciler struct {
	api    API
	local  *localstore.Store // nil disables persistence
	mirror *Mirror

	// OnPresence, when set before Connect, is invoked for peer
	// connected/disconnected frames.
	OnPresence func(username string, online bool)

	mu        sync.Mutex // guards conn and websocket writes
	conn      *websocket.Conn
	readDone  chan struct{}
	connected atomic.Bool
}

// NewReconciler returns a disconnected reconciler. local may be nil for
// callers that do not want an on-disk mirror.
func NewReconciler(api API, local *localstore.Store) *Reconciler {
	return &Reconciler{
		api:    api,
		local:  local,
		mirror: NewMirror(),
	}
}

// Mirror exposes the replica this reconciler maintains.
func (r *Reconciler) Mirror() *Mirror {
	return r.mirror
}

// Connected reports whether the live sync connection is up.
func (r *Reconciler) Connected() bool {
	return r.connected.Load()
}

// Connect bootstraps the mirror from a full snapshot and opens the live sync
// connection, resuming broadcast delivery after the snapshot's watermark.
// Calling Connect while connected is a no-op.
func (r *Reconciler) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	snap, err := r.api.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	r.mirror.Bootstrap(snap)
	if r.local != nil {
		if err := r.local.Reset(snap.Users, snap.ChatMessages, snap.LastSyncID); err != nil {
			slog.Warn("failed to persist bootstrap snapshot", "error", err)
		}
	}

	conn, err := r.api.DialSync(ctx, snap.LastSyncID)
	if err != nil {
		return fmt.Errorf("dial sync: %w", err)
	}

	r.conn = conn
	r.readDone = make(chan struct{})
	r.connected.Store(true)
	go r.readLoop(conn, r.readDone)
	return nil
}

// Disconnect closes the live connection and waits for the read loop to drain.
// The mirror keeps its state; a later Connect starts over from a fresh
// bootstrap.
func (r *Reconciler) Disconnect() {
	r.mu.Lock()
	conn := r.conn
	done := r.readDone
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
	<-done
}

// SendChatMessage creates a chat message with a fresh client-assigned id,
// applies it to the mirror immediately, and transmits it. The returned
// message is the optimistic local version; the committed one arrives on the
// broadcast and converges by id.
func (r *Reconciler) SendChatMessage(ctx context.Context, content string) (*model.ChatMessage, error) {
	if content == "" {
		return nil, errors.New("content is required")
	}
	me := r.mirror.Me()
	if me == nil || !r.connected.Load() {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	payload, err := json.Marshal(model.ChatMessagePayload{UserID: me.ID, Content: content})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	event := &model.Event{
		EntityType: model.EntityChatMessage,
		EntityID:   id,
		EventType:  model.EventCreate,
		EntityData: payload,
		CreatedAt:  time.Now().UTC(),
	}

	// Optimistic apply before the wire. The echo overwrites this entry.
	r.mirror.ApplyEvent(event)
	r.persistEvent(event)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil, ErrNotConnected
	}
	if err := r.conn.WriteJSON(&syncFrame{Type: frameEvent, Event: event}); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	return &model.ChatMessage{
		ID:        id,
		UserID:    me.ID,
		Content:   content,
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.CreatedAt,
	}, nil
}

// readLoop folds broadcast frames into the mirror until the connection drops.
func (r *Reconciler) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer r.connected.Store(false)

	for {
		var frame syncFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("sync connection lost", "error", err)
			}
			return
		}

		switch frame.Type {
		case frameEvent:
			if frame.Event == nil {
				continue
			}
			r.mirror.ApplyEvent(frame.Event)
			r.persistEvent(frame.Event)
		case frameConnected, frameDisconnected:
			if r.OnPresence != nil && frame.Presence != nil {
				r.OnPresence(frame.Presence.Username, frame.Type == frameConnected)
			}
		default:
			slog.Warn("ignoring unknown sync frame", "type", frame.Type)
		}
	}
}

// persistEvent mirrors an applied event into the local store. Persistence is
// best-effort; a broken disk mirror costs a re-bootstrap, not correctness.
func (r *Reconciler) persistEvent(e *model.Event) {
	if r.local == nil {
		return
	}

	var err error
	switch {
	case e.EntityType == model.EntityChatMessage && e.EventType == model.EventDelete:
		err = r.local.DeleteChatMessage(e.EntityID)
	case e.EntityType == model.EntityChatMessage:
		for _, msg := range r.mirror.Messages() {
			if msg.ID == e.EntityID {
				err = r.local.PutChatMessage(msg)
				break
			}
		}
	case e.EntityType == model.EntityUser && e.EventType != model.EventDelete:
		for _, u := range r.mirror.Users() {
			if u.ID == e.EntityID {
				err = r.local.PutUser(u)
				break
			}
		}
	}
	if err == nil && e.ID > 0 {
		err = r.local.SetWatermark(e.ID)
	}
	if err != nil {
		slog.Warn("failed to persist event locally", "entity_id", e.EntityID, "error", err)
	}
}
