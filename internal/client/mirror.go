package client

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// Mirror is the client-side replica of server state: users and chat messages
// keyed by entity id, plus the watermark of the last folded-in event.
// ApplyEvent is idempotent, so an optimistic local apply followed by the
// broadcast echo of the same entity converges instead of duplicating.
type Mirror struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	messages  map[string]*model.ChatMessage
	me        *model.User
	watermark int64

	onChange []func()
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{
		users:    make(map[string]*model.User),
		messages: make(map[string]*model.ChatMessage),
	}
}

// OnChange registers a callback invoked after every mutation. Callbacks run
// outside the mirror lock on the mutating goroutine.
func (m *Mirror) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Bootstrap replaces the mirror wholesale with the given snapshot.
func (m *Mirror) Bootstrap(snap *Snapshot) {
	m.mu.Lock()
	m.users = make(map[string]*model.User, len(snap.Users))
	for _, u := range snap.Users {
		m.users[u.ID] = u
	}
	m.messages = make(map[string]*model.ChatMessage, len(snap.ChatMessages))
	for _, msg := range snap.ChatMessages {
		m.messages[msg.ID] = msg
	}
	m.me = snap.Me
	m.watermark = snap.LastSyncID
	m.mu.Unlock()

	m.notify()
}

// ApplyEvent folds one event into the mirror. Events already reflected in the
// mirror (an echo of an optimistic apply, or a replayed frame) overwrite by
// entity id rather than duplicating. The watermark only moves forward, and
// only for server-assigned ids.
func (m *Mirror) ApplyEvent(e *model.Event) {
	m.mu.Lock()
	switch e.EntityType {
	case model.EntityChatMessage:
		m.applyChatMessage(e)
	case model.EntityUser:
		m.applyUser(e)
	default:
		slog.Warn("mirror ignoring event for unknown entity type", "entity_type", e.EntityType)
	}
	if e.ID > m.watermark {
		m.watermark = e.ID
	}
	m.mu.Unlock()

	m.notify()
}

func (m *Mirror) applyChatMessage(e *model.Event) {
	switch e.EventType {
	case model.EventCreate:
		var p model.ChatMessagePayload
		if err := json.Unmarshal(e.EntityData, &p); err != nil {
			slog.Warn("mirror dropping malformed chat_message payload", "entity_id", e.EntityID, "error", err)
			return
		}
		m.messages[e.EntityID] = &model.ChatMessage{
			ID:        e.EntityID,
			UserID:    p.UserID,
			Content:   p.Content,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.CreatedAt,
		}
	case model.EventUpdate:
		msg, ok := m.messages[e.EntityID]
		if !ok {
			slog.Warn("mirror ignoring update for unknown chat message", "entity_id", e.EntityID)
			return
		}
		if change, ok := e.EntityChanges["content"]; ok {
			msg.Content = change.UpdatedTo
		}
		msg.UpdatedAt = e.CreatedAt
	case model.EventDelete:
		delete(m.messages, e.EntityID)
	}
}

func (m *Mirror) applyUser(e *model.Event) {
	switch e.EventType {
	case model.EventCreate:
		var p model.UserPayload
		if err := json.Unmarshal(e.EntityData, &p); err != nil {
			slog.Warn("mirror dropping malformed user payload", "entity_id", e.EntityID, "error", err)
			return
		}
		m.users[e.EntityID] = &model.User{
			ID:        e.EntityID,
			Username:  p.Username,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.CreatedAt,
		}
	case model.EventUpdate:
		u, ok := m.users[e.EntityID]
		if !ok {
			slog.Warn("mirror ignoring update for unknown user", "entity_id", e.EntityID)
			return
		}
		if change, ok := e.EntityChanges["username"]; ok {
			u.Username = change.UpdatedTo
		}
		u.UpdatedAt = e.CreatedAt
	case model.EventDelete:
		delete(m.users, e.EntityID)
	}
}

// Users returns all known users, sorted by username.
func (m *Mirror) Users() []*model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// Messages returns all known chat messages in timeline order.
func (m *Mirror) Messages() []*model.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]*model.ChatMessage, 0, len(m.messages))
	for _, msg := range m.messages {
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}

// Username resolves a user id to a display name, falling back to the id.
func (m *Mirror) Username(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[userID]; ok {
		return u.Username
	}
	return userID
}

// Me returns the authenticated user from the last bootstrap.
func (m *Mirror) Me() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.me
}

// Watermark returns the id of the last server event folded into the mirror.
func (m *Mirror) Watermark() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermark
}

func (m *Mirror) notify() {
	m.mu.RLock()
	callbacks := make([]func(), len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}
