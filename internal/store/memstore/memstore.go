// Package memstore implements store.Store entirely in memory. It mirrors the
// postgres implementation's semantics (one logical transaction per append,
// query-time session expiry, snapshot ordering) and backs tests and local
// development without a database.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/store"
)

// MemStore is an in-memory store.Store. The zero value is not usable; call New.
type MemStore struct {
	mu sync.Mutex

	log      []*model.Event
	nextID   int64
	users    map[string]*userRow
	messages map[string]*model.ChatMessage
	sessions map[string]*model.Session

	now func() time.Time
}

type userRow struct {
	user         model.User
	passwordHash string
}

// Compile-time check that MemStore implements store.Store.
var _ store.Store = (*MemStore)(nil)

// New returns an empty in-memory store.
func New() *MemStore {
	return &MemStore{
		nextID:   1,
		users:    make(map[string]*userRow),
		messages: make(map[string]*model.ChatMessage),
		sessions: make(map[string]*model.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) Close() error { return nil }

// AppendEvent validates, applies the materialization, and only then records
// the log row, so a failed apply leaves both the log and the aggregates
// untouched, the in-memory analogue of a rolled-back transaction.
func (s *MemStore) AppendEvent(ctx context.Context, event *model.Event) (*model.Event, error) {
	if err := model.Validate(event); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	committed := &model.Event{
		ID:            s.nextID,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		EventType:     event.EventType,
		EntityData:    event.EntityData,
		EntityChanges: event.EntityChanges,
		CreatedAt:     s.now(),
	}

	if err := s.apply(committed); err != nil {
		return nil, err
	}

	s.log = append(s.log, committed)
	s.nextID++
	return committed, nil
}

func (s *MemStore) apply(e *model.Event) error {
	switch e.EntityType {
	case model.EntityChatMessage:
		switch e.EventType {
		case model.EventCreate:
			if _, ok := s.messages[e.EntityID]; ok {
				return existsError("chat_message", e.EntityID)
			}
			var p model.ChatMessagePayload
			if err := json.Unmarshal(e.EntityData, &p); err != nil {
				return &store.Error{Op: "decode chat_message payload", Err: err}
			}
			s.messages[e.EntityID] = &model.ChatMessage{
				ID:        e.EntityID,
				UserID:    p.UserID,
				Content:   p.Content,
				CreatedAt: e.CreatedAt,
				UpdatedAt: e.CreatedAt,
			}
			return nil
		case model.EventUpdate:
			m, ok := s.messages[e.EntityID]
			if !ok {
				return missingError("chat_message", e.EntityID)
			}
			m.Content = e.EntityChanges["content"].UpdatedTo
			m.UpdatedAt = e.CreatedAt
			return nil
		case model.EventDelete:
			if _, ok := s.messages[e.EntityID]; !ok {
				return missingError("chat_message", e.EntityID)
			}
			delete(s.messages, e.EntityID)
			return nil
		}
	case model.EntityUser:
		switch e.EventType {
		case model.EventCreate:
			if _, ok := s.users[e.EntityID]; ok {
				return existsError("user", e.EntityID)
			}
			var p model.UserPayload
			if err := json.Unmarshal(e.EntityData, &p); err != nil {
				return &store.Error{Op: "decode user payload", Err: err}
			}
			s.users[e.EntityID] = &userRow{user: model.User{
				ID:        e.EntityID,
				Username:  p.Username,
				CreatedAt: e.CreatedAt,
				UpdatedAt: e.CreatedAt,
			}}
			return nil
		case model.EventUpdate:
			u, ok := s.users[e.EntityID]
			if !ok {
				return missingError("user", e.EntityID)
			}
			u.user.Username = e.EntityChanges["username"].UpdatedTo
			u.user.UpdatedAt = e.CreatedAt
			return nil
		case model.EventDelete:
			if _, ok := s.users[e.EntityID]; !ok {
				return missingError("user", e.EntityID)
			}
			delete(s.users, e.EntityID)
			return nil
		}
	}
	return &store.Error{Op: "apply", Err: fmt.Errorf("unhandled event variant %s/%s", e.EntityType, e.EventType)}
}

func (s *MemStore) LatestEventID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.log) == 0 {
		return 0, nil
	}
	return s.log[len(s.log)-1].ID, nil
}

func (s *MemStore) EventsSince(ctx context.Context, afterID int64) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []*model.Event
	for _, e := range s.log {
		if e.ID > afterID {
			copied := *e
			events = append(events, &copied)
		}
	}
	return events, nil
}

func (s *MemStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*model.User, 0, len(s.users))
	for _, row := range s.users {
		u := row.user
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *MemStore) ListChatMessages(ctx context.Context) ([]*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]*model.ChatMessage, 0, len(s.messages))
	for _, m := range s.messages {
		copied := *m
		msgs = append(msgs, &copied)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (s *MemStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := row.user
	return &u, nil
}

func (s *MemStore) GetUserByUsername(ctx context.Context, username string) (*store.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.users {
		if row.user.Username == username {
			return &store.UserRecord{User: row.user, PasswordHash: row.passwordHash}, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *MemStore) CreateUser(ctx context.Context, user *model.User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return &store.Error{Op: "create user", Err: fmt.Errorf("user %q already exists", user.ID)}
	}
	for _, row := range s.users {
		if row.user.Username == user.Username {
			return &store.Error{Op: "create user", Err: fmt.Errorf("username %q already taken", user.Username)}
		}
	}
	s.users[user.ID] = &userRow{user: *user, passwordHash: passwordHash}
	return nil
}

func (s *MemStore) CreateSession(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *MemStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.ExpiresAt.After(s.now()) {
		return nil, store.ErrNotFound
	}
	row, ok := s.users[sess.UserID]
	copied := *sess
	if ok {
		copied.Username = row.user.Username
	}
	return &copied, nil
}

func existsError(entity, id string) error {
	return &model.ValidationError{Errors: []model.FieldError{{
		Field:   "entity_id",
		Message: fmt.Sprintf("%s %q already exists", entity, id),
	}}}
}

func missingError(entity, id string) error {
	return &model.ValidationError{Errors: []model.FieldError{{
		Field:   "entity_id",
		Message: fmt.Sprintf("%s %q does not exist", entity, id),
	}}}
}
