// Package auth resolves credentials into identities and issues login sessions.
// It is the only component that sees password hashes; everything downstream
// works with session ids.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Doesntmeananything/sashay/internal/idgen"
	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/store"
)

// SessionTTL is how long an issued session stays valid.
const SessionTTL = 30 * 24 * time.Hour

// ErrUnauthorized is returned for any credential failure. Unknown usernames
// and wrong passwords are deliberately indistinguishable to callers.
var ErrUnauthorized = errors.New("unauthorized")

// Gate authenticates users against the store and manages sessions.
type Gate struct {
	store store.Store
	now   func() time.Time
}

// New returns a Gate backed by the given store.
func New(s store.Store) *Gate {
	return &Gate{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the gate's time source. Test hook.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// Login verifies the username/password pair and issues a new session,
// returning its id. Any failure collapses to ErrUnauthorized.
func (g *Gate) Login(ctx context.Context, username, password string) (string, error) {
	rec, err := g.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return "", ErrUnauthorized
	}

	sessionID, err := idgen.NewSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	now := g.now()
	if err := g.store.CreateSession(ctx, &model.Session{
		ID:        sessionID,
		UserID:    rec.User.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, nil
}

// ResolveSession returns the session for the given id, or ErrUnauthorized if
// the id is unknown or the session has expired.
func (g *Gate) ResolveSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}
	sess, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("look up session: %w", err)
	}
	return sess, nil
}

// CreateUser provisions an account with a bcrypt-hashed password. Accounts are
// created out-of-band (CLI or seeding), not through the event log.
func (g *Gate) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := g.now()
	user := &model.User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.CreateUser(ctx, user, string(hash)); err != nil {
		return nil, err
	}
	return user, nil
}

// Seed provisions the development users if they do not exist yet.
func (g *Gate) Seed(ctx context.Context) error {
	for _, u := range []struct{ username, password string }{
		{"Andrey", "andrey123"},
		{"Sasha", "sasha123"},
	} {
		_, err := g.store.GetUserByUsername(ctx, u.username)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check user %s: %w", u.username, err)
		}
		if _, err := g.CreateUser(ctx, u.username, u.password); err != nil {
			return fmt.Errorf("seed user %s: %w", u.username, err)
		}
	}
	return nil
}
