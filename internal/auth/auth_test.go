package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Doesntmeananything/sashay/internal/store/memstore"
)

func TestLogin_IssuesSession(t *testing.T) {
	s := memstore.New()
	gate := New(s)
	ctx := context.Background()

	if _, err := gate.CreateUser(ctx, "andrey", "andrey123"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sessionID, err := gate.Login(ctx, "andrey", "andrey123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !strings.HasPrefix(sessionID, "ss-") {
		t.Errorf("session id = %q, want ss- prefix", sessionID)
	}

	sess, err := gate.ResolveSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if sess.Username != "andrey" {
		t.Errorf("resolved username = %q, want andrey", sess.Username)
	}
}

func TestLogin_GenericUnauthorized(t *testing.T) {
	s := memstore.New()
	gate := New(s)
	ctx := context.Background()

	if _, err := gate.CreateUser(ctx, "andrey", "andrey123"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Unknown user and wrong password yield the same error.
	_, unknownErr := gate.Login(ctx, "nobody", "whatever")
	_, wrongPwErr := gate.Login(ctx, "andrey", "wrong")
	if !errors.Is(unknownErr, ErrUnauthorized) {
		t.Errorf("unknown user error = %v, want ErrUnauthorized", unknownErr)
	}
	if !errors.Is(wrongPwErr, ErrUnauthorized) {
		t.Errorf("wrong password error = %v, want ErrUnauthorized", wrongPwErr)
	}
}

func TestResolveSession_Expired(t *testing.T) {
	s := memstore.New()
	gate := New(s)
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gate.SetClock(func() time.Time { return start })
	s.SetClock(func() time.Time { return start })

	if _, err := gate.CreateUser(ctx, "andrey", "andrey123"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	sessionID, err := gate.Login(ctx, "andrey", "andrey123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Before expiry the session resolves; after, it is unauthorized.
	if _, err := gate.ResolveSession(ctx, sessionID); err != nil {
		t.Fatalf("ResolveSession before expiry: %v", err)
	}
	s.SetClock(func() time.Time { return start.Add(SessionTTL + time.Minute) })
	if _, err := gate.ResolveSession(ctx, sessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ResolveSession after expiry = %v, want ErrUnauthorized", err)
	}
}

func TestResolveSession_EmptyID(t *testing.T) {
	gate := New(memstore.New())
	if _, err := gate.ResolveSession(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
}

func TestSeed_Idempotent(t *testing.T) {
	s := memstore.New()
	gate := New(s)
	ctx := context.Background()

	if err := gate.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := gate.Seed(ctx); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users after double seed, want 2", len(users))
	}
}
