// Package store defines the persistence interface for the event log and the
// state materialized from it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// ErrNotFound is returned by point lookups when no row matches. Expired
// sessions are reported as not found.
var ErrNotFound = errors.New("not found")

// Error is a storage-level failure: the transaction was aborted and rolled
// back, so no partial state (log row without materialization, or vice versa)
// is observable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserRecord pairs a materialized user with its password hash for auth lookups.
type UserRecord struct {
	User         model.User
	PasswordHash string
}

// Store is the single source of truth. AppendEvent is the only mutation entry
// point for materialized aggregates; user and session provisioning sit outside
// the log, matching the upstream system where accounts are created out-of-band.
type Store interface {
	// AppendEvent validates the event's payload variant, then inserts the
	// immutable log row and applies the materialization mutation inside one
	// transaction. It returns the committed event with server-assigned ID and
	// CreatedAt. Shape mismatches and aggregate-existence violations fail with
	// *model.ValidationError before any visible mutation; everything else
	// fails with *Error and full rollback. Appends are serialized.
	AppendEvent(ctx context.Context, event *model.Event) (*model.Event, error)

	// LatestEventID returns the current watermark: the highest event id in the
	// log, or 0 when the log is empty.
	LatestEventID(ctx context.Context) (int64, error)

	// EventsSince returns committed log rows with id > afterID in id order.
	EventsSince(ctx context.Context, afterID int64) ([]*model.Event, error)

	// Snapshot queries over materialized state.
	ListUsers(ctx context.Context) ([]*model.User, error)
	ListChatMessages(ctx context.Context) ([]*model.ChatMessage, error)

	// Point lookups needed by auth.
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*UserRecord, error)

	// Account provisioning (out-of-band, not event-sourced).
	CreateUser(ctx context.Context, user *model.User, passwordHash string) error

	// Sessions. GetSession only sees sessions whose expiry is in the future.
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// Lifecycle
	Close() error
}
