// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB

	// appendMu serializes AppendEvent calls. The transaction already
	// guarantees atomicity; the mutex adds single-writer ordering so log ids
	// and created_at stamps advance together.
	appendMu sync.Mutex
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// AppendEvent writes the immutable log row and applies the materialization
// mutation inside a single transaction. Appends are serialized; either both
// writes commit or neither does.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *model.Event) (*model.Event, error) {
	if err := model.Validate(event); err != nil {
		return nil, err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &store.Error{Op: "append begin", Err: err}
	}

	now := time.Now().UTC()
	committed, err := queryInsertEvent(ctx, tx, event, now)
	if err != nil {
		_ = tx.Rollback()
		return nil, &store.Error{Op: "append log row", Err: err}
	}

	if err := applyEvent(ctx, tx, committed); err != nil {
		_ = tx.Rollback()
		// Aggregate-existence violations surface as validation errors with
		// log and materialized state both unchanged.
		if _, ok := err.(*model.ValidationError); ok {
			return nil, err
		}
		return nil, &store.Error{Op: "apply event", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &store.Error{Op: "append commit", Err: err}
	}
	return committed, nil
}

func (s *PostgresStore) LatestEventID(ctx context.Context) (int64, error) {
	return queryLatestEventID(ctx, s.db)
}

func (s *PostgresStore) EventsSince(ctx context.Context, afterID int64) ([]*model.Event, error) {
	return queryEventsSince(ctx, s.db, afterID)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	return queryListUsers(ctx, s.db)
}

func (s *PostgresStore) ListChatMessages(ctx context.Context) ([]*model.ChatMessage, error) {
	return queryListChatMessages(ctx, s.db)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return queryGetUserByID(ctx, s.db, id)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*store.UserRecord, error) {
	return queryGetUserByUsername(ctx, s.db, username)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *model.User, passwordHash string) error {
	return queryCreateUser(ctx, s.db, user, passwordHash)
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *model.Session) error {
	return queryCreateSession(ctx, s.db, session)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	return queryGetSession(ctx, s.db, id)
}
