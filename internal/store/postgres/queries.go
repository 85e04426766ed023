package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// eventColumns is the column list used for SELECT statements on the event log.
const eventColumns = `id, entity_type, entity_id, event_type, entity_data, entity_changes, created_at`

func queryInsertEvent(ctx context.Context, db executor, e *model.Event, now time.Time) (*model.Event, error) {
	var changes []byte
	if e.EntityChanges != nil {
		b, err := json.Marshal(e.EntityChanges)
		if err != nil {
			return nil, fmt.Errorf("marshal entity_changes: %w", err)
		}
		changes = b
	}

	committed := &model.Event{
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		EventType:     e.EventType,
		EntityData:    e.EntityData,
		EntityChanges: e.EntityChanges,
		CreatedAt:     now,
	}

	err := db.QueryRowContext(ctx, `
		INSERT INTO event_log (entity_type, entity_id, event_type, entity_data, entity_changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.EntityType),
		e.EntityID,
		string(e.EventType),
		nullBytes(e.EntityData),
		nullBytes(changes),
		now,
	).Scan(&committed.ID)
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// applyEvent materializes a committed event inside the append transaction.
// The (entity_type, event_type) switch is exhaustive over the variants that
// model.Validate admits.
func applyEvent(ctx context.Context, db executor, e *model.Event) error {
	switch e.EntityType {
	case model.EntityChatMessage:
		switch e.EventType {
		case model.EventCreate:
			exists, err := queryRowExists(ctx, db, `SELECT EXISTS (SELECT 1 FROM chat_messages WHERE id = $1)`, e.EntityID)
			if err != nil {
				return err
			}
			if exists {
				return existsError("chat_message", e.EntityID)
			}
			var p model.ChatMessagePayload
			if err := json.Unmarshal(e.EntityData, &p); err != nil {
				return fmt.Errorf("decode chat_message payload: %w", err)
			}
			_, err = db.ExecContext(ctx, `
				INSERT INTO chat_messages (id, user_id, content, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)`,
				e.EntityID, p.UserID, p.Content, e.CreatedAt)
			return err

		case model.EventUpdate:
			content := e.EntityChanges["content"].UpdatedTo
			res, err := db.ExecContext(ctx, `
				UPDATE chat_messages SET content = $1, updated_at = $2 WHERE id = $3`,
				content, e.CreatedAt, e.EntityID)
			if err != nil {
				return err
			}
			return requireAffected(res, "chat_message", e.EntityID)

		case model.EventDelete:
			res, err := db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = $1`, e.EntityID)
			if err != nil {
				return err
			}
			return requireAffected(res, "chat_message", e.EntityID)
		}

	case model.EntityUser:
		switch e.EventType {
		case model.EventCreate:
			exists, err := queryRowExists(ctx, db, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, e.EntityID)
			if err != nil {
				return err
			}
			if exists {
				return existsError("user", e.EntityID)
			}
			var p model.UserPayload
			if err := json.Unmarshal(e.EntityData, &p); err != nil {
				return fmt.Errorf("decode user payload: %w", err)
			}
			// Event-created users carry no credential; they cannot log in
			// until one is provisioned out-of-band.
			_, err = db.ExecContext(ctx, `
				INSERT INTO users (id, username, password_hash, created_at, updated_at)
				VALUES ($1, $2, '', $3, $3)`,
				e.EntityID, p.Username, e.CreatedAt)
			return err

		case model.EventUpdate:
			username := e.EntityChanges["username"].UpdatedTo
			res, err := db.ExecContext(ctx, `
				UPDATE users SET username = $1, updated_at = $2 WHERE id = $3`,
				username, e.CreatedAt, e.EntityID)
			if err != nil {
				return err
			}
			return requireAffected(res, "user", e.EntityID)

		case model.EventDelete:
			res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, e.EntityID)
			if err != nil {
				return err
			}
			return requireAffected(res, "user", e.EntityID)
		}
	}
	return fmt.Errorf("unhandled event variant %s/%s", e.EntityType, e.EventType)
}

func queryLatestEventID(ctx context.Context, db executor) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM event_log`).Scan(&id)
	if err != nil {
		return 0, &store.Error{Op: "latest event id", Err: err}
	}
	return id, nil
}

func queryEventsSince(ctx context.Context, db executor, afterID int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM event_log
		WHERE id > $1
		ORDER BY id ASC`, afterID)
	if err != nil {
		return nil, &store.Error{Op: "events since", Err: err}
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, &store.Error{Op: "scan event", Err: err}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "events since", Err: err}
	}
	return events, nil
}

func queryListUsers(ctx context.Context, db executor) ([]*model.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, username, created_at, updated_at
		FROM users
		ORDER BY username ASC`)
	if err != nil {
		return nil, &store.Error{Op: "list users", Err: err}
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, &store.Error{Op: "scan user", Err: err}
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "list users", Err: err}
	}
	return users, nil
}

func queryListChatMessages(ctx context.Context, db executor) ([]*model.ChatMessage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, content, created_at, updated_at
		FROM chat_messages
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, &store.Error{Op: "list chat messages", Err: err}
	}
	defer rows.Close()

	var msgs []*model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, &store.Error{Op: "scan chat message", Err: err}
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "list chat messages", Err: err}
	}
	return msgs, nil
}

func queryGetUserByID(ctx context.Context, db executor, id string) (*model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx, `
		SELECT id, username, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.Error{Op: "get user", Err: err}
	}
	return &u, nil
}

func queryGetUserByUsername(ctx context.Context, db executor, username string) (*store.UserRecord, error) {
	var rec store.UserRecord
	err := db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at, updated_at
		FROM users WHERE username = $1`, username).
		Scan(&rec.User.ID, &rec.User.Username, &rec.PasswordHash, &rec.User.CreatedAt, &rec.User.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.Error{Op: "get user by username", Err: err}
	}
	return &rec, nil
}

func queryCreateUser(ctx context.Context, db executor, u *model.User, passwordHash string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, passwordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return &store.Error{Op: "create user", Err: err}
	}
	return nil
}

func queryCreateSession(ctx context.Context, db executor, s *model.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return &store.Error{Op: "create session", Err: err}
	}
	return nil
}

// queryGetSession joins the username in and filters expiry at query time, so
// an expired session is indistinguishable from a missing one.
func queryGetSession(ctx context.Context, db executor, id string) (*model.Session, error) {
	var s model.Session
	err := db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, u.username, s.created_at, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.id = $1 AND s.expires_at > now()`, id).
		Scan(&s.ID, &s.UserID, &s.Username, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.Error{Op: "get session", Err: err}
	}
	return &s, nil
}

// --- helpers ---

func queryRowExists(ctx context.Context, db executor, query string, args ...any) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missingError(entity, id)
	}
	return nil
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

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
