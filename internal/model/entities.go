package model

import "time"

// User is a materialized user aggregate. The password hash never leaves the
// store layer; User is the shape served to clients.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is a materialized chat message aggregate. Its ID is
// caller-assigned (the authoring client generates a UUID) so that an
// optimistic local write and the server-confirmed write share identity.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is an issued login session. Sessions past ExpiresAt are invisible
// to all lookups; they are filtered at query time, never eagerly deleted.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
