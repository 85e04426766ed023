package model

import (
	"encoding/json"
	"time"
)

// EntityType tags which aggregate an event concerns.
type EntityType string

const (
	EntityUser        EntityType = "user"
	EntityChatMessage EntityType = "chat_message"
)

// String returns the string representation of the entity type.
func (t EntityType) String() string {
	return string(t)
}

// IsValid checks whether the entity type is a known value.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityUser, EntityChatMessage:
		return true
	}
	return false
}

// EventType is the kind of mutation an event records.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks whether the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventCreate, EventUpdate, EventDelete:
		return true
	}
	return false
}

// FieldChange records a single field transition inside an update event.
type FieldChange struct {
	UpdatedFrom string `json:"updated_from"`
	UpdatedTo   string `json:"updated_to"`
}

// Event is one row of the append-only log and the wire envelope for the live
// connection. The payload is a tagged union keyed on (EntityType, EventType):
// create events carry EntityData, update events carry EntityChanges, delete
// events carry neither. ID and CreatedAt are server-assigned at append time
// and zero on inbound command events.
type Event struct {
	ID            int64                  `json:"id"`
	EntityType    EntityType             `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	EventType     EventType              `json:"event_type"`
	EntityData    json.RawMessage        `json:"entity_data,omitempty"`
	EntityChanges map[string]FieldChange `json:"entity_changes,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ChatMessagePayload is the EntityData shape for a chat_message create event.
type ChatMessagePayload struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// UserPayload is the EntityData shape for a user create event.
type UserPayload struct {
	Username string `json:"username"`
}

// Validate checks that an event's declared shape matches its
// (entity_type, event_type) variant. It is a schema-level guard: exactly one
// of EntityData / EntityChanges must be populated for create / update, and
// neither for delete. It returns a *ValidationError describing every
// violation, or nil.
func Validate(e *Event) error {
	var ve ValidationError

	if !e.EntityType.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "entity_type", Message: "unknown value " + string(e.EntityType)})
	}
	if !e.EventType.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "event_type", Message: "unknown value " + string(e.EventType)})
	}
	if e.EntityID == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "entity_id", Message: "is required"})
	}
	if ve.HasErrors() {
		return &ve
	}

	switch e.EventType {
	case EventCreate:
		if len(e.EntityData) == 0 {
			ve.Errors = append(ve.Errors, FieldError{Field: "entity_data", Message: "is required for create events"})
		}
		if e.EntityChanges != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "entity_changes", Message: "must be absent on create events"})
		}
	case EventUpdate:
		if len(e.EntityChanges) == 0 {
			ve.Errors = append(ve.Errors, FieldError{Field: "entity_changes", Message: "is required for update events"})
		}
		if len(e.EntityData) != 0 {
			ve.Errors = append(ve.Errors, FieldError{Field: "entity_data", Message: "must be absent on update events"})
		}
	case EventDelete:
		if len(e.EntityData) != 0 {
			ve.Errors = append(ve.Errors, FieldError{Field: "entity_data", Message: "must be absent on delete events"})
		}
		if e.EntityChanges != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "entity_changes", Message: "must be absent on delete events"})
		}
	}
	if ve.HasErrors() {
		return &ve
	}

	// Per-variant payload checks.
	switch e.EntityType {
	case EntityChatMessage:
		switch e.EventType {
		case EventCreate:
			var p ChatMessagePayload
			if err := json.Unmarshal(e.EntityData, &p); err != nil {
				ve.Errors = append(ve.Errors, FieldError{Field: "entity_data", Message: "malformed chat_message payload"})
			} else if p.Content == "" {
				ve.Errors = append(ve.Errors, FieldError{Field: "entity_data.content", Message: "is required"})
			}
		case EventUpdate:
			if _, ok := e.EntityChanges["content"]; !ok {
				ve.Errors = append(ve.Errors, FieldError{Field: "entity_changes.content", Message: "is required"})
			}
		}
	case EntityUser:
		switch e.EventType {
		case EventCreate:
			var p UserPayload
			if err := json.Unmarshal(e.EntityData, &p); err != nil {
				ve.Errors = append(ve.Errors, FieldError{Field: "entity_data", Message: "malformed user payload"})
			} else if p.Username == "" {
				ve.Errors = append(ve.Errors, FieldError{Field: "entity_data.username", Message: "is required"})
			}
		case EventUpdate:
			if _, ok := e.EntityChanges["username"]; !ok {
				ve.Errors = append(ve.Errors, FieldError{Field: "entity_changes.username", Message: "is required"})
			}
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
