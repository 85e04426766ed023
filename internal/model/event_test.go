package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate_ChatMessageCreate(t *testing.T) {
	e := &Event{
		EntityType: EntityChatMessage,
		EntityID:   "m1",
		EventType:  EventCreate,
		EntityData: json.RawMessage(`{"user_id":"u1","content":"hello"}`),
	}
	if err := Validate(e); err != nil {
		t.Fatalf("Validate returned unexpected error: %v", err)
	}
}

func TestValidate_PayloadVariants(t *testing.T) {
	for _, tc := range []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{
			name: "create without entity_data",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventCreate,
			},
			wantErr: true,
		},
		{
			name: "create with entity_changes",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventCreate,
				EntityData:    json.RawMessage(`{"user_id":"u1","content":"hi"}`),
				EntityChanges: map[string]FieldChange{"content": {UpdatedFrom: "a", UpdatedTo: "b"}},
			},
			wantErr: true,
		},
		{
			name: "update with entity_data",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventUpdate,
				EntityData:    json.RawMessage(`{"content":"hi"}`),
				EntityChanges: map[string]FieldChange{"content": {UpdatedFrom: "a", UpdatedTo: "b"}},
			},
			wantErr: true,
		},
		{
			name: "update without relevant field change",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventUpdate,
				EntityChanges: map[string]FieldChange{"color": {UpdatedFrom: "a", UpdatedTo: "b"}},
			},
			wantErr: true,
		},
		{
			name: "chat_message update",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventUpdate,
				EntityChanges: map[string]FieldChange{"content": {UpdatedFrom: "a", UpdatedTo: "b"}},
			},
		},
		{
			name: "delete with payload",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventDelete,
				EntityData: json.RawMessage(`{}`),
			},
			wantErr: true,
		},
		{
			name: "chat_message delete",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventDelete,
			},
		},
		{
			name: "user update username",
			event: Event{
				EntityType: EntityUser, EntityID: "u1", EventType: EventUpdate,
				EntityChanges: map[string]FieldChange{"username": {UpdatedFrom: "andrey", UpdatedTo: "andy"}},
			},
		},
		{
			name: "unknown entity type",
			event: Event{
				EntityType: "robot", EntityID: "r1", EventType: EventCreate,
				EntityData: json.RawMessage(`{}`),
			},
			wantErr: true,
		},
		{
			name: "unknown event type",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: "upsert",
			},
			wantErr: true,
		},
		{
			name: "missing entity id",
			event: Event{
				EntityType: EntityChatMessage, EventType: EventCreate,
				EntityData: json.RawMessage(`{"user_id":"u1","content":"hi"}`),
			},
			wantErr: true,
		},
		{
			name: "empty content",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventCreate,
				EntityData: json.RawMessage(`{"user_id":"u1","content":""}`),
			},
			wantErr: true,
		},
		{
			name: "malformed payload",
			event: Event{
				EntityType: EntityChatMessage, EntityID: "m1", EventType: EventCreate,
				EntityData: json.RawMessage(`{"user_id":`),
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.event)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("error is %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	e := &Event{
		ID:         42,
		EntityType: EntityChatMessage,
		EntityID:   "m1",
		EventType:  EventCreate,
		EntityData: json.RawMessage(`{"user_id":"u1","content":"hello"}`),
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != 42 || got.EntityID != "m1" || got.EventType != EventCreate {
		t.Errorf("round trip mismatch: %+v", got)
	}
	// Update events must omit entity_data on the wire.
	u := &Event{
		EntityType:    EntityChatMessage,
		EntityID:      "m1",
		EventType:     EventUpdate,
		EntityChanges: map[string]FieldChange{"content": {UpdatedFrom: "a", UpdatedTo: "b"}},
	}
	data, err = json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	if string(data) != "" {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("unmarshal raw: %v", err)
		}
		if _, ok := raw["entity_data"]; ok {
			t.Error("update event serialized entity_data")
		}
		if _, ok := raw["entity_changes"]; !ok {
			t.Error("update event missing entity_changes")
		}
	}
}
