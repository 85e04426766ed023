package localstore

import (
	"testing"
	"time"

	"github.com/Doesntmeananything/sashay/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutUser_UpsertsByID(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutUser(&model.User{ID: "u1", Username: "Andrey"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutUser(&model.User{ID: "u1", Username: "Andrey2"}); err != nil {
		t.Fatalf("put again: %v", err)
	}

	users, err := s.Users()
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "Andrey2" {
		t.Errorf("users = %+v, want single updated row", users)
	}
}

func TestChatMessages_TimelineOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, m := range []*model.ChatMessage{
		{ID: "m2", Content: "second", CreatedAt: base.Add(time.Minute)},
		{ID: "m1", Content: "first", CreatedAt: base},
	} {
		if err := s.PutChatMessage(m); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	msgs, err := s.ChatMessages()
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %+v, want m1 then m2", msgs)
	}
}

func TestDeleteChatMessage_AbsentIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteChatMessage("ghost"); err != nil {
		t.Errorf("deleting absent message: %v", err)
	}
}

func TestWatermark_DefaultsToZero(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Watermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if got != 0 {
		t.Errorf("watermark = %d, want 0", got)
	}

	if err := s.SetWatermark(42); err != nil {
		t.Fatalf("set watermark: %v", err)
	}
	got, err = s.Watermark()
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if got != 42 {
		t.Errorf("watermark = %d, want 42", got)
	}
}

func TestReset_ReplacesEverything(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutUser(&model.User{ID: "stale", Username: "Old"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutChatMessage(&model.ChatMessage{ID: "stale-msg", Content: "old"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := s.Reset(
		[]*model.User{{ID: "u1", Username: "Andrey"}},
		[]*model.ChatMessage{{ID: "m1", Content: "hello"}},
		7,
	)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	users, _ := s.Users()
	msgs, _ := s.ChatMessages()
	wm, _ := s.Watermark()
	if len(users) != 1 || users[0].ID != "u1" {
		t.Errorf("users after reset = %+v", users)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("messages after reset = %+v", msgs)
	}
	if wm != 7 {
		t.Errorf("watermark after reset = %d, want 7", wm)
	}
}
