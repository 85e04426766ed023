package presence

import (
	"testing"
	"time"
)

func TestConnectDisconnect_FirstAndLast(t *testing.T) {
	tr := New()

	if first := tr.Connect("u1", "Andrey"); !first {
		t.Error("first connection should report user coming online")
	}
	if first := tr.Connect("u1", "Andrey"); first {
		t.Error("second connection should not report user coming online")
	}

	if last := tr.Disconnect("u1"); last {
		t.Error("closing one of two connections should not report offline")
	}
	if last := tr.Disconnect("u1"); !last {
		t.Error("closing the final connection should report offline")
	}

	if got := tr.Online(); len(got) != 0 {
		t.Errorf("roster after full disconnect = %v, want empty", got)
	}
}

func TestDisconnect_UnknownUser(t *testing.T) {
	tr := New()
	if last := tr.Disconnect("ghost"); last {
		t.Error("disconnecting an untracked user should not report offline")
	}
}

func TestOnline_SortedByUsername(t *testing.T) {
	tr := New()
	tr.Connect("u2", "Sasha")
	tr.Connect("u1", "Andrey")

	got := tr.Online()
	if len(got) != 2 {
		t.Fatalf("roster size = %d, want 2", len(got))
	}
	if got[0].Username != "Andrey" || got[1].Username != "Sasha" {
		t.Errorf("roster order = %s, %s", got[0].Username, got[1].Username)
	}
}

func TestTouch_UpdatesLastSeen(t *testing.T) {
	tr := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	tr.SetClock(func() time.Time { return current })

	tr.Connect("u1", "Andrey")
	current = base.Add(time.Minute)
	tr.Touch("u1")

	got := tr.Online()
	if len(got) != 1 {
		t.Fatalf("roster size = %d, want 1", len(got))
	}
	if !got[0].LastSeen.Equal(base.Add(time.Minute)) {
		t.Errorf("last seen = %v, want %v", got[0].LastSeen, base.Add(time.Minute))
	}
	if !got[0].ConnectedAt.Equal(base) {
		t.Errorf("connected at = %v, want %v", got[0].ConnectedAt, base)
	}
}
