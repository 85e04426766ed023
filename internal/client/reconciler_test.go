package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Doesntmeananything/sashay/internal/auth"
	"github.com/Doesntmeananything/sashay/internal/events"
	"github.com/Doesntmeananything/sashay/internal/localstore"
	"github.com/Doesntmeananything/sashay/internal/server"
	"github.com/Doesntmeananything/sashay/internal/store/memstore"
)

// newTestBackend starts a full sync server over an in-memory store with two
// provisioned users.
func newTestBackend(t *testing.T) *httptest.Server {
	t.Helper()

	st := memstore.New()
	gate := auth.New(st)
	for _, u := range []struct{ username, password string }{
		{"Andrey", "andrey123"},
		{"Sasha", "sasha123"},
	} {
		if _, err := gate.CreateUser(context.Background(), u.username, u.password); err != nil {
			t.Fatalf("creating user %s: %v", u.username, err)
		}
	}

	srv := server.NewSyncServer(st, gate, &events.NoopPublisher{})
	ts := httptest.NewServer(srv.NewHTTPHandler())
	t.Cleanup(ts.Close)
	return ts
}

func newTestReconciler(t *testing.T, ts *httptest.Server, username, password string) *Reconciler {
	t.Helper()
	api := NewHTTPClient(ts.URL, "")
	if _, err := api.Login(context.Background(), username, password); err != nil {
		t.Fatalf("logging in %s: %v", username, err)
	}
	r := NewReconciler(api, nil)
	t.Cleanup(r.Disconnect)
	return r
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLogin_BadCredentialsSurfaceAsAPIError(t *testing.T) {
	ts := newTestBackend(t)
	api := NewHTTPClient(ts.URL, "")

	_, err := api.Login(context.Background(), "Andrey", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != 401 {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
}

func TestConnect_BootstrapsMirror(t *testing.T) {
	ts := newTestBackend(t)
	r := newTestReconciler(t, ts, "Andrey", "andrey123")

	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !r.Connected() {
		t.Error("Connected() = false after Connect")
	}

	users := r.Mirror().Users()
	if len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}
	if me := r.Mirror().Me(); me == nil || me.Username != "Andrey" {
		t.Errorf("me = %+v", r.Mirror().Me())
	}
}

func TestSendChatMessage_SelfDeliveryConvergesToOneMessage(t *testing.T) {
	ts := newTestBackend(t)
	r := newTestReconciler(t, ts, "Andrey", "andrey123")
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	sent, err := r.SendChatMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// Optimistic apply is immediate.
	if msgs := r.Mirror().Messages(); len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("after optimistic apply: %+v", msgs)
	}

	// The committed echo advances the watermark without duplicating.
	waitFor(t, "echo to converge", func() bool { return r.Mirror().Watermark() >= 1 })
	msgs := r.Mirror().Messages()
	if len(msgs) != 1 {
		t.Fatalf("after echo: %d messages, want exactly 1", len(msgs))
	}
	if msgs[0].ID != sent.ID || msgs[0].Content != "hi" {
		t.Errorf("converged message = %+v", msgs[0])
	}
}

func TestSendChatMessage_ReachesPeers(t *testing.T) {
	ts := newTestBackend(t)
	sender := newTestReconciler(t, ts, "Andrey", "andrey123")
	receiver := newTestReconciler(t, ts, "Sasha", "sasha123")

	for _, r := range []*Reconciler{sender, receiver} {
		if err := r.Connect(context.Background()); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}

	if _, err := sender.SendChatMessage(context.Background(), "hello sasha"); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "peer to receive the message", func() bool {
		return len(receiver.Mirror().Messages()) == 1
	})
	msg := receiver.Mirror().Messages()[0]
	if msg.Content != "hello sasha" {
		t.Errorf("received content = %q", msg.Content)
	}
	if receiver.Mirror().Username(msg.UserID) != "Andrey" {
		t.Errorf("sender resolves to %q, want Andrey", receiver.Mirror().Username(msg.UserID))
	}
}

func TestSendChatMessage_RequiresConnection(t *testing.T) {
	ts := newTestBackend(t)
	r := newTestReconciler(t, ts, "Andrey", "andrey123")

	if _, err := r.SendChatMessage(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestDisconnect_StopsSyncUntilReconnected(t *testing.T) {
	ts := newTestBackend(t)
	r := newTestReconciler(t, ts, "Andrey", "andrey123")
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	r.Disconnect()
	waitFor(t, "connection teardown", func() bool { return !r.Connected() })

	if _, err := r.SendChatMessage(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send while disconnected: %v, want ErrNotConnected", err)
	}

	// Reconnecting is a fresh bootstrap plus a new live connection.
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if _, err := r.SendChatMessage(context.Background(), "back"); err != nil {
		t.Errorf("send after reconnect: %v", err)
	}
}

func TestReconciler_PersistsMirrorLocally(t *testing.T) {
	ts := newTestBackend(t)

	local, err := localstore.OpenInMemory()
	if err != nil {
		t.Fatalf("opening local store: %v", err)
	}
	defer local.Close()

	api := NewHTTPClient(ts.URL, "")
	if _, err := api.Login(context.Background(), "Andrey", "andrey123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	r := NewReconciler(api, local)
	t.Cleanup(r.Disconnect)
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := r.SendChatMessage(context.Background(), "persisted"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "echo to converge", func() bool { return r.Mirror().Watermark() >= 1 })

	msgs, err := local.ChatMessages()
	if err != nil {
		t.Fatalf("reading local messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "persisted" {
		t.Errorf("local messages = %+v", msgs)
	}
	wm, err := local.Watermark()
	if err != nil {
		t.Fatalf("reading local watermark: %v", err)
	}
	if wm != 1 {
		t.Errorf("local watermark = %d, want 1", wm)
	}
	users, err := local.Users()
	if err != nil {
		t.Fatalf("reading local users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("local users = %d, want 2", len(users))
	}
}

func TestPresenceCallbacks(t *testing.T) {
	ts := newTestBackend(t)
	watcher := newTestReconciler(t, ts, "Andrey", "andrey123")

	type change struct {
		username string
		online   bool
	}
	seen := make(chan change, 8)
	watcher.OnPresence = func(username string, online bool) {
		seen <- change{username, online}
	}
	if err := watcher.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	peer := newTestReconciler(t, ts, "Sasha", "sasha123")
	if err := peer.Connect(context.Background()); err != nil {
		t.Fatalf("peer connect: %v", err)
	}
	peer.Disconnect()

	var got []change
	deadline := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case c := <-seen:
			got = append(got, c)
		case <-deadline:
			t.Fatalf("timed out; presence changes so far: %+v", got)
		}
	}

	want := []change{
		{"Andrey", true},
		{"Sasha", true},
		{"Sasha", false},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
