package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Doesntmeananything/sashay/internal/auth"
	"github.com/Doesntmeananything/sashay/internal/events"
	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/store/memstore"
)

// newTestServer returns a SyncServer over a fresh in-memory store with one
// provisioned user, plus a logged-in session id for that user.
func newTestServer(t *testing.T) (*SyncServer, *model.User, string) {
	t.Helper()

	st := memstore.New()
	gate := auth.New(st)
	srv := NewSyncServer(st, gate, &events.NoopPublisher{})

	user, err := gate.CreateUser(context.Background(), "Andrey", "andrey123")
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	sessionID, err := gate.Login(context.Background(), "Andrey", "andrey123")
	if err != nil {
		t.Fatalf("logging in test user: %v", err)
	}
	return srv, user, sessionID
}

func doRequest(t *testing.T, h http.Handler, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set("Authorization", "Session "+sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogin_SetsCookieAndReturnsUser(t *testing.T) {
	srv, user, _ := newTestServer(t)
	h := srv.NewHTTPHandler()

	rec := doRequest(t, h, "POST", "/v1/login", "", loginRequest{Username: "Andrey", Password: "andrey123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("response carries no session id")
	}
	if resp.User == nil || resp.User.ID != user.ID || resp.User.Username != "Andrey" {
		t.Errorf("response user = %+v", resp.User)
	}

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			found = true
			if !c.HttpOnly {
				t.Error("session cookie is not httpOnly")
			}
			if c.Value != resp.SessionID {
				t.Error("cookie and body disagree on session id")
			}
		}
	}
	if !found {
		t.Error("no session cookie set")
	}
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.NewHTTPHandler()

	wrongPass := doRequest(t, h, "POST", "/v1/login", "", loginRequest{Username: "Andrey", Password: "nope"})
	unknown := doRequest(t, h, "POST", "/v1/login", "", loginRequest{Username: "Nobody", Password: "nope"})

	if wrongPass.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want both 401", wrongPass.Code, unknown.Code)
	}
	if wrongPass.Body.String() != unknown.Body.String() {
		t.Errorf("bodies differ: %q vs %q", wrongPass.Body.String(), unknown.Body.String())
	}
}

func TestLogin_MissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.NewHTTPHandler()

	rec := doRequest(t, h, "POST", "/v1/login", "", loginRequest{Username: "Andrey"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMe_RequiresSession(t *testing.T) {
	srv, user, sessionID := newTestServer(t)
	h := srv.NewHTTPHandler()

	if rec := doRequest(t, h, "GET", "/v1/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec := doRequest(t, h, "GET", "/v1/me", sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("me.id = %s, want %s", got.ID, user.ID)
	}
}

func TestMe_AcceptsSessionCookie(t *testing.T) {
	srv, _, sessionID := newTestServer(t)
	h := srv.NewHTTPHandler()

	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sessionID})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBootstrap_ReturnsSnapshotAndWatermark(t *testing.T) {
	srv, user, sessionID := newTestServer(t)
	h := srv.NewHTTPHandler()

	for _, content := range []string{"hello", "world"} {
		data, _ := json.Marshal(model.ChatMessagePayload{UserID: user.ID, Content: content})
		_, err := srv.store.AppendEvent(context.Background(), &model.Event{
			EntityType: model.EntityChatMessage,
			EntityID:   "m-" + content,
			EventType:  model.EventCreate,
			EntityData: data,
		})
		if err != nil {
			t.Fatalf("appending event: %v", err)
		}
	}

	rec := doRequest(t, h, "GET", "/v1/bootstrap", sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp bootstrapResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Users) != 1 {
		t.Errorf("users = %d, want 1", len(resp.Users))
	}
	if len(resp.ChatMessages) != 2 {
		t.Errorf("chat messages = %d, want 2", len(resp.ChatMessages))
	}
	if resp.Me == nil || resp.Me.ID != user.ID {
		t.Errorf("me = %+v", resp.Me)
	}
	if resp.LastSyncID != 2 {
		t.Errorf("last_sync_id = %d, want 2", resp.LastSyncID)
	}
}

func TestEvents_After(t *testing.T) {
	srv, user, sessionID := newTestServer(t)
	h := srv.NewHTTPHandler()

	for _, id := range []string{"m1", "m2", "m3"} {
		data, _ := json.Marshal(model.ChatMessagePayload{UserID: user.ID, Content: id})
		if _, err := srv.store.AppendEvent(context.Background(), &model.Event{
			EntityType: model.EntityChatMessage,
			EntityID:   id,
			EventType:  model.EventCreate,
			EntityData: data,
		}); err != nil {
			t.Fatalf("appending event: %v", err)
		}
	}

	rec := doRequest(t, h, "GET", "/v1/events?after=1", sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(resp.Events))
	}
	if resp.Events[0].ID != 2 || resp.Events[1].ID != 3 {
		t.Errorf("event ids = %d, %d, want 2, 3", resp.Events[0].ID, resp.Events[1].ID)
	}
	if resp.LastSyncID != 3 {
		t.Errorf("last_sync_id = %d, want 3", resp.LastSyncID)
	}

	if rec := doRequest(t, h, "GET", "/v1/events?after=bogus", sessionID, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad after status = %d, want 400", rec.Code)
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.NewHTTPHandler()

	rec := doRequest(t, h, "GET", "/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
