// Package presence tracks which users currently hold live sync connections.
//
// The Tracker maintains an in-memory map of online users, updated directly by
// the websocket layer on connect and disconnect. A user with several open
// tabs counts once; connection counts decide when a user actually goes
// offline.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Entry is a snapshot of one online user.
type Entry struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Connections int       `json:"connections"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Tracker maintains the in-memory roster of online users.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*userState
	now   func() time.Time
}

type userState struct {
	username    string
	connections int
	connectedAt time.Time
	lastSeen    time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		users: make(map[string]*userState),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the tracker's time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Connect records a new live connection for the user. It reports whether this
// is the user's first open connection, i.e. the user just came online.
func (t *Tracker) Connect(userID, username string) bool {
	if userID == "" {
		return false
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.users[userID]
	if !ok {
		state = &userState{username: username, connectedAt: now}
		t.users[userID] = state
	}
	state.username = username
	state.connections++
	state.lastSeen = now
	return state.connections == 1
}

// Disconnect records a closed connection for the user. It reports whether
// that was the user's last open connection, i.e. the user just went offline.
func (t *Tracker) Disconnect(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.users[userID]
	if !ok {
		return false
	}
	state.connections--
	if state.connections > 0 {
		state.lastSeen = t.now()
		return false
	}
	delete(t.users, userID)
	return true
}

// Touch refreshes the user's last-seen timestamp. Called on inbound frames.
func (t *Tracker) Touch(userID string) {
	t.mu.Lock()
	if state, ok := t.users[userID]; ok {
		state.lastSeen = t.now()
	}
	t.mu.Unlock()
}

// Online returns a snapshot of all online users, sorted by username.
func (t *Tracker) Online() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.users))
	for id, state := range t.users {
		entries = append(entries, Entry{
			UserID:      id,
			Username:    state.username,
			Connections: state.connections,
			ConnectedAt: state.connectedAt,
			LastSeen:    state.lastSeen,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Username < entries[j].Username
	})

	return entries
}
