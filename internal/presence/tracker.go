package presence

import (
	"sync"
	"time"
)

// Tracker derives a user's aggregate online state from the set of their
// live connections. A user with two tabs open stays online when one tab
// closes; only the transitions empty->non-empty and non-empty->empty are
// observable presence changes.
type Tracker struct {
	mu       sync.RWMutex
	conns    map[string]map[string]struct{}
	lastSeen map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		conns:    make(map[string]map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// AddConnection registers connID under userID. It returns true only if
// this was the user's first active connection.
func (t *Tracker) AddConnection(userID, connID string) (becameOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[userID] == nil {
		t.conns[userID] = make(map[string]struct{})
	}

	becameOnline = len(t.conns[userID]) == 0
	t.conns[userID][connID] = struct{}{}

	return becameOnline
}

// RemoveConnection unregisters connID from userID and stamps the user's
// last-seen time. It returns true only if the removal emptied the user's
// connection set. Removing a connection that was never added is a no-op.
func (t *Tracker) RemoveConnection(userID, connID string, now time.Time) (becameOffline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.conns[userID]
	if !ok {
		return false
	}

	if _, ok := conns[connID]; !ok {
		return false
	}

	delete(conns, connID)
	t.lastSeen[userID] = now

	if len(conns) == 0 {
		delete(t.conns, userID)
		return true
	}

	return false
}

// IsOnline reports whether userID has at least one active connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.conns[userID]) > 0
}

// ConnectionsOf returns a snapshot of userID's active connections, used to
// fan out direct-to-user events across all of a user's devices.
func (t *Tracker) ConnectionsOf(userID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]string, 0, len(t.conns[userID]))
	for connID := range t.conns[userID] {
		conns = append(conns, connID)
	}

	return conns
}

// LastSeen returns the time userID last dropped a connection. The second
// return is false if the user has never disconnected.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ts, ok := t.lastSeen[userID]
	return ts, ok
}

// OnlineCount returns the number of users with at least one connection.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.conns)
}
