package typing

import (
	"sync"
	"time"
)

// Coordinator tracks which users are actively composing in which rooms.
// Entries carry an expiry; an entry past its expiry is treated as absent
// even if it has not been swept yet. Expired entries are evicted lazily
// during reads, so no background timer is required, though callers may
// run Sweep periodically for memory hygiene.
type Coordinator struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		entries: make(map[string]map[string]time.Time),
	}
}

// Start inserts or refreshes the typing entry for (roomID, userID) with
// expiry now+ttl. The TTL is caller-supplied.
func (c *Coordinator) Start(roomID, userID string, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[roomID] == nil {
		c.entries[roomID] = make(map[string]time.Time)
	}
	c.entries[roomID][userID] = now.Add(ttl)
}

// Stop removes the entry immediately. An explicit stop always wins over a
// pending expiry.
func (c *Coordinator) Stop(roomID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if users, ok := c.entries[roomID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(c.entries, roomID)
		}
	}
}

// ActiveTypists returns the users whose entry in roomID has not expired as
// of now. Expired entries encountered during the scan are evicted.
func (c *Coordinator) ActiveTypists(roomID string, now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	users, ok := c.entries[roomID]
	if !ok {
		return nil
	}

	active := make([]string, 0, len(users))
	for userID, expiry := range users {
		if now.After(expiry) {
			delete(users, userID)
			continue
		}
		active = append(active, userID)
	}

	if len(users) == 0 {
		delete(c.entries, roomID)
	}

	return active
}

// Sweep evicts every expired entry across all rooms.
func (c *Coordinator) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for roomID, users := range c.entries {
		for userID, expiry := range users {
			if now.After(expiry) {
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(c.entries, roomID)
		}
	}
}
