package rooms

import "sync"

// Registry tracks which connections are currently joined to which rooms.
// It keeps a reverse index from connection to rooms so that removing a
// connection from everything it joined is proportional to the rooms the
// connection joined, not the total number of rooms.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to roomID's member set. Joining a room the connection
// is already in is a no-op.
func (r *Registry) Join(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[roomID] == nil {
		r.members[roomID] = make(map[string]struct{})
	}
	r.members[roomID][connID] = struct{}{}

	if r.joined[connID] == nil {
		r.joined[connID] = make(map[string]struct{})
	}
	r.joined[connID][roomID] = struct{}{}
}

// Leave removes connID from roomID. Leaving a room the connection never
// joined is a no-op.
func (r *Registry) Leave(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(roomID, connID)
}

// LeaveAll removes connID from every room it joined and returns the rooms
// it was removed from.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomIDs := make([]string, 0, len(r.joined[connID]))
	for roomID := range r.joined[connID] {
		roomIDs = append(roomIDs, roomID)
	}

	for _, roomID := range roomIDs {
		r.removeLocked(roomID, connID)
	}

	return roomIDs
}

func (r *Registry) removeLocked(roomID, connID string) {
	if conns, ok := r.members[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.members, roomID)
		}
	}

	if joined, ok := r.joined[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the connections currently in roomID. An
// unknown room yields an empty slice.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.members[roomID]))
	for connID := range r.members[roomID] {
		conns = append(conns, connID)
	}

	return conns
}

// RoomsOf returns a snapshot of the rooms connID has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomIDs := make([]string, 0, len(r.joined[connID]))
	for roomID := range r.joined[connID] {
		roomIDs = append(roomIDs, roomID)
	}

	return roomIDs
}

// MemberCount returns the number of distinct connections in roomID.
func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members[roomID])
}

// Contains reports whether connID is currently joined to roomID.
func (r *Registry) Contains(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[roomID][connID]
	return ok
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}
