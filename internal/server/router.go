package server

import (
	"fmt"
	"time"

	"github.com/relaylabs/chatrelay/internal/presence"
	"github.com/relaylabs/chatrelay/internal/ratelimit"
	"github.com/relaylabs/chatrelay/internal/rooms"
	"github.com/relaylabs/chatrelay/internal/typing"
)

// ErrInvalidArgument is a programmer error: an empty identifier reached a
// routing operation. It is surfaced rather than swallowed because a
// silent no-op here would desynchronize room membership from reality.
var ErrInvalidArgument = fmt.Errorf("invalid argument")

// Router computes the recipient set for every outbound event and the
// presence-change edges, composing the four leaf registries. It holds no
// state of its own; when an operation touches more than one registry it
// touches them in a fixed order (rooms, presence, typing, limiter).
type Router struct {
	rooms    *rooms.Registry
	presence *presence.Tracker
	typing   *typing.Coordinator
	limiter  *ratelimit.Limiter
}

func NewRouter(r *rooms.Registry, p *presence.Tracker, ty *typing.Coordinator, l *ratelimit.Limiter) *Router {
	return &Router{
		rooms:    r,
		presence: p,
		typing:   ty,
		limiter:  l,
	}
}

// RecipientsForRoomEvent returns the room's current members minus the
// excluded connections. Exclusion is the caller's call: join
// notifications skip the joiner, message fan-out skips nobody so the
// sender's other devices stay in sync.
func (ro *Router) RecipientsForRoomEvent(roomID string, exclude ...string) []string {
	members := ro.rooms.MembersOf(roomID)
	if len(exclude) == 0 {
		return members
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, connID := range exclude {
		excluded[connID] = struct{}{}
	}

	recipients := members[:0]
	for _, connID := range members {
		if _, skip := excluded[connID]; !skip {
			recipients = append(recipients, connID)
		}
	}

	return recipients
}

// RecipientsForUserEvent returns every connection of a user, for
// direct-to-user events like mention delivery.
func (ro *Router) RecipientsForUserEvent(userID string) []string {
	return ro.presence.ConnectionsOf(userID)
}

// ConnectionJoinedRoom registers the join and returns the resulting
// member snapshot plus the notification to broadcast to the rest of the
// room.
func (ro *Router) ConnectionJoinedRoom(roomID, connID, userID string) ([]string, *RoomNote, error) {
	if roomID == "" || connID == "" || userID == "" {
		return nil, nil, fmt.Errorf("%w: join requires room, connection and user", ErrInvalidArgument)
	}

	ro.rooms.Join(roomID, connID)

	note := &RoomNote{
		RoomId:      roomID,
		UserId:      userID,
		Joined:      true,
		MemberCount: ro.rooms.MemberCount(roomID),
	}

	return ro.rooms.MembersOf(roomID), note, nil
}

// ConnectionLeftRoom removes the connection from the room and stops any
// lingering typing entry for the user there: a user who leaves a room is
// definitionally not typing in it. Returns nil if the connection was not
// a member (leaving a room never joined is an idempotent no-op).
func (ro *Router) ConnectionLeftRoom(roomID, connID, userID string) (*RoomNote, error) {
	if roomID == "" || connID == "" || userID == "" {
		return nil, fmt.Errorf("%w: leave requires room, connection and user", ErrInvalidArgument)
	}

	if !ro.rooms.Contains(roomID, connID) {
		return nil, nil
	}

	ro.rooms.Leave(roomID, connID)
	ro.typing.Stop(roomID, userID)

	return &RoomNote{
		RoomId:      roomID,
		UserId:      userID,
		Joined:      false,
		MemberCount: ro.rooms.MemberCount(roomID),
	}, nil
}

// ClosedResult is everything a connection teardown produced: one leave
// notification per room the connection was in, and whether the removal
// took the user offline.
type ClosedResult struct {
	RoomNotes     []RoomNote
	BecameOffline bool
	LastSeen      time.Time
}

// ConnectionClosed tears down all live state for a connection: leaves
// every joined room, unregisters the connection from presence, and stops
// the user's typing entries in every affected room.
func (ro *Router) ConnectionClosed(connID, userID string, now time.Time) (ClosedResult, error) {
	if connID == "" || userID == "" {
		return ClosedResult{}, fmt.Errorf("%w: close requires connection and user", ErrInvalidArgument)
	}

	left := ro.rooms.LeaveAll(connID)

	becameOffline := ro.presence.RemoveConnection(userID, connID, now)

	notes := make([]RoomNote, 0, len(left))
	for _, roomID := range left {
		ro.typing.Stop(roomID, userID)
		notes = append(notes, RoomNote{
			RoomId:      roomID,
			UserId:      userID,
			Joined:      false,
			MemberCount: ro.rooms.MemberCount(roomID),
		})
	}

	return ClosedResult{
		RoomNotes:     notes,
		BecameOffline: becameOffline,
		LastSeen:      now,
	}, nil
}

// Allow applies the configured sliding-window rule for one event
// category.
func (ro *Router) Allow(connID, category string, rule ratelimit.Rule, now time.Time) bool {
	return ro.limiter.TryConsume(connID, category, rule.Limit, rule.Window, now)
}

// ResetLimits frees the limiter state for a connection on disconnect.
func (ro *Router) ResetLimits(connID string) {
	ro.limiter.Reset(connID)
}
