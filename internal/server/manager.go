package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/relaylabs/chatrelay/internal/auth"
	"github.com/relaylabs/chatrelay/internal/directory"
	"github.com/relaylabs/chatrelay/internal/presence"
	"github.com/relaylabs/chatrelay/internal/ratelimit"
	"github.com/relaylabs/chatrelay/internal/rooms"
	"github.com/relaylabs/chatrelay/internal/stats"
	"github.com/relaylabs/chatrelay/internal/storage"
	"github.com/relaylabs/chatrelay/internal/typing"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnknownConnection    = errors.New("unknown connection")
)

// Rate-limit categories checked by the manager.
const (
	CategoryJoin    = "join"
	CategoryMessage = "message"
	CategoryTyping  = "typing"
)

// Transport is the outbound edge. Send reports whether the event was
// queued; a slow consumer's event is dropped, never blocking the core.
type Transport interface {
	Send(connID string, event *ServerEvent) bool
	Close(connID string, reason string)
}

type ManagerConfig struct {
	TypingTTL        time.Duration
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
	RateLimits       map[string]ratelimit.Rule
}

// Manager owns connection records and drives the router against the
// external collaborators. It is the only component that performs I/O:
// auth verification, message persistence, membership lookups and
// transport sends all happen here, never in the leaf registries.
type Manager struct {
	log        *log.Logger
	cfg        ManagerConfig
	verifier   auth.Verifier
	repo       storage.MessageRepository
	membership directory.MembershipLookup
	mirror     directory.PresenceMirror
	transport  Transport
	stats      stats.Provider

	rooms    *rooms.Registry
	presence *presence.Tracker
	typing   *typing.Coordinator
	router   *Router

	connsLock sync.Mutex
	conns     map[string]*Connection

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

func NewManager(
	logger *log.Logger,
	cfg ManagerConfig,
	verifier auth.Verifier,
	repo storage.MessageRepository,
	membership directory.MembershipLookup,
	mirror directory.PresenceMirror,
	transport Transport,
	statsProvider stats.Provider,
) *Manager {
	roomRegistry := rooms.NewRegistry()
	presenceTracker := presence.NewTracker()
	typingCoordinator := typing.NewCoordinator()
	limiter := ratelimit.NewLimiter()

	m := &Manager{
		log:        logger,
		cfg:        cfg,
		verifier:   verifier,
		repo:       repo,
		membership: membership,
		mirror:     mirror,
		transport:  transport,
		stats:      statsProvider,
		rooms:      roomRegistry,
		presence:   presenceTracker,
		typing:     typingCoordinator,
		router:     NewRouter(roomRegistry, presenceTracker, typingCoordinator, limiter),
		conns:      make(map[string]*Connection),
		now:        Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, name := range []string{
		"NumActiveConnections",
		"NumOnlineUsers",
		"NumActiveRooms",
		"NumMessages",
		"NumRateLimited",
		"NumAuthFailures",
	} {
		m.stats.RegisterMetric(name)
	}

	return m
}

// Connect resolves the credential to a user and creates the connection
// record. An invalid credential creates no state at all.
func (m *Manager) Connect(ctx context.Context, credential string) (*Connection, error) {
	userID, err := m.verifier.Verify(credential)
	if err != nil {
		m.stats.Incr("NumAuthFailures")
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	connID, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}

	now := m.now()
	conn := &Connection{
		Id:            connID,
		UserId:        userID,
		State:         StateActive,
		CreatedAt:     now,
		LastHeartbeat: now,
	}

	m.connsLock.Lock()
	m.conns[connID] = conn
	m.connsLock.Unlock()

	m.stats.Incr("NumActiveConnections")

	if m.presence.AddConnection(userID, connID) {
		m.stats.Incr("NumOnlineUsers")
		m.announcePresence(ctx, userID, connID, true, nil)

		if m.mirror != nil {
			if err := m.mirror.SetOnline(ctx, userID); err != nil {
				m.log.Printf("presence mirror SetOnline for %q: %v", userID, err)
			}
		}
	}

	return conn, nil
}

// JoinRoom joins the connection to a room, replies with the member
// snapshot, and notifies the rest of the room.
func (m *Manager) JoinRoom(eventID int, connID, roomID string) error {
	conn, ok := m.connection(connID)
	if !ok {
		return ErrUnknownConnection
	}

	if roomID == "" {
		m.transport.Send(connID, ErrInvalidEvent(eventID))
		return nil
	}

	if !m.allow(connID, CategoryJoin) {
		m.transport.Send(connID, ErrRateLimited(eventID))
		return nil
	}

	members, note, err := m.router.ConnectionJoinedRoom(roomID, connID, conn.UserId)
	if err != nil {
		return err
	}

	if note.MemberCount == 1 {
		m.stats.Incr("NumActiveRooms")
	}

	m.transport.Send(connID, NoErrOK(eventID, map[string]any{
		"room_id":      roomID,
		"members":      members,
		"member_count": note.MemberCount,
	}))

	m.broadcast(m.router.RecipientsForRoomEvent(roomID, connID), notification(&Notification{Room: note}))

	return nil
}

// LeaveRoom removes the connection from a room. Leaving a room never
// joined acks without an error.
func (m *Manager) LeaveRoom(eventID int, connID, roomID string) error {
	conn, ok := m.connection(connID)
	if !ok {
		return ErrUnknownConnection
	}

	if roomID == "" {
		m.transport.Send(connID, ErrInvalidEvent(eventID))
		return nil
	}

	note, err := m.router.ConnectionLeftRoom(roomID, connID, conn.UserId)
	if err != nil {
		return err
	}

	m.transport.Send(connID, NoErrOK(eventID, nil))

	if note != nil {
		if note.MemberCount == 0 {
			m.stats.Decr("NumActiveRooms")
		}
		m.broadcast(m.router.RecipientsForRoomEvent(roomID), notification(&Notification{Room: note}))
	}

	return nil
}

// SendMessage persists the message and, only on persistence success, fans
// it out to the room. The sender is not excluded so all of the sender's
// joined devices stay in sync.
func (m *Manager) SendMessage(ctx context.Context, eventID int, connID, roomID, content string) error {
	conn, ok := m.connection(connID)
	if !ok {
		return ErrUnknownConnection
	}

	if roomID == "" || content == "" {
		m.transport.Send(connID, ErrInvalidEvent(eventID))
		return nil
	}

	if !m.allow(connID, CategoryMessage) {
		m.transport.Send(connID, ErrRateLimited(eventID))
		return nil
	}

	stored, err := m.repo.CreateMessage(ctx, roomID, conn.UserId, content)
	if err != nil {
		m.log.Printf("persist message for %q in %q: %v", conn.UserId, roomID, err)
		m.transport.Send(connID, ErrInternalError(eventID))
		return nil
	}

	m.stats.Incr("NumMessages")

	m.transport.Send(connID, NoErrAccepted(eventID, map[string]any{"message_id": stored.Id}))

	m.broadcast(m.router.RecipientsForRoomEvent(roomID), &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Message: &Message{
			Id:        stored.Id,
			RoomId:    stored.RoomId,
			UserId:    stored.UserId,
			Content:   stored.Content,
			Timestamp: stored.CreatedAt,
		},
	})

	return nil
}

// Typing starts or stops the connection user's typing entry and
// broadcasts the room's active typist set, excluding the originator.
func (m *Manager) Typing(eventID int, connID, roomID string, started bool) error {
	conn, ok := m.connection(connID)
	if !ok {
		return ErrUnknownConnection
	}

	if roomID == "" {
		m.transport.Send(connID, ErrInvalidEvent(eventID))
		return nil
	}

	if !m.allow(connID, CategoryTyping) {
		m.transport.Send(connID, ErrRateLimited(eventID))
		return nil
	}

	now := m.now()
	if started {
		m.typing.Start(roomID, conn.UserId, m.cfg.TypingTTL, now)
	} else {
		m.typing.Stop(roomID, conn.UserId)
	}

	m.transport.Send(connID, NoErrOK(eventID, nil))

	note := &TypingNote{
		RoomId: roomID,
		Active: m.typing.ActiveTypists(roomID, now),
	}
	m.broadcast(m.router.RecipientsForRoomEvent(roomID, connID), notification(&Notification{Typing: note}))

	return nil
}

// Heartbeat stamps the connection's liveness. It does not reset rate
// limits.
func (m *Manager) Heartbeat(eventID int, connID string) error {
	m.connsLock.Lock()
	conn, ok := m.conns[connID]
	if ok {
		conn.LastHeartbeat = m.now()
	}
	m.connsLock.Unlock()

	if !ok {
		return ErrUnknownConnection
	}

	if eventID > 0 {
		m.transport.Send(connID, NoErrOK(eventID, nil))
	}

	return nil
}

// Disconnect tears down the connection: every joined room gets a leave
// notification, typing entries stop, the limiter state is freed, and if
// this was the user's last connection a single offline notification goes
// out. Disconnecting an unknown connection is a no-op.
func (m *Manager) Disconnect(ctx context.Context, connID string) {
	m.connsLock.Lock()
	conn, ok := m.conns[connID]
	if ok {
		conn.State = StateClosed
		delete(m.conns, connID)
	}
	m.connsLock.Unlock()

	if !ok {
		return
	}

	result, err := m.router.ConnectionClosed(connID, conn.UserId, m.now())
	if err != nil {
		m.log.Printf("close connection %q: %v", connID, err)
		return
	}

	for i := range result.RoomNotes {
		note := &result.RoomNotes[i]
		if note.MemberCount == 0 {
			m.stats.Decr("NumActiveRooms")
		}
		m.broadcast(m.router.RecipientsForRoomEvent(note.RoomId), notification(&Notification{Room: note}))
	}

	if result.BecameOffline {
		m.stats.Decr("NumOnlineUsers")

		lastSeen := result.LastSeen
		m.announcePresence(ctx, conn.UserId, connID, false, &lastSeen)

		// explicit disconnect is authoritative: delete the mirrored key
		// now instead of waiting for its TTL to lapse
		if m.mirror != nil {
			if err := m.mirror.SetOffline(ctx, conn.UserId, lastSeen); err != nil {
				m.log.Printf("presence mirror SetOffline for %q: %v", conn.UserId, err)
			}
		}
	}

	m.router.ResetLimits(connID)
	m.stats.Decr("NumActiveConnections")
}

// Run drives the periodic sweep until Shutdown. The sweep is the
// liveness mechanism: a connection whose last heartbeat is older than
// the timeout gets a hard cutoff, no grace retry, since the transport's
// own ping/pong already attempted recovery.
func (m *Manager) Run() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(context.Background())
		case <-m.stop:
			close(m.done)
			return
		}
	}
}

func (m *Manager) Shutdown(ctx context.Context) error {
	close(m.stop)

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) sweep(ctx context.Context) {
	now := m.now()
	m.typing.Sweep(now)

	cutoff := now.Add(-m.cfg.HeartbeatTimeout)

	var stale []string
	m.connsLock.Lock()
	for connID, conn := range m.conns {
		if conn.LastHeartbeat.Before(cutoff) {
			stale = append(stale, connID)
		}
	}
	m.connsLock.Unlock()

	for _, connID := range stale {
		m.log.Printf("connection %q missed the heartbeat deadline, closing", connID)
		m.transport.Close(connID, "heartbeat timeout")
		m.Disconnect(ctx, connID)
	}
}

// announcePresence broadcasts a user's online/offline edge to the live
// members of the user's durable rooms. Durable membership comes from the
// directory collaborator, not the live room registry: a subscriber should
// see the edge even when no connection of theirs has joined yet.
func (m *Manager) announcePresence(ctx context.Context, userID, excludeConnID string, online bool, lastSeen *time.Time) {
	if m.membership == nil {
		return
	}

	roomIDs, err := m.membership.RoomsOf(ctx, userID)
	if err != nil {
		m.log.Printf("membership lookup for %q: %v", userID, err)
		return
	}

	recipients := make(map[string]struct{})
	for _, roomID := range roomIDs {
		for _, connID := range m.router.RecipientsForRoomEvent(roomID, excludeConnID) {
			recipients[connID] = struct{}{}
		}
	}

	ev := notification(&Notification{Presence: &PresenceNote{
		UserId:   userID,
		Online:   online,
		LastSeen: lastSeen,
	}})

	for connID := range recipients {
		if !m.transport.Send(connID, ev) {
			m.log.Printf("dropped presence event for connection %q", connID)
		}
	}
}

func (m *Manager) connection(connID string) (*Connection, bool) {
	m.connsLock.Lock()
	defer m.connsLock.Unlock()

	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *Manager) allow(connID, category string) bool {
	rule, ok := m.cfg.RateLimits[category]
	if !ok {
		return true
	}

	if m.router.Allow(connID, category, rule, m.now()) {
		return true
	}

	m.stats.Incr("NumRateLimited")
	return false
}

func (m *Manager) broadcast(recipients []string, ev *ServerEvent) {
	for _, connID := range recipients {
		if !m.transport.Send(connID, ev) {
			m.log.Printf("dropped event for connection %q", connID)
		}
	}
}

func notification(n *Notification) *ServerEvent {
	return &ServerEvent{
		BaseEvent:    BaseEvent{Timestamp: Now()},
		Notification: n,
	}
}
