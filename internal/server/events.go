package server

import (
	"net/http"
	"time"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the inbound event union. Exactly one of the pointer
// fields is set; the gateway dispatches on whichever is non-nil.
type ClientEvent struct {
	BaseEvent
	Join      *JoinRequest      `json:"join,omitempty"`
	Leave     *LeaveRequest     `json:"leave,omitempty"`
	Publish   *PublishRequest   `json:"publish,omitempty"`
	Typing    *TypingRequest    `json:"typing,omitempty"`
	Heartbeat *HeartbeatRequest `json:"heartbeat,omitempty"`
}

type JoinRequest struct {
	RoomId string `json:"room_id"`
}

type LeaveRequest struct {
	RoomId string `json:"room_id"`
}

type PublishRequest struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

type TypingRequest struct {
	RoomId  string `json:"room_id"`
	Started bool   `json:"started"`
}

type HeartbeatRequest struct{}

// ServerEvent is the outbound union sent to connections.
type ServerEvent struct {
	BaseEvent
	Response     *Response     `json:"response,omitempty"`
	Message      *Message      `json:"message,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	UserId    string    `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Presence *PresenceNote `json:"presence,omitempty"`
	Room     *RoomNote     `json:"room,omitempty"`
	Typing   *TypingNote   `json:"typing,omitempty"`
}

// PresenceNote announces a user's aggregate online state change.
type PresenceNote struct {
	UserId   string     `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// RoomNote announces a live membership change in a room.
type RoomNote struct {
	RoomId      string `json:"room_id"`
	UserId      string `json:"user_id"`
	Joined      bool   `json:"joined"`
	MemberCount int    `json:"member_count"`
}

// TypingNote carries the full set of users currently composing in a room.
type TypingNote struct {
	RoomId string   `json:"room_id"`
	Active []string `json:"active"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
			Data:         data,
		},
	}
}

func ErrRateLimited(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusTooManyRequests,
			Error:        "rate limit exceeded",
		},
	}
}

func ErrInternalError(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrInvalidEvent(id int) *ServerEvent {
	ev := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid event format",
		},
	}

	if id > 0 {
		ev.Id = id
	}
	return ev
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
