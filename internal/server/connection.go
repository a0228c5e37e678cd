package server

import "time"

// ConnState is the lifecycle state of one transport session. Room
// membership is orthogonal data on the active state, not a state of its
// own.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateActive
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the record for one physical transport session. It is
// owned exclusively by the Manager: created after a successful auth
// verification, destroyed on disconnect or heartbeat timeout.
type Connection struct {
	Id            string
	UserId        string
	State         ConnState
	CreatedAt     time.Time
	LastHeartbeat time.Time
}
