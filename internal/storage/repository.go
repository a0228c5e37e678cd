package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a message does not exist or was deleted.
var ErrNotFound = errors.New("message not found")

type Message struct {
	Id        string
	RoomId    string
	UserId    string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

type GetMessagesParams struct {
	RoomId string
	Since  time.Time
	Before time.Time
	Limit  int
}

// MessageRepository is the persistence collaborator. The coordinator only
// depends on this interface; durability lives behind it.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID, userID, content string) (Message, error)
	GetMessages(ctx context.Context, params GetMessagesParams) ([]Message, error)
	UpdateMessage(ctx context.Context, messageID, content string) (Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}
