package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) CreateMessage(ctx context.Context, roomID, userID, content string) (Message, error) {
	args := m.Called(ctx, roomID, userID, content)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockMessageRepository) GetMessages(ctx context.Context, params GetMessagesParams) ([]Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) UpdateMessage(ctx context.Context, messageID, content string) (Message, error) {
	args := m.Called(ctx, messageID, content)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockMessageRepository) DeleteMessage(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}
