package directory

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockMembershipLookup struct {
	mock.Mock
}

func (m *MockMembershipLookup) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if rooms, ok := args.Get(0).([]string); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPresenceMirror struct {
	mock.Mock
}

func (m *MockPresenceMirror) SetOnline(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceMirror) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	args := m.Called(ctx, userID, lastSeen)
	return args.Error(0)
}
