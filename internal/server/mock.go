package server

import (
	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(connID string, event *ServerEvent) bool {
	args := m.Called(connID, event)
	return args.Bool(0)
}

func (m *MockTransport) Close(connID string, reason string) {
	m.Called(connID, reason)
}
