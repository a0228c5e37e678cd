package auth

import (
	"github.com/stretchr/testify/mock"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(credential string) (string, error) {
	args := m.Called(credential)
	return args.String(0), args.Error(1)
}
