package mocks

import "github.com/stretchr/testify/mock"

// MockConnectionStatus is a mock implementation of the services.ConnectionStatus interface
type MockConnectionStatus struct {
	mock.Mock
}

func (m *MockConnectionStatus) IsOpen() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockConnectionStatus) Send(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}
