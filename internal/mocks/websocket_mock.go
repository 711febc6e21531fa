package mocks

import (
	"github.com/benmeehan/garden-agent/pkg/websocket"
	"github.com/stretchr/testify/mock"
)

// MockConn is a mock implementation of the websocket.Conn interface
type MockConn struct {
	mock.Mock
}

var _ websocket.Conn = (*MockConn)(nil)

func (m *MockConn) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) Pong(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockConn) Send(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockConn) Close(code int, reason string) error {
	args := m.Called(code, reason)
	return args.Error(0)
}

func (m *MockConn) Terminate() error {
	args := m.Called()
	return args.Error(0)
}

// NewMockConn returns a MockConn on which every call succeeds.
func NewMockConn() *MockConn {
	conn := new(MockConn)
	conn.On("Ping").Return(nil).Maybe()
	conn.On("Pong", mock.Anything).Return(nil).Maybe()
	conn.On("Send", mock.Anything).Return(nil).Maybe()
	conn.On("Close", mock.Anything, mock.Anything).Return(nil).Maybe()
	conn.On("Terminate").Return(nil).Maybe()
	return conn
}

// MockTransport is a mock implementation of the websocket.Transport interface
type MockTransport struct {
	mock.Mock
}

var _ websocket.Transport = (*MockTransport)(nil)

func (m *MockTransport) Open(target string, handler websocket.EventHandler) websocket.Conn {
	args := m.Called(target, handler)
	return args.Get(0).(websocket.Conn)
}

// Handler returns the event handler passed to the n-th Open call.
func (m *MockTransport) Handler(n int) websocket.EventHandler {
	var opens []mock.Call
	for _, call := range m.Calls {
		if call.Method == "Open" {
			opens = append(opens, call)
		}
	}
	return opens[n].Arguments.Get(1).(websocket.EventHandler)
}

// Opens returns how many times Open was called.
func (m *MockTransport) Opens() int {
	n := 0
	for _, call := range m.Calls {
		if call.Method == "Open" {
			n++
		}
	}
	return n
}
