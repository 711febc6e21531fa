package service_registry_test

import (
	"errors"
	"testing"

	"github.com/benmeehan/garden-agent/internal/mocks"
	"github.com/benmeehan/garden-agent/internal/models"
	"github.com/benmeehan/garden-agent/internal/service_registry"
	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock/clocktest"
	"github.com/benmeehan/garden-agent/pkg/identity"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockService) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func testConfig() *utils.Config {
	var config utils.Config
	config.Websocket.URL = "wss://collector.test"
	config.Services.Telemetry.Enabled = true
	config.Services.Health.Enabled = true
	config.Services.Health.ListenAddr = "127.0.0.1:0"
	config.ApplyDefaults()
	return &config
}

func testDeviceInfo() identity.DeviceInfoInterface {
	return identity.NewDeviceInfo("", "garden-1", new(mocks.MockFileOperations))
}

// TestRegisterServices_Order tests which services are registered and in what order.
func TestRegisterServices_Order(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *utils.Config)
		want   []string
	}{
		{
			name:   "defaults",
			mutate: func(*utils.Config) {},
			want:   []string{"connection", "telemetry", "health"},
		},
		{
			name: "self-ping enabled",
			mutate: func(c *utils.Config) {
				c.Services.SelfPing.ServerURL = "https://garden.example.com"
			},
			want: []string{"connection", "telemetry", "health", "self_ping"},
		},
		{
			name: "optional services disabled",
			mutate: func(c *utils.Config) {
				c.Services.Telemetry.Enabled = false
				c.Services.Health.Enabled = false
			},
			want: []string{"connection"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			tt.mutate(config)
			registry := service_registry.NewServiceRegistry(new(mocks.MockTransport), clocktest.NewFakeClock(), zerolog.Nop())

			require.NoError(t, registry.RegisterServices(config, testDeviceInfo()))

			assert.Equal(t, tt.want, registry.ServiceNames())
			assert.NotNil(t, registry.Connection())
		})
	}
}

// TestRegisterServices_InvalidURL tests that a non-WebSocket endpoint is rejected.
func TestRegisterServices_InvalidURL(t *testing.T) {
	config := testConfig()
	config.Websocket.URL = "https://collector.test"
	registry := service_registry.NewServiceRegistry(new(mocks.MockTransport), clocktest.NewFakeClock(), zerolog.Nop())

	err := registry.RegisterServices(config, testDeviceInfo())

	assert.Error(t, err)
	assert.Empty(t, registry.ServiceNames())
}

// TestStartStopServices_Wired tests the full lifecycle against a mocked transport.
func TestStartStopServices_Wired(t *testing.T) {
	conn := mocks.NewMockConn()
	transport := new(mocks.MockTransport)
	transport.On("Open", "wss://collector.test/?deviceId=garden-1", mock.Anything).Return(conn).Once()
	clk := clocktest.NewFakeClock()
	registry := service_registry.NewServiceRegistry(transport, clk, zerolog.Nop())
	require.NoError(t, registry.RegisterServices(testConfig(), testDeviceInfo()))

	require.NoError(t, registry.StartServices())
	assert.Equal(t, models.StateConnecting, registry.Connection().State())
	transport.AssertNumberOfCalls(t, "Open", 1)

	require.NoError(t, registry.StopServices())
	assert.Equal(t, models.StateIdle, registry.Connection().State())
	assert.Equal(t, 0, clk.Pending())
}

// TestStartServices_RollsBack tests that a failed start stops what already started.
func TestStartServices_RollsBack(t *testing.T) {
	registry := service_registry.NewServiceRegistry(new(mocks.MockTransport), clocktest.NewFakeClock(), zerolog.Nop())
	first, second, third := new(MockService), new(MockService), new(MockService)
	first.On("Start").Return(nil)
	first.On("Stop").Return(nil)
	second.On("Start").Return(errors.New("address already in use"))
	registry.RegisterService("first", first)
	registry.RegisterService("second", second)
	registry.RegisterService("third", third)

	err := registry.StartServices()

	assert.ErrorContains(t, err, "failed to start second")
	first.AssertCalled(t, "Stop")
	second.AssertNotCalled(t, "Stop")
	third.AssertNotCalled(t, "Start")
}

// TestStopServices_ReverseOrderAndJoin tests stop ordering and error aggregation.
func TestStopServices_ReverseOrderAndJoin(t *testing.T) {
	registry := service_registry.NewServiceRegistry(new(mocks.MockTransport), clocktest.NewFakeClock(), zerolog.Nop())
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		svc := new(MockService)
		var stopErr error
		if name != "b" {
			stopErr = errors.New(name + " failed")
		}
		svc.On("Stop").Run(func(mock.Arguments) { order = append(order, name) }).Return(stopErr)
		registry.RegisterService(name, svc)
	}

	// Duplicate names are ignored.
	registry.RegisterService("a", new(MockService))

	err := registry.StopServices()

	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.ErrorContains(t, err, "failed to stop c: c failed")
	assert.ErrorContains(t, err, "failed to stop a: a failed")
	assert.Equal(t, []string{"a", "b", "c"}, registry.ServiceNames())
}
