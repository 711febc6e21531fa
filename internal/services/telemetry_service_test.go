package services_test

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/benmeehan/garden-agent/internal/mocks"
	"github.com/benmeehan/garden-agent/internal/models"
	"github.com/benmeehan/garden-agent/internal/services"
	"github.com/benmeehan/garden-agent/pkg/clock/clocktest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestTelemetry(conn *mocks.MockConnectionStatus) (*services.TelemetryService, *clocktest.FakeClock) {
	clk := clocktest.NewFakeClock()
	generator := services.NewSampleGenerator("test-device", rand.New(rand.NewPCG(1, 2)))
	return services.NewTelemetryService(5*time.Second, generator, conn, clk, zerolog.Nop()), clk
}

// TestTelemetryService_SkipsWhileClosed tests that no send is attempted while disconnected.
func TestTelemetryService_SkipsWhileClosed(t *testing.T) {
	// Setup
	conn := new(mocks.MockConnectionStatus)
	conn.On("IsOpen").Return(false)
	svc, clk := newTestTelemetry(conn)

	// Execute
	require.NoError(t, svc.Start())
	clk.Advance(30 * time.Second)

	// Assert
	conn.AssertNumberOfCalls(t, "IsOpen", 6)
	conn.AssertNotCalled(t, "Send", mock.Anything)
	assert.Equal(t, 1, clk.Pending())
}

// TestTelemetryService_SendsWhileOpen tests the payload of a tick on an open connection.
func TestTelemetryService_SendsWhileOpen(t *testing.T) {
	var payloads [][]byte
	conn := new(mocks.MockConnectionStatus)
	conn.On("IsOpen").Return(true)
	conn.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		payloads = append(payloads, args.Get(0).([]byte))
	}).Return(nil)
	svc, clk := newTestTelemetry(conn)

	require.NoError(t, svc.Start())
	clk.Advance(4 * time.Second)
	assert.Empty(t, payloads)
	clk.Advance(6 * time.Second)

	require.Len(t, payloads, 2)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(payloads[0], &frame))
	assert.Len(t, frame, 5)
	assert.Equal(t, "test-device", frame["deviceId"])

	temp := frame["temp"].(float64)
	assert.GreaterOrEqual(t, temp, 20.0)
	assert.LessOrEqual(t, temp, 30.0)
	humidity := frame["humidity"].(float64)
	assert.GreaterOrEqual(t, humidity, 40.0)
	assert.LessOrEqual(t, humidity, 70.0)
	soil := frame["soil"].(float64)
	assert.Equal(t, soil, float64(int(soil)))
	assert.GreaterOrEqual(t, soil, 50.0)
	assert.LessOrEqual(t, soil, 100.0)
	assert.IsType(t, true, frame["pump"])
}

// TestTelemetryService_SendErrorTolerated tests that a failed send does not stop the cadence.
func TestTelemetryService_SendErrorTolerated(t *testing.T) {
	conn := new(mocks.MockConnectionStatus)
	conn.On("IsOpen").Return(true)
	conn.On("Send", mock.Anything).Return(errors.New("send queue is full"))
	svc, clk := newTestTelemetry(conn)

	require.NoError(t, svc.Start())
	assert.NotPanics(t, func() { clk.Advance(15 * time.Second) })

	conn.AssertNumberOfCalls(t, "Send", 3)
}

// TestTelemetryService_ResumesAfterReconnect tests that ticks pick up once the connection is back.
func TestTelemetryService_ResumesAfterReconnect(t *testing.T) {
	conn := new(mocks.MockConnectionStatus)
	conn.On("IsOpen").Return(false).Times(2)
	conn.On("IsOpen").Return(true)
	conn.On("Send", mock.Anything).Return(nil)
	svc, clk := newTestTelemetry(conn)

	require.NoError(t, svc.Start())
	clk.Advance(20 * time.Second)

	conn.AssertNumberOfCalls(t, "Send", 2)
}

// TestTelemetryService_StartStop tests the service lifecycle errors.
func TestTelemetryService_StartStop(t *testing.T) {
	conn := new(mocks.MockConnectionStatus)
	conn.On("IsOpen").Return(false)
	svc, clk := newTestTelemetry(conn)

	err := svc.Stop()
	assert.EqualError(t, err, "telemetry service is not running")

	require.NoError(t, svc.Start())
	err = svc.Start()
	assert.EqualError(t, err, "telemetry service is already running")

	require.NoError(t, svc.Stop())
	assert.Equal(t, 0, clk.Pending())
	clk.Advance(time.Minute)
	conn.AssertNotCalled(t, "IsOpen")
}

// TestSampleGenerator_Ranges tests the bounds and precision of generated readings.
func TestSampleGenerator_Ranges(t *testing.T) {
	generator := services.NewSampleGenerator("garden-1", rand.New(rand.NewPCG(42, 7)))
	pumpSeen := map[bool]bool{}

	for i := 0; i < 1000; i++ {
		sample := generator.Generate()

		assert.Equal(t, "garden-1", sample.DeviceID)
		assert.GreaterOrEqual(t, sample.Temperature, 20.0)
		assert.LessOrEqual(t, sample.Temperature, 30.0)
		assert.InDelta(t, sample.Temperature, float64(int(sample.Temperature*10+0.5))/10, 1e-9)
		assert.GreaterOrEqual(t, sample.Humidity, 40.0)
		assert.LessOrEqual(t, sample.Humidity, 70.0)
		assert.InDelta(t, sample.Humidity, float64(int(sample.Humidity*10+0.5))/10, 1e-9)
		assert.GreaterOrEqual(t, sample.SoilMoisture, 50)
		assert.LessOrEqual(t, sample.SoilMoisture, 100)
		pumpSeen[sample.PumpOn] = true
	}

	assert.True(t, pumpSeen[true])
	assert.True(t, pumpSeen[false])
}

// TestSampleGenerator_NilSource tests that a nil source still yields readings.
func TestSampleGenerator_NilSource(t *testing.T) {
	generator := services.NewSampleGenerator("garden-1", nil)

	sample := generator.Generate()

	assert.IsType(t, models.TelemetrySample{}, sample)
	assert.Equal(t, "garden-1", sample.DeviceID)
}
