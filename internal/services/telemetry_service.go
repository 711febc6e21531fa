package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/models"
	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/rs/zerolog"
)

// Sensor ranges of the simulated garden device.
const (
	minTemperature  = 20.0
	maxTemperature  = 30.0
	minHumidity     = 40.0
	maxHumidity     = 70.0
	minSoilMoisture = 50
	maxSoilMoisture = 100
)

// SampleGenerator produces synthetic sensor readings.
type SampleGenerator struct {
	deviceID string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampleGenerator creates a SampleGenerator. A nil rng uses a randomly seeded source.
func NewSampleGenerator(deviceID string, rng *rand.Rand) *SampleGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SampleGenerator{deviceID: deviceID, rng: rng}
}

// Generate returns a fresh reading.
func (g *SampleGenerator) Generate() models.TelemetrySample {
	g.mu.Lock()
	defer g.mu.Unlock()

	return models.TelemetrySample{
		DeviceID:     g.deviceID,
		Temperature:  utils.RandomFloat(g.rng, minTemperature, maxTemperature, 1),
		Humidity:     utils.RandomFloat(g.rng, minHumidity, maxHumidity, 1),
		SoilMoisture: utils.RandomInt(g.rng, minSoilMoisture, maxSoilMoisture),
		PumpOn:       g.rng.Float64() > 0.5,
	}
}

// TelemetryService publishes one synthetic reading per interval while the
// connection is open. Ticks that find the connection down are skipped.
type TelemetryService struct {
	interval   time.Duration
	generator  *SampleGenerator
	connection ConnectionStatus
	clock      clock.Clock
	logger     zerolog.Logger

	mu      sync.Mutex
	timer   clock.Timer
	token   uint64
	running bool
}

// NewTelemetryService initializes and returns a new instance of TelemetryService.
func NewTelemetryService(
	interval time.Duration,
	generator *SampleGenerator,
	connection ConnectionStatus,
	clk clock.Clock,
	logger zerolog.Logger,
) *TelemetryService {
	return &TelemetryService{
		interval:   interval,
		generator:  generator,
		connection: connection,
		clock:      clk,
		logger:     logger,
	}
}

// Start begins the publishing cadence.
func (t *TelemetryService) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Warn().Msg("TelemetryService is already running")
		return errors.New("telemetry service is already running")
	}
	t.running = true
	t.token++
	t.scheduleLocked(t.token)

	t.logger.Info().Dur("interval", t.interval).Msg("TelemetryService started successfully")
	return nil
}

// Stop halts the publishing cadence.
func (t *TelemetryService) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		t.logger.Warn().Msg("TelemetryService is not running")
		return errors.New("telemetry service is not running")
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.token++
	t.running = false

	t.logger.Info().Msg("TelemetryService stopped successfully")
	return nil
}

func (t *TelemetryService) scheduleLocked(token uint64) {
	t.timer = t.clock.AfterFunc(t.interval, func() { t.tick(token) })
}

func (t *TelemetryService) tick(token uint64) {
	defer utils.RecoverPanic(t.logger, "telemetry")

	t.mu.Lock()
	if !t.running || token != t.token {
		t.mu.Unlock()
		return
	}
	t.scheduleLocked(token)
	t.mu.Unlock()

	if !t.connection.IsOpen() {
		t.logger.Debug().Msg("Connection not open, skipping telemetry tick")
		return
	}

	sample := t.generator.Generate()
	if err := t.publish(sample); err != nil {
		t.logger.Error().Err(err).Msg("Send Error")
		return
	}
	t.logger.Info().Interface("sample", sample).Msg("Sent telemetry")
}

// publish serializes the sample and hands it to the connection.
func (t *TelemetryService) publish(sample models.TelemetrySample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to serialize telemetry: %w", err)
	}
	if err := t.connection.Send(payload); err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	return nil
}
