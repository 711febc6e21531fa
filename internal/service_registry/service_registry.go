package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/garden-agent/internal/registry"
	"github.com/benmeehan/garden-agent/internal/services"
	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/benmeehan/garden-agent/pkg/identity"
	"github.com/benmeehan/garden-agent/pkg/websocket"
	"github.com/rs/zerolog"
)

// Service aliases the plug-in service contract.
type Service = registry.Service

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	transport   websocket.Transport
	clock       clock.Clock
	connection  *services.ConnectionManager
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(transport websocket.Transport, clk clock.Clock, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:  make(map[string]Service),
		transport: transport,
		clock:     clk,
		Logger:    logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// ServiceNames returns the registered service names in start order.
func (sr *ServiceRegistry) ServiceNames() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// Connection returns the connection manager once services are registered.
func (sr *ServiceRegistry) Connection() *services.ConnectionManager {
	return sr.connection
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	deviceID := deviceInfo.GetDeviceID()

	target, err := websocket.TargetURL(config.Websocket.URL, deviceID)
	if err != nil {
		return err
	}

	conn := config.Connection
	connection := services.NewConnectionManager(
		target,
		deviceID,
		conn.Watchdog.LivenessPolicy,
		sr.transport,
		services.NewHeartbeatController(conn.Heartbeat.Interval, sr.clock, sr.Logger.With().Str("component", "heartbeat").Logger()),
		services.NewWatchdogMonitor(conn.Watchdog.PollInterval, conn.Watchdog.StaleThreshold, sr.clock,
			sr.Logger.With().Str("component", "watchdog").Logger()),
		services.NewReconnectScheduler(
			services.NewDelayPolicy(conn.Reconnect.Strategy, conn.Reconnect.Delay, conn.Reconnect.MaxDelay,
				conn.Reconnect.Factor, conn.Reconnect.Jitter),
			sr.clock,
			sr.Logger.With().Str("component", "reconnect").Logger(),
		),
		sr.Logger.With().Str("component", "connection").Logger(),
	)
	sr.connection = connection

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "connection",
			enabled: true,
			constructor: func() (Service, error) {
				return connection, nil
			},
		},
		{
			name:    "telemetry",
			enabled: config.Services.Telemetry.Enabled,
			constructor: func() (Service, error) {
				return services.NewTelemetryService(
					config.Services.Telemetry.Interval,
					services.NewSampleGenerator(deviceID, nil),
					connection,
					sr.clock,
					sr.Logger.With().Str("component", "telemetry").Logger(),
				), nil
			},
		},
		{
			name:    "health",
			enabled: config.Services.Health.Enabled,
			constructor: func() (Service, error) {
				return services.NewHealthService(
					config.Services.Health.ListenAddr,
					deviceID,
					sr.Logger.With().Str("component", "health").Logger(),
				), nil
			},
		},
		{
			name:    "self_ping",
			enabled: config.Services.SelfPing.ServerURL != "",
			constructor: func() (Service, error) {
				return services.NewSelfPingService(
					config.Services.SelfPing.ServerURL,
					config.Services.SelfPing.MinInterval,
					config.Services.SelfPing.MaxInterval,
					config.Services.SelfPing.Timeout,
					sr.clock,
					sr.Logger.With().Str("component", "self_ping").Logger(),
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
