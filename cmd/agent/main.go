package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/garden-agent/internal/service_registry"
	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/benmeehan/garden-agent/pkg/file"
	"github.com/benmeehan/garden-agent/pkg/identity"
	"github.com/benmeehan/garden-agent/pkg/websocket"
	"github.com/rs/zerolog"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// Bootstrap logger until the configured one is known
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	configPath := os.Getenv("AGENT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}
	logger = newLogger(config, os.Stdout)

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, config.Identity.DeviceID, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device information")
	}
	logger = logger.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()

	transport := websocket.NewTransport(websocket.Options{
		HandshakeTimeout:   config.Websocket.HandshakeTimeout,
		SendQueueSize:      config.Websocket.SendQueueSize,
		InsecureSkipVerify: config.Websocket.InsecureSkipVerify,
	}, logger.With().Str("component", "transport").Logger())

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(transport, clock.New(), logger)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, deviceInfo); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(config *utils.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if config.Logging.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
