package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benmeehan/garden-agent/internal/constants"
	"github.com/benmeehan/garden-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name, defaults to info
		Pretty bool   `yaml:"pretty"` // Human readable console output instead of JSON
	} `yaml:"logging"`

	Identity struct {
		DeviceID   string `yaml:"device_id"`   // Fallback device identifier
		DeviceFile string `yaml:"device_file"` // Optional path to the device identity file
	} `yaml:"identity"`

	Websocket struct {
		URL                string        `yaml:"url"`                  // Collector endpoint, deviceId is appended as a query parameter
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"` // Accept unverified TLS certificates
		HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`    // Timeout for a single dial
		SendQueueSize      int           `yaml:"send_queue_size"`      // Outbound frames buffered per connection
	} `yaml:"websocket"`

	Connection struct {
		Heartbeat struct {
			Interval time.Duration `yaml:"interval"` // Interval between pings while open
		} `yaml:"heartbeat"`

		Watchdog struct {
			PollInterval   time.Duration `yaml:"poll_interval"`   // How often staleness is checked
			StaleThreshold time.Duration `yaml:"stale_threshold"` // Max age of the last liveness proof
			LivenessPolicy string        `yaml:"liveness_policy"` // ack_only or any_inbound
		} `yaml:"watchdog"`

		Reconnect struct {
			Strategy string        `yaml:"strategy"`  // constant or exponential
			Delay    time.Duration `yaml:"delay"`     // Base delay before reconnecting
			MaxDelay time.Duration `yaml:"max_delay"` // Upper bound for the exponential strategy
			Factor   float64       `yaml:"factor"`    // Growth factor for the exponential strategy
			Jitter   bool          `yaml:"jitter"`    // Randomize exponential delays
		} `yaml:"reconnect"`
	} `yaml:"connection"`

	Services struct {
		Telemetry struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable the telemetry publisher
			Interval time.Duration `yaml:"interval"` // Interval between samples
		} `yaml:"telemetry"`

		Health struct {
			Enabled    bool   `yaml:"enabled"`     // Enable/disable the liveness endpoint
			ListenAddr string `yaml:"listen_addr"` // Address for the HTTP server
		} `yaml:"health"`

		SelfPing struct {
			ServerURL   string        `yaml:"server_url"`   // Base URL to poll, overridden by SERVER_URL
			MinInterval time.Duration `yaml:"min_interval"` // Lower bound of the randomized interval
			MaxInterval time.Duration `yaml:"max_interval"` // Upper bound of the randomized interval
			Timeout     time.Duration `yaml:"timeout"`      // Request timeout
		} `yaml:"self_ping"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file, then
// applies environment overrides and defaults. A missing file is not an error.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	// Boolean defaults are seeded before decoding so that a file only
	// overrides the keys it sets.
	config.Services.Telemetry.Enabled = true
	config.Services.Health.Enabled = true
	config.Websocket.InsecureSkipVerify = true

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if exists {
		if err := fileClient.ReadYamlFile(filename, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyEnv(os.Getenv)
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnv overrides configuration values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(constants.SelfPingEnvVar)); v != "" {
		c.Services.SelfPing.ServerURL = v
	}
}

// ApplyDefaults fills every zero value with its documented default.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Identity.DeviceID == "" {
		c.Identity.DeviceID = constants.DefaultDeviceID
	}

	if c.Websocket.URL == "" {
		c.Websocket.URL = constants.DefaultWebsocketURL
	}
	if c.Websocket.HandshakeTimeout == 0 {
		c.Websocket.HandshakeTimeout = constants.DefaultHandshakeTimeout
	}
	if c.Websocket.SendQueueSize == 0 {
		c.Websocket.SendQueueSize = constants.DefaultSendQueueSize
	}

	conn := &c.Connection
	if conn.Heartbeat.Interval == 0 {
		conn.Heartbeat.Interval = constants.DefaultHeartbeatInterval
	}
	if conn.Watchdog.PollInterval == 0 {
		conn.Watchdog.PollInterval = constants.DefaultWatchdogPollInterval
	}
	if conn.Watchdog.StaleThreshold == 0 {
		conn.Watchdog.StaleThreshold = constants.DefaultWatchdogStaleThreshold
	}
	if conn.Watchdog.LivenessPolicy == "" {
		conn.Watchdog.LivenessPolicy = constants.LivenessPolicyAckOnly
	}
	if conn.Reconnect.Strategy == "" {
		conn.Reconnect.Strategy = constants.ReconnectStrategyConstant
	}
	if conn.Reconnect.Delay == 0 {
		conn.Reconnect.Delay = constants.DefaultReconnectDelay
	}
	if conn.Reconnect.MaxDelay == 0 {
		conn.Reconnect.MaxDelay = constants.DefaultReconnectMaxDelay
	}
	if conn.Reconnect.Factor == 0 {
		conn.Reconnect.Factor = constants.DefaultReconnectFactor
	}

	svc := &c.Services
	if svc.Telemetry.Interval == 0 {
		svc.Telemetry.Interval = constants.DefaultTelemetryInterval
	}
	if svc.Health.ListenAddr == "" {
		svc.Health.ListenAddr = constants.DefaultHealthListenAddr
	}
	if svc.SelfPing.MinInterval == 0 {
		svc.SelfPing.MinInterval = constants.DefaultSelfPingMinInterval
	}
	if svc.SelfPing.MaxInterval == 0 {
		svc.SelfPing.MaxInterval = constants.DefaultSelfPingMaxInterval
	}
	if svc.SelfPing.Timeout == 0 {
		svc.SelfPing.Timeout = constants.DefaultSelfPingTimeout
	}
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Connection.Watchdog.LivenessPolicy {
	case constants.LivenessPolicyAckOnly, constants.LivenessPolicyAnyInbound:
	default:
		errs = append(errs, fmt.Errorf("unknown liveness policy %q", c.Connection.Watchdog.LivenessPolicy))
	}

	switch c.Connection.Reconnect.Strategy {
	case constants.ReconnectStrategyConstant, constants.ReconnectStrategyExponential:
	default:
		errs = append(errs, fmt.Errorf("unknown reconnect strategy %q", c.Connection.Reconnect.Strategy))
	}

	if c.Connection.Reconnect.MaxDelay < c.Connection.Reconnect.Delay {
		errs = append(errs, errors.New("reconnect max_delay must not be lower than delay"))
	}
	if c.Connection.Watchdog.StaleThreshold <= c.Connection.Heartbeat.Interval {
		errs = append(errs, errors.New("watchdog stale_threshold must exceed the heartbeat interval"))
	}
	if c.Services.SelfPing.MaxInterval < c.Services.SelfPing.MinInterval {
		errs = append(errs, errors.New("self_ping max_interval must not be lower than min_interval"))
	}
	for name, d := range map[string]time.Duration{
		"heartbeat interval":     c.Connection.Heartbeat.Interval,
		"watchdog poll interval": c.Connection.Watchdog.PollInterval,
		"reconnect delay":        c.Connection.Reconnect.Delay,
		"telemetry interval":     c.Services.Telemetry.Interval,
		"handshake timeout":      c.Websocket.HandshakeTimeout,
		"self_ping min interval": c.Services.SelfPing.MinInterval,
		"self_ping max interval": c.Services.SelfPing.MaxInterval,
		"self_ping timeout":      c.Services.SelfPing.Timeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
