package constants

import "time"

const (
	// DefaultDeviceID is the identifier the simulated device reports.
	DefaultDeviceID = "testdata_001"

	// DefaultWebsocketURL is the telemetry collector endpoint.
	DefaultWebsocketURL = "wss://smart-garden-websocket.onrender.com/"

	// DefaultHandshakeTimeout bounds a single dial attempt.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultSendQueueSize is the number of frames buffered per connection.
	DefaultSendQueueSize = 64
)

const (
	DefaultHeartbeatInterval      = 15 * time.Second
	DefaultWatchdogPollInterval   = 5 * time.Second
	DefaultWatchdogStaleThreshold = 30 * time.Second
	DefaultReconnectDelay         = 3 * time.Second
	DefaultReconnectMaxDelay      = time.Minute
	DefaultReconnectFactor        = 2.0
	DefaultTelemetryInterval      = 5 * time.Second
)

// Reconnect delay strategies.
const (
	// ReconnectStrategyConstant retries forever at the base delay.
	ReconnectStrategyConstant = "constant"
	// ReconnectStrategyExponential grows the delay up to the max delay, with jitter.
	ReconnectStrategyExponential = "exponential"
)

// Liveness proof policies for the watchdog.
const (
	// LivenessPolicyAckOnly counts only pongs answering our pings.
	LivenessPolicyAckOnly = "ack_only"
	// LivenessPolicyAnyInbound also counts peer pings and application frames.
	LivenessPolicyAnyInbound = "any_inbound"
)

// Close code used when the agent shuts down.
const CloseNormalClosure = 1000
