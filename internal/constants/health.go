package constants

import "time"

const (
	// StatusOK is reported by the liveness endpoint.
	StatusOK = "ok"

	// DefaultHealthListenAddr matches the port the device has always used.
	DefaultHealthListenAddr = ":4000"

	// SelfPingEnvVar names the environment variable holding the self-ping base URL.
	SelfPingEnvVar = "SERVER_URL"

	DefaultSelfPingMinInterval = 10 * time.Second
	DefaultSelfPingMaxInterval = 20 * time.Second
	DefaultSelfPingTimeout     = 10 * time.Second
)
