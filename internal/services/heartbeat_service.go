package services

import (
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/rs/zerolog"
)

// HeartbeatController pings the peer on a fixed period while the
// connection is open.
type HeartbeatController struct {
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger

	mu    sync.Mutex
	timer clock.Timer
	probe func() error
	token uint64 // bumped on every Arm/Disarm to void in-flight callbacks
	armed bool
}

// NewHeartbeatController creates a disarmed HeartbeatController.
func NewHeartbeatController(interval time.Duration, clk clock.Clock, logger zerolog.Logger) *HeartbeatController {
	return &HeartbeatController{
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Arm starts pinging through probe every interval, replacing any previous arming.
func (h *HeartbeatController) Arm(probe func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()
	h.armed = true
	h.probe = probe
	h.scheduleLocked(h.token)

	h.logger.Debug().Dur("interval", h.interval).Msg("Heartbeat armed")
}

// Disarm stops pinging. It is safe to call when not armed.
func (h *HeartbeatController) Disarm() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.armed {
		h.logger.Debug().Msg("Heartbeat disarmed")
	}
	h.stopLocked()
}

// Armed reports whether the controller is currently pinging.
func (h *HeartbeatController) Armed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.armed
}

func (h *HeartbeatController) stopLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.token++
	h.armed = false
	h.probe = nil
}

func (h *HeartbeatController) scheduleLocked(token uint64) {
	h.timer = h.clock.AfterFunc(h.interval, func() { h.tick(token) })
}

func (h *HeartbeatController) tick(token uint64) {
	defer utils.RecoverPanic(h.logger, "heartbeat")

	h.mu.Lock()
	if !h.armed || token != h.token {
		h.mu.Unlock()
		return
	}
	h.scheduleLocked(token)
	probe := h.probe
	h.mu.Unlock()

	if err := probe(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send heartbeat ping")
		return
	}
	h.logger.Debug().Msg("Heartbeat ping sent")
}
