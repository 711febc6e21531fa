package services

import (
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/rs/zerolog"
)

// WatchdogMonitor detects a connection that looks open but has stopped
// proving liveness, and reports it once per arming.
type WatchdogMonitor struct {
	pollInterval   time.Duration
	staleThreshold time.Duration
	clock          clock.Clock
	logger         zerolog.Logger

	mu          sync.Mutex
	timer       clock.Timer
	lastProofAt time.Time
	onStale     func(age time.Duration)
	token       uint64
	armed       bool
	fired       bool
}

// NewWatchdogMonitor creates a disarmed WatchdogMonitor.
func NewWatchdogMonitor(pollInterval, staleThreshold time.Duration, clk clock.Clock, logger zerolog.Logger) *WatchdogMonitor {
	return &WatchdogMonitor{
		pollInterval:   pollInterval,
		staleThreshold: staleThreshold,
		clock:          clk,
		logger:         logger,
	}
}

// Arm resets the liveness record to now and starts polling. onStale runs
// at most once until the next Arm.
func (w *WatchdogMonitor) Arm(onStale func(age time.Duration)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	w.armed = true
	w.fired = false
	w.onStale = onStale
	w.lastProofAt = w.clock.Now()
	w.scheduleLocked(w.token)

	w.logger.Debug().Dur("threshold", w.staleThreshold).Msg("Watchdog armed")
}

// Disarm stops polling. It is safe to call when not armed.
func (w *WatchdogMonitor) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// RecordProof marks the peer as alive now. Ignored while disarmed.
func (w *WatchdogMonitor) RecordProof() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		w.lastProofAt = w.clock.Now()
	}
}

// LastProofAt returns the time of the last liveness proof.
func (w *WatchdogMonitor) LastProofAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastProofAt
}

// Armed reports whether the watchdog is polling.
func (w *WatchdogMonitor) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *WatchdogMonitor) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.token++
	w.armed = false
	w.onStale = nil
}

func (w *WatchdogMonitor) scheduleLocked(token uint64) {
	w.timer = w.clock.AfterFunc(w.pollInterval, func() { w.poll(token) })
}

func (w *WatchdogMonitor) poll(token uint64) {
	defer utils.RecoverPanic(w.logger, "watchdog")

	w.mu.Lock()
	if !w.armed || w.fired || token != w.token {
		w.mu.Unlock()
		return
	}

	age := w.clock.Now().Sub(w.lastProofAt)
	if age <= w.staleThreshold {
		w.scheduleLocked(token)
		w.mu.Unlock()
		return
	}

	// Breach: stop polling and report once.
	w.fired = true
	w.timer = nil
	onStale := w.onStale
	w.mu.Unlock()

	w.logger.Warn().Dur("since_last_proof", age).Dur("threshold", w.staleThreshold).
		Msg("No liveness proof within threshold, forcing reconnect")
	onStale(age)
}
