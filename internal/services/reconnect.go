package services

import (
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/constants"
	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/clock"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// DelayPolicy yields the wait before each reconnect attempt.
type DelayPolicy interface {
	Next() time.Duration
	Reset()
}

// ConstantDelay waits the same duration before every attempt.
type ConstantDelay time.Duration

func (d ConstantDelay) Next() time.Duration { return time.Duration(d) }
func (d ConstantDelay) Reset()              {}

// ExponentialDelay grows the wait between attempts up to a cap.
type ExponentialDelay struct {
	b *backoff.Backoff
}

// NewExponentialDelay creates an ExponentialDelay starting at min.
func NewExponentialDelay(min, max time.Duration, factor float64, jitter bool) *ExponentialDelay {
	return &ExponentialDelay{b: &backoff.Backoff{Min: min, Max: max, Factor: factor, Jitter: jitter}}
}

func (e *ExponentialDelay) Next() time.Duration { return e.b.Duration() }
func (e *ExponentialDelay) Reset()              { e.b.Reset() }

// NewDelayPolicy builds the policy named by strategy.
func NewDelayPolicy(strategy string, delay, maxDelay time.Duration, factor float64, jitter bool) DelayPolicy {
	if strategy == constants.ReconnectStrategyExponential {
		return NewExponentialDelay(delay, maxDelay, factor, jitter)
	}
	return ConstantDelay(delay)
}

// ReconnectScheduler debounces reconnect attempts: at most one is pending.
type ReconnectScheduler struct {
	policy DelayPolicy
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	timer   clock.Timer
	connect func()
	token   uint64
	pending bool
}

// NewReconnectScheduler creates a ReconnectScheduler that calls connect when a
// scheduled attempt falls due.
func NewReconnectScheduler(policy DelayPolicy, clk clock.Clock, logger zerolog.Logger) *ReconnectScheduler {
	return &ReconnectScheduler{
		policy: policy,
		clock:  clk,
		logger: logger,
	}
}

// SetConnect sets the function invoked when the reconnect timer fires.
func (r *ReconnectScheduler) SetConnect(connect func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connect = connect
}

// Schedule arms a reconnect unless one is already pending. It reports
// whether a new timer was armed.
func (r *ReconnectScheduler) Schedule() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending {
		r.logger.Debug().Msg("Reconnect already pending, ignoring request")
		return false
	}

	delay := r.policy.Next()
	r.pending = true
	r.token++
	token := r.token
	r.timer = r.clock.AfterFunc(delay, func() { r.fire(token) })

	r.logger.Info().Dur("delay", delay).Msg("Reconnect scheduled")
	return true
}

// Cancel drops a pending reconnect, if any.
func (r *ReconnectScheduler) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// Reset cancels a pending reconnect and restarts the delay policy.
func (r *ReconnectScheduler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
	r.policy.Reset()
}

// Pending reports whether a reconnect timer is armed.
func (r *ReconnectScheduler) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *ReconnectScheduler) clearLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.token++
	r.pending = false
}

func (r *ReconnectScheduler) fire(token uint64) {
	defer utils.RecoverPanic(r.logger, "reconnect")

	r.mu.Lock()
	if !r.pending || token != r.token {
		r.mu.Unlock()
		return
	}
	r.pending = false
	r.timer = nil
	connect := r.connect
	r.mu.Unlock()

	r.logger.Info().Msg("Reconnecting...")
	if connect != nil {
		connect()
	}
}
