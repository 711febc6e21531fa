package services

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/garden-agent/internal/constants"
	"github.com/benmeehan/garden-agent/internal/models"
	"github.com/benmeehan/garden-agent/internal/utils"
	"github.com/benmeehan/garden-agent/pkg/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Send when the connection is not open.
var ErrNotConnected = errors.New("connection is not open")

// closeAbnormal is the code reported for teardowns without a close frame.
const closeAbnormal = 1006

// ConnectionStatus is the narrow view of the connection that producers use.
type ConnectionStatus interface {
	IsOpen() bool
	Send(payload []byte) error
}

// FrameObserver receives every inbound frame that decodes as a JSON object.
type FrameObserver func(frame map[string]any)

// ConnectionManager owns the single collector connection and drives its
// lifecycle: connect, open, close, reconnect.
type ConnectionManager struct {
	target         string
	deviceID       string
	livenessPolicy string
	transport      websocket.Transport
	heartbeat      *HeartbeatController
	watchdog       *WatchdogMonitor
	reconnect      *ReconnectScheduler
	logger         zerolog.Logger

	mu         sync.Mutex
	state      models.ConnectionState
	conn       websocket.Conn
	generation uint64 // identifies the current connection; older events are ignored
	connLogger zerolog.Logger
	observer   FrameObserver
	running    bool
	stopped    bool
}

var _ ConnectionStatus = (*ConnectionManager)(nil)

// NewConnectionManager wires a ConnectionManager to its collaborators. The
// reconnect scheduler is bound to the manager's Connect.
func NewConnectionManager(
	target, deviceID, livenessPolicy string,
	transport websocket.Transport,
	heartbeat *HeartbeatController,
	watchdog *WatchdogMonitor,
	reconnect *ReconnectScheduler,
	logger zerolog.Logger,
) *ConnectionManager {
	m := &ConnectionManager{
		target:         target,
		deviceID:       deviceID,
		livenessPolicy: livenessPolicy,
		transport:      transport,
		heartbeat:      heartbeat,
		watchdog:       watchdog,
		reconnect:      reconnect,
		logger:         logger,
		connLogger:     logger,
		state:          models.StateIdle,
	}
	reconnect.SetConnect(m.Connect)
	return m
}

// SetFrameObserver registers a sink for decoded inbound frames. The agent
// itself only logs frames; the hook exists for tests and embedders.
func (m *ConnectionManager) SetFrameObserver(observer FrameObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// Start opens the first connection.
func (m *ConnectionManager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn().Msg("ConnectionManager is already running")
		return errors.New("connection manager is already running")
	}
	m.running = true
	m.stopped = false
	m.mu.Unlock()

	m.logger.Info().Str("target", m.target).Str("device_id", m.deviceID).Msg("ConnectionManager started")
	m.Connect()
	return nil
}

// Stop tears the connection down gracefully and suppresses reconnects.
func (m *ConnectionManager) Stop() error {
	conn, err := m.stopLocked()
	if err != nil {
		m.logger.Warn().Msg("ConnectionManager is not running")
		return err
	}

	if conn != nil {
		if err := conn.Close(constants.CloseNormalClosure, "agent shutting down"); err != nil {
			m.logger.Debug().Err(err).Msg("Close handshake failed")
		}
	}

	m.logger.Info().Msg("ConnectionManager stopped successfully")
	return nil
}

// stopLocked moves the manager to Idle and hands back the connection to close.
func (m *ConnectionManager) stopLocked() (websocket.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil, errors.New("connection manager is not running")
	}
	m.running = false
	m.stopped = true

	m.reconnect.Cancel()
	m.heartbeat.Disarm()
	m.watchdog.Disarm()

	conn := m.conn
	m.conn = nil
	m.generation++
	m.state = models.StateIdle
	return conn, nil
}

// Connect starts a new connection attempt. It is a no-op while a
// connection is already connecting or open, or after Stop.
func (m *ConnectionManager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		m.logger.Debug().Msg("Connect ignored, manager is stopped")
		return
	}
	if m.state == models.StateConnecting || m.state == models.StateOpen {
		m.logger.Warn().Str("state", m.state.String()).Msg("Connect ignored, connection already active")
		return
	}

	m.generation++
	gen := m.generation
	sessionID := uuid.NewString()
	m.connLogger = m.logger.With().Str("session_id", sessionID).Logger()
	m.state = models.StateConnecting

	m.connLogger.Info().Str("target", m.target).Msg("Connecting to collector")
	m.conn = m.transport.Open(m.target, func(ev websocket.Event) {
		m.handleEvent(gen, ev)
	})
}

// ForceClose hard-terminates the open connection and funnels into the
// reconnect path. It is a no-op unless the connection is open.
func (m *ConnectionManager) ForceClose(reason string) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	m.forceClose(gen, reason)
}

// IsOpen reports whether the connection is usable for sends.
func (m *ConnectionManager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == models.StateOpen
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send queues payload on the open connection.
func (m *ConnectionManager) Send(payload []byte) error {
	m.mu.Lock()
	if m.state != models.StateOpen || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	return conn.Send(payload)
}

// handleEvent is the single transition function for transport events.
func (m *ConnectionManager) handleEvent(gen uint64, ev websocket.Event) {
	defer utils.RecoverPanic(m.logger, "connection event "+ev.Kind.String())

	if after := m.transition(gen, ev); after != nil {
		after()
	}
}

// transition applies ev under the lock and returns the work that must run
// after the lock is released.
func (m *ConnectionManager) transition(gen uint64, ev websocket.Event) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		logger := m.logger
		return func() {
			logger.Debug().Str("event", ev.Kind.String()).Msg("Ignoring event from stale connection")
		}
	}
	logger := m.connLogger

	switch ev.Kind {
	case websocket.EventOpened:
		m.openedLocked(gen)
		return nil

	case websocket.EventClosed:
		m.closedLocked(ev.Code, ev.Reason)
		return nil

	case websocket.EventErrored:
		return func() { logger.Warn().Err(ev.Err).Msg("WS error") }

	case websocket.EventLivenessAck:
		m.watchdog.RecordProof()
		return func() { logger.Debug().Msg("Pong received") }

	case websocket.EventLivenessProbe:
		conn := m.conn
		if m.livenessPolicy == constants.LivenessPolicyAnyInbound {
			m.watchdog.RecordProof()
		}
		return func() {
			// The collector drops clients that leave its pings unanswered.
			if conn == nil {
				return
			}
			if err := conn.Pong(ev.Data); err != nil {
				logger.Warn().Err(err).Msg("Failed to answer server ping")
			}
		}

	case websocket.EventFrameReceived:
		if m.livenessPolicy == constants.LivenessPolicyAnyInbound {
			m.watchdog.RecordProof()
		}
		observer := m.observer
		return func() { m.handleFrame(logger, ev.Data, observer) }

	default:
		return func() { logger.Warn().Int("kind", int(ev.Kind)).Msg("Unknown transport event") }
	}
}

func (m *ConnectionManager) openedLocked(gen uint64) {
	if m.state != models.StateConnecting {
		return
	}
	m.state = models.StateOpen
	m.reconnect.Reset()

	conn := m.conn
	m.heartbeat.Arm(conn.Ping)
	m.watchdog.Arm(func(time.Duration) {
		m.forceClose(gen, "no pong within stale threshold")
	})

	m.connLogger.Info().Str("device_id", m.deviceID).Msg("Connected to collector")
}

func (m *ConnectionManager) closedLocked(code int, reason string) {
	if m.state != models.StateOpen && m.state != models.StateConnecting {
		return
	}
	m.connLogger.Info().Int("code", code).Str("reason", reason).Msg("WS closed")
	m.teardownLocked()
}

// teardownLocked performs the transition into Closed and requests a reconnect.
func (m *ConnectionManager) teardownLocked() {
	m.heartbeat.Disarm()
	m.watchdog.Disarm()

	m.state = models.StateClosed
	m.conn = nil
	m.generation++

	if !m.stopped {
		m.reconnect.Schedule()
	}
}

func (m *ConnectionManager) forceClose(gen uint64, reason string) {
	conn, logger, ok := m.teardownIfOpen(gen)
	if !ok {
		return
	}

	logger.Warn().Int("code", closeAbnormal).Str("reason", reason).Msg("Terminating connection")
	if err := conn.Terminate(); err != nil {
		logger.Debug().Err(err).Msg("Terminate returned an error")
	}
}

// teardownIfOpen tears down the connection of generation gen if it is still open.
func (m *ConnectionManager) teardownIfOpen(gen uint64) (websocket.Conn, zerolog.Logger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != models.StateOpen {
		return nil, m.logger, false
	}
	conn := m.conn
	logger := m.connLogger
	m.teardownLocked()
	return conn, logger, true
}

func (m *ConnectionManager) handleFrame(logger zerolog.Logger, data []byte, observer FrameObserver) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil || frame == nil {
		logger.Info().Str("raw", string(data)).Msg("Received NON-JSON frame")
		return
	}

	logger.Info().Interface("frame", frame).Msg("Received frame")
	if observer != nil {
		observer(frame)
	}
}
