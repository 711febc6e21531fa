package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	// ErrConnectionClosed is returned when writing to a Conn that was closed,
	// terminated, or never opened.
	ErrConnectionClosed = errors.New("websocket connection is closed")
	// ErrSendQueueFull is returned when the outbound buffer cannot take more frames.
	ErrSendQueueFull = errors.New("websocket send queue is full")
)

// Conn is one WebSocket connection attempt. All methods are non-blocking.
type Conn interface {
	// Ping sends a protocol-level ping.
	Ping() error
	// Pong answers a peer ping with the same application data.
	Pong(data []byte) error
	// Send queues a text frame for the writer goroutine.
	Send(data []byte) error
	// Close starts a graceful close handshake.
	Close(code int, reason string) error
	// Terminate drops the underlying network connection without a close frame.
	Terminate() error
}

// Transport opens connections. Open returns immediately; the outcome of the
// dial is reported to handler as EventOpened or EventErrored+EventClosed.
type Transport interface {
	Open(target string, handler EventHandler) Conn
}

// Options tunes the gorilla dialer and the per-connection writer.
type Options struct {
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	CloseGracePeriod   time.Duration
	SendQueueSize      int
	InsecureSkipVerify bool
}

// WebsocketTransport implements Transport with gorilla/websocket.
type WebsocketTransport struct {
	dialer *ws.Dialer
	opts   Options
	logger zerolog.Logger
}

// NewTransport creates a WebsocketTransport.
func NewTransport(opts Options, logger zerolog.Logger) *WebsocketTransport {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.CloseGracePeriod <= 0 {
		opts.CloseGracePeriod = time.Second
	}

	return &WebsocketTransport{
		dialer: &ws.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			// The collector may present a self-signed certificate.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		},
		opts:   opts,
		logger: logger,
	}
}

// TargetURL appends the deviceId query parameter to the collector endpoint.
func TargetURL(endpoint, deviceID string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid websocket url %q: scheme must be ws or wss", endpoint)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	q := u.Query()
	q.Set("deviceId", deviceID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open starts dialing target in the background.
func (t *WebsocketTransport) Open(target string, handler EventHandler) Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		transport:  t,
		handler:    handler,
		send:       make(chan []byte, t.opts.SendQueueSize),
		done:       make(chan struct{}),
		cancelDial: cancel,
	}

	go c.run(ctx, target)
	return c
}

type conn struct {
	transport  *WebsocketTransport
	handler    EventHandler
	send       chan []byte
	done       chan struct{}
	cancelDial context.CancelFunc
	finishOnce sync.Once

	mu      sync.Mutex
	socket  *ws.Conn
	closing bool
}

// emit shields the read goroutine from panics in the handler.
func (c *conn) emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.transport.logger.Error().Interface("panic", r).Str("event", ev.Kind.String()).
				Msg("Recovered from panic in websocket event handler")
		}
	}()
	c.handler(ev)
}

func (c *conn) run(ctx context.Context, target string) {
	defer c.finish()

	wsConn, _, err := c.transport.dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.emit(Event{Kind: EventErrored, Err: fmt.Errorf("dial failed: %w", err)})
		c.emit(Event{Kind: EventClosed, Code: ws.CloseAbnormalClosure, Reason: "dial failed"})
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		wsConn.Close()
		c.emit(Event{Kind: EventClosed, Code: ws.CloseAbnormalClosure, Reason: "closed before open"})
		return
	}
	c.socket = wsConn
	c.mu.Unlock()

	wsConn.SetPingHandler(func(appData string) error {
		c.emit(Event{Kind: EventLivenessProbe, Data: []byte(appData)})
		return nil
	})
	wsConn.SetPongHandler(func(appData string) error {
		c.emit(Event{Kind: EventLivenessAck, Data: []byte(appData)})
		return nil
	})

	c.emit(Event{Kind: EventOpened})

	go c.writeLoop(wsConn)
	c.readLoop(wsConn)
}

func (c *conn) readLoop(wsConn *ws.Conn) {
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			var closeErr *ws.CloseError
			switch {
			case errors.As(err, &closeErr):
				c.emit(Event{Kind: EventClosed, Code: closeErr.Code, Reason: closeErr.Text})
			case c.isClosing():
				c.emit(Event{Kind: EventClosed, Code: ws.CloseAbnormalClosure, Reason: "terminated"})
			default:
				c.emit(Event{Kind: EventErrored, Err: err})
				c.emit(Event{Kind: EventClosed, Code: ws.CloseAbnormalClosure})
			}
			return
		}
		c.emit(Event{Kind: EventFrameReceived, Data: data})
	}
}

func (c *conn) writeLoop(wsConn *ws.Conn) {
	for {
		select {
		case msg := <-c.send:
			//nolint:errcheck // write error surfaces below
			wsConn.SetWriteDeadline(time.Now().Add(c.transport.opts.WriteTimeout))
			if err := wsConn.WriteMessage(ws.TextMessage, msg); err != nil {
				c.transport.logger.Warn().Err(err).Msg("Websocket write failed, dropping connection")
				// The read loop observes the closed socket and reports the close.
				wsConn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) finish() {
	c.finishOnce.Do(func() {
		c.cancelDial()
		close(c.done)

		c.mu.Lock()
		c.closing = true
		if c.socket != nil {
			c.socket.Close()
		}
		c.mu.Unlock()
	})
}

func (c *conn) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// active returns the socket if the connection is usable for writes.
func (c *conn) active() (*ws.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.socket == nil {
		return nil, ErrConnectionClosed
	}
	return c.socket, nil
}

func (c *conn) Ping() error {
	wsConn, err := c.active()
	if err != nil {
		return err
	}
	return wsConn.WriteControl(ws.PingMessage, nil, time.Now().Add(c.transport.opts.WriteTimeout))
}

func (c *conn) Pong(data []byte) error {
	wsConn, err := c.active()
	if err != nil {
		return err
	}
	return wsConn.WriteControl(ws.PongMessage, data, time.Now().Add(c.transport.opts.WriteTimeout))
}

func (c *conn) Send(data []byte) error {
	if _, err := c.active(); err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.closing = true
	wsConn := c.socket
	c.mu.Unlock()

	if wsConn == nil {
		c.cancelDial()
		return nil
	}

	err := wsConn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason),
		time.Now().Add(c.transport.opts.WriteTimeout))
	// Drop the socket if the peer never echoes the close frame.
	time.AfterFunc(c.transport.opts.CloseGracePeriod, func() { wsConn.Close() })
	return err
}

func (c *conn) Terminate() error {
	c.mu.Lock()
	c.closing = true
	wsConn := c.socket
	c.mu.Unlock()

	c.cancelDial()
	if wsConn == nil {
		return nil
	}
	return wsConn.Close()
}
