package websocket

// EventKind tags an Event emitted by a Conn.
type EventKind int

const (
	// EventOpened reports that the handshake completed and frames may flow.
	EventOpened EventKind = iota
	// EventClosed reports the end of a connection. It is emitted exactly once
	// per Conn, including when the dial itself fails.
	EventClosed
	// EventErrored reports a transport error. An EventClosed always follows.
	EventErrored
	// EventFrameReceived carries an inbound application frame.
	EventFrameReceived
	// EventLivenessProbe reports a ping sent by the peer.
	EventLivenessProbe
	// EventLivenessAck reports a pong sent by the peer.
	EventLivenessAck
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	case EventFrameReceived:
		return "frame_received"
	case EventLivenessProbe:
		return "liveness_probe"
	case EventLivenessAck:
		return "liveness_ack"
	default:
		return "unknown"
	}
}

// Event is a single transport notification.
type Event struct {
	Kind   EventKind
	Data   []byte // frame payload or ping/pong application data
	Code   int    // close code, EventClosed only
	Reason string // close reason, EventClosed only
	Err    error  // EventErrored only
}

// EventHandler receives the events of one Conn. Calls for a given Conn are
// never concurrent with each other except for liveness probes and acks,
// which arrive on the read goroutine like frames do.
type EventHandler func(Event)
