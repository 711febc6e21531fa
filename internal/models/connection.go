package models

// ConnectionState is the lifecycle state of the collector connection.
type ConnectionState int

const (
	// StateIdle means no connection has been attempted yet, or the manager was stopped.
	StateIdle ConnectionState = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the connection is usable for sends.
	StateOpen
	// StateClosed means the connection ended and a reconnect is pending or due.
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
