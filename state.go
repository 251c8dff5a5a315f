package xtele

// ConnectionState describes the reconnector's view of the link. Exactly one
// connection is current at any time; a superseded connection must not
// deliver further events.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lifecycle tracks the client instance itself, independent of the link.
type Lifecycle int32

const (
	LifecycleCreated Lifecycle = iota
	LifecycleConnected
	LifecycleDisconnected
	LifecycleDisposed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleCreated:
		return "created"
	case LifecycleConnected:
		return "connected"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
