package xtele

import (
	"encoding/json"
)

// Kind discriminates envelope types on the wire. The known set below is
// closed; any other value is carried verbatim as an unknown kind and still
// reaches wildcard subscribers.
type Kind string

const (
	KindTick       Kind = "tick"
	KindMetrics    Kind = "metrics_update"
	KindStatus     Kind = "status"
	KindError      Kind = "error"
	KindPing       Kind = "ping"
	KindPong       Kind = "pong"
	KindSubscribe  Kind = "subscribe"
	KindSubscribed Kind = "subscribed"
)

var knownKinds = map[Kind]struct{}{
	KindTick:       {},
	KindMetrics:    {},
	KindStatus:     {},
	KindError:      {},
	KindPing:       {},
	KindPong:       {},
	KindSubscribe:  {},
	KindSubscribed: {},
}

// Known reports whether k belongs to the closed set of envelope kinds.
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Envelope is the unit of bus traffic. Wire convention (single, fixed):
//
//	{"type": string, "data": any, "timestamp": int64, "correlation_id": string}
//
// Timestamp is producer-assigned unix milliseconds; it is NOT guaranteed to
// be monotonic and consumers must tolerate out-of-order values. Payload is
// opaque to the bus itself.
type Envelope struct {
	// Kind is the message type discriminator.
	Kind Kind `json:"type"`
	// Payload is the raw, un-interpreted message body.
	Payload json.RawMessage `json:"data,omitempty"`
	// Timestamp is the producer-assigned unix-millisecond timestamp.
	Timestamp int64 `json:"timestamp"`
	// CorrelationID links request/response style exchanges (optional).
	CorrelationID string `json:"correlation_id,omitempty"`
}
