package xtele

import (
	"context"
)

// ConnEvents carries the callbacks a Conn fires as the transport delivers
// frames and eventually closes. OnClose fires exactly once per successful
// Dial, whether the close was explicit, remote, or caused by an error.
type ConnEvents struct {
	// OnFrame is invoked for every raw frame, in transport arrival order.
	OnFrame func(frame []byte)
	// OnClose is invoked once when the connection is gone. err is nil for
	// an orderly close.
	OnClose func(err error)
}

// Conn is a single-shot duplex connection. No reconnection logic lives at
// this layer; a closed Conn is discarded, never reused.
type Conn interface {
	// Send transmits one raw frame. Delivery guarantee is the transport's
	// own (assume at-most-once). Fails once the connection is closed.
	Send(ctx context.Context, frame []byte) error
	// Close tears the connection down and triggers OnClose if it has not
	// fired yet. Safe to call more than once.
	Close(ctx context.Context) error
}

// Dialer is the Strategy interface for transport backends. Dial either
// establishes a live Conn or fails with a *ConnectError-wrappable error;
// it must not retry internally.
type Dialer interface {
	Dial(ctx context.Context, addr string, events ConnEvents) (Conn, error)
}

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string, events ConnEvents) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string, events ConnEvents) (Conn, error) {
	return f(ctx, addr, events)
}
