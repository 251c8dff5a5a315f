package xtele

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send/Request when no live connection
	// exists. Sends are never queued.
	ErrNotConnected = errors.New("xtele: not connected")

	// ErrClientClosed is returned once a client has been disposed.
	ErrClientClosed = errors.New("xtele: client closed")

	// ErrReconnectExhausted reports that the retry budget for the current
	// connect cycle is spent. The client stays usable; a fresh Connect
	// starts a new cycle.
	ErrReconnectExhausted = errors.New("xtele: reconnect attempts exhausted")

	// ErrNoDialerConfigured is returned by Build when neither a dialer name
	// nor a dialer instance was provided.
	ErrNoDialerConfigured = errors.New("xtele: no dialer configured")

	// ErrInvalidSubscription is returned for a nil handler or empty kind.
	ErrInvalidSubscription = errors.New("xtele: invalid subscription")

	// ErrObserverPoolShutdownTimeout reports that pool workers did not
	// drain within the close timeout.
	ErrObserverPoolShutdownTimeout = errors.New("xtele: observer pool shutdown timeout")
)

// ErrUnknownDialer is returned when a dialer name has no registered factory.
type ErrUnknownDialer struct{ name string }

func (e ErrUnknownDialer) Error() string { return fmt.Sprintf("xtele: unknown dialer: %s", e.name) }

// ConnectError wraps a transport-level dial failure. It is recoverable and
// drives the reconnect retry loop.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("xtele: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ParseError wraps a frame that could not be decoded into an Envelope.
// It is counted and routed to error-subscribers only.
type ParseError struct {
	Frame []byte
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xtele: parse frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
