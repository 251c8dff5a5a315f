package xtele

import (
	"time"
)

// EventType enumerates internal lifecycle events for the Observer pattern.
type EventType string

const (
	ConnectStart       EventType = "connect_start"
	Connected          EventType = "connected"
	Disconnected       EventType = "disconnected"
	ReconnectScheduled EventType = "reconnect_scheduled"
	ReconnectExhausted EventType = "reconnect_exhausted"
	FrameReceived      EventType = "frame_received"
	FrameSent          EventType = "frame_sent"
	FrameParseError    EventType = "frame_parse_error"
	HandlerPanic       EventType = "handler_panic"
	HandlerFailed      EventType = "handler_failed"
	HeartbeatSent      EventType = "heartbeat_sent"
	PongMissed         EventType = "pong_missed"
)

// Event carries telemetry for observers.
type Event struct {
	Type    EventType
	Addr    string
	Kind    Kind
	Attempt int           // reconnect attempt number, 1-based
	Delay   time.Duration // scheduled backoff before the next attempt
	Err     error

	// Internal: attached for async dispatch
	observers []Observer
}
