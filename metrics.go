package xtele

import "sync/atomic"

// Metrics defines observable telemetry for the client.
type Metrics struct {
	FramesReceived uint64
	FramesSent     uint64
	ParseErrors    uint64
	HandlerPanics  uint64
	HandlerErrors  uint64
	UnknownKinds   uint64
	Reconnects     uint64
	HeartbeatsSent uint64
	PongsMissed    uint64
	TicksApplied   uint64
	EventsDropped  uint64
}

// clientMetrics uses lock-free atomics on the hot receive path.
type clientMetrics struct {
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
	parseErrors    atomic.Uint64
	handlerPanics  atomic.Uint64
	handlerErrors  atomic.Uint64
	unknownKinds   atomic.Uint64
	reconnects     atomic.Uint64
	heartbeatsSent atomic.Uint64
	pongsMissed    atomic.Uint64
	ticksApplied   atomic.Uint64
}

func (m *clientMetrics) snapshot(dropped uint64) Metrics {
	return Metrics{
		FramesReceived: m.framesReceived.Load(),
		FramesSent:     m.framesSent.Load(),
		ParseErrors:    m.parseErrors.Load(),
		HandlerPanics:  m.handlerPanics.Load(),
		HandlerErrors:  m.handlerErrors.Load(),
		UnknownKinds:   m.unknownKinds.Load(),
		Reconnects:     m.reconnects.Load(),
		HeartbeatsSent: m.heartbeatsSent.Load(),
		PongsMissed:    m.pongsMissed.Load(),
		TicksApplied:   m.ticksApplied.Load(),
		EventsDropped:  dropped,
	}
}
