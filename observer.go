package xtele

import (
	"github.com/trickstertwo/xlog"
)

// Observer receives client lifecycle events. Implementations should be
// non-blocking; slow observers are isolated by the ObserverPool when one
// is configured.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits lifecycle events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("addr", e.Addr),
		xlog.Str("kind", string(e.Kind)),
	)
	switch e.Type {
	case FrameParseError, HandlerPanic, HandlerFailed, ReconnectExhausted, PongMissed:
		ev.Warn().Err(e.Err).Msg("xtele event")
	case ReconnectScheduled:
		ev.With(xlog.Dur("delay", e.Delay)).Warn().Msg("xtele reconnect scheduled")
	default:
		ev.Debug().Msg("xtele event")
	}
}
