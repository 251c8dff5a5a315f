// Package promobs exports the client's lifecycle event stream as
// Prometheus metrics. Attach it like any other observer:
//
//	obs, _ := promobs.New(prometheus.DefaultRegisterer, "xtele")
//	client.AddObserver(obs)
package promobs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xtele"
)

// Observer implements xtele.Observer backed by Prometheus collectors.
type Observer struct {
	events         *prometheus.CounterVec
	framesReceived prometheus.Counter
	framesSent     prometheus.Counter
	parseErrors    prometheus.Counter
	handlerErrors  prometheus.Counter
	reconnects     prometheus.Counter
	lastBackoff    prometheus.Gauge
	connected      prometheus.Gauge
}

var _ xtele.Observer = (*Observer)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Observer, error) {
	if namespace == "" {
		namespace = "xtele"
	}
	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total client lifecycle events by type.",
		}, []string{"type"}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total frames received from the transport.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total frames sent over the transport.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total frames that failed envelope decoding.",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Total subscriber handler errors and panics.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Total scheduled reconnect attempts.",
		}),
		lastBackoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_backoff_seconds",
			Help:      "Backoff delay of the most recently scheduled reconnect.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the client holds a live connection.",
		}),
	}

	for _, c := range []prometheus.Collector{
		o.events, o.framesReceived, o.framesSent, o.parseErrors,
		o.handlerErrors, o.reconnects, o.lastBackoff, o.connected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnEvent translates one lifecycle event into collector updates.
func (o *Observer) OnEvent(e xtele.Event) {
	o.events.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case xtele.FrameReceived:
		o.framesReceived.Inc()
	case xtele.FrameSent:
		o.framesSent.Inc()
	case xtele.FrameParseError:
		o.parseErrors.Inc()
	case xtele.HandlerFailed, xtele.HandlerPanic:
		o.handlerErrors.Inc()
	case xtele.ReconnectScheduled:
		o.reconnects.Inc()
		o.lastBackoff.Set(e.Delay.Seconds())
	case xtele.Connected:
		o.connected.Set(1)
	case xtele.Disconnected, xtele.ReconnectExhausted:
		o.connected.Set(0)
	}
}
