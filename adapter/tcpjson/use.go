package tcpjson

import (
	"fmt"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xtele"
)

// Use builds a Client over the TCP line-frame transport.
//
// Example:
//
//	client := tcpjson.Use(tcpjson.Defaults(),
//	    tcpjson.WithLogger(logger),
//	)
//	_ = client.Connect("127.0.0.1:8765")
func Use(cfg Config, opts ...Option) *xtele.Client {
	cb := xtele.NewClientBuilder().
		WithDialer(DialerName, cfg.toMap())

	for _, o := range opts {
		if o != nil {
			o(cb)
		}
	}

	client, err := cb.Build()
	if err != nil {
		panic(fmt.Errorf("tcpjson.Use: %w", err))
	}
	return client
}

// Option configures the xtele.Client when calling Use.
type Option func(*xtele.ClientBuilder)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(cb *xtele.ClientBuilder) { cb.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(cb *xtele.ClientBuilder) { cb.WithClock(c) }
}

// WithOptions replaces the client option surface.
func WithOptions(o xtele.Options) Option {
	return func(cb *xtele.ClientBuilder) { cb.WithOptions(o) }
}

// WithMiddleware adds processing middlewares around subscriber handlers.
func WithMiddleware(mw ...xtele.Middleware) Option {
	return func(cb *xtele.ClientBuilder) { cb.WithMiddleware(mw...) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xtele.Observer) Option {
	return func(cb *xtele.ClientBuilder) { cb.WithObserver(obs...) }
}

// WithObserverPool enables asynchronous observer dispatch.
func WithObserverPool(workers, bufferSize int) Option {
	return func(cb *xtele.ClientBuilder) { cb.WithObserverPool(workers, bufferSize) }
}
