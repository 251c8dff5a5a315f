package xtele

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ClientBuilder constructs Client instances (Builder pattern). Every client
// is an explicit instance; nothing here installs process-wide state.
type ClientBuilder struct {
	dialerName string
	dialerCfg  map[string]any
	dialerInst Dialer

	codecName string
	codecInst Codec

	opts        Options
	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock

	poolWorkers int
	poolBuffer  int
	usePool     bool
}

// NewClientBuilder returns a builder with the documented defaults.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		codecName: "json",
		opts:      DefaultOptions(),
	}
}

// WithDialer selects a registered transport adapter by name.
func (cb *ClientBuilder) WithDialer(name string, cfg map[string]any) *ClientBuilder {
	cb.dialerName = name
	cb.dialerCfg = cfg
	return cb
}

// WithDialerInstance accepts a ready Dialer (e.g., from an adapter's Use()).
func (cb *ClientBuilder) WithDialerInstance(d Dialer) *ClientBuilder {
	cb.dialerInst = d
	return cb
}

// WithCodec selects a codec by name (default "json").
func (cb *ClientBuilder) WithCodec(name string) *ClientBuilder {
	cb.codecName = name
	return cb
}

// WithCodecInstance accepts a ready Codec instance.
func (cb *ClientBuilder) WithCodecInstance(c Codec) *ClientBuilder {
	cb.codecInst = c
	return cb
}

// WithOptions replaces the whole option surface.
func (cb *ClientBuilder) WithOptions(o Options) *ClientBuilder {
	cb.opts = o
	return cb
}

// WithMiddleware adds processing middlewares around subscriber handlers.
func (cb *ClientBuilder) WithMiddleware(mw ...Middleware) *ClientBuilder {
	if len(mw) == 0 {
		return cb
	}
	cb.middlewares = append(cb.middlewares, mw...)
	return cb
}

// WithObserver attaches observers for lifecycle events.
func (cb *ClientBuilder) WithObserver(obs ...Observer) *ClientBuilder {
	for _, o := range obs {
		if o != nil {
			cb.observers = append(cb.observers, o)
		}
	}
	return cb
}

// WithLogger injects a custom xlog logger.
func (cb *ClientBuilder) WithLogger(l *xlog.Logger) *ClientBuilder {
	cb.logger = l
	return cb
}

// WithClock injects a custom xclock clock.
func (cb *ClientBuilder) WithClock(c xclock.Clock) *ClientBuilder {
	cb.clock = c
	return cb
}

// WithObserverPool enables asynchronous observer dispatch. Without it,
// observers are invoked synchronously on the emitting path.
func (cb *ClientBuilder) WithObserverPool(workers, bufferSize int) *ClientBuilder {
	cb.usePool = true
	cb.poolWorkers = workers
	cb.poolBuffer = bufferSize
	return cb
}

// Build wires the client together.
func (cb *ClientBuilder) Build() (*Client, error) {
	var dialer Dialer
	var err error
	switch {
	case cb.dialerInst != nil:
		dialer = cb.dialerInst
	case cb.dialerName != "":
		dialer, err = NewDialer(cb.dialerName, cb.dialerCfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoDialerConfigured
	}

	var codec Codec
	if cb.codecInst != nil {
		codec = cb.codecInst
	} else {
		codec, err = NewCodec(cb.codecName)
		if err != nil {
			return nil, err
		}
	}

	if err := cb.opts.Validate(); err != nil {
		return nil, err
	}

	clk := cb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := cb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		codec:   codec,
		clock:   clk,
		logger:  lg,
		opts:    cb.opts,
		metrics: &clientMetrics{},
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]chan pendingResult),
	}
	c.lifecycle.Store(int32(LifecycleCreated))

	hctx := injectCodec(ctx, codec)
	hctx = injectLogger(hctx, lg)
	hctx = injectClock(hctx, clk)
	c.handlerCtx = hctx

	c.router = newRouter(codec, clk, c.metrics, c.notifyEvent, cb.middlewares)
	c.router.sink = c.ingest
	c.store = NewStore(clk, cb.opts.Alpha, cb.opts.SettleEpsilon, cb.opts.HistoryCap, cb.opts.Retention)
	c.recon = newReconnector(ctx, dialer, reconnectPolicy{
		enabled:     cb.opts.Reconnect,
		maxAttempts: cb.opts.MaxAttempts,
		base:        cb.opts.BaseDelay,
		cap:         cb.opts.CapDelay,
		jitter:      cb.opts.Jitter,
	}, c.metrics, c.notifyEvent, c.handleFrame)

	if cb.usePool {
		c.observerPool = NewObserverPool(ctx, cb.poolWorkers, cb.poolBuffer)
	}

	// Attach logging observer first for dependable telemetry unless one was
	// supplied externally.
	hasLogging := false
	for _, o := range cb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLogging = true
			break
		}
	}
	if !hasLogging {
		c.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range cb.observers {
		c.AddObserver(o)
	}

	return c, nil
}

// New constructs a Client via Builder and returns a close func for
// convenience.
func New(init func(cb *ClientBuilder)) (*Client, func() error, error) {
	cb := NewClientBuilder()
	if init != nil {
		init(cb)
	}
	c, err := cb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return c.Close(context.Background()) }
	return c, closeFn, nil
}
