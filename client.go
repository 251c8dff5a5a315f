package xtele

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Client)(nil)

// Client is the Facade combining Reconnector, Router and Store behind the
// public connect/send/subscribe/disconnect surface. Clients are explicit,
// constructed instances (see ClientBuilder); there is no process-wide
// default.
type Client struct {
	codec  Codec
	clock  xclock.Clock
	logger *xlog.Logger
	opts   Options

	router *Router
	store  *Store
	recon  *Reconnector

	observersMu  sync.RWMutex
	observers    []Observer
	observerPool *ObserverPool

	metrics *clientMetrics

	ctx        context.Context
	cancel     context.CancelFunc
	handlerCtx context.Context

	lifecycle atomic.Int32
	loopOnce  sync.Once
	closeOnce sync.Once
	closed    atomic.Bool

	pendingMu sync.Mutex
	pending   map[string]chan pendingResult

	hbMu        sync.Mutex
	pongPending bool
}

// Connect starts a connect cycle toward addr. It returns immediately;
// progress is observable via State(), observers, and subscriptions. While
// a reconnect timer from a previous cycle is pending, Connect cancels it
// deterministically before dialing.
func (c *Client) Connect(addr string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.startLoops()
	c.recon.Connect(addr)
	return nil
}

// Disconnect tears down the connection and suppresses reconnection until
// the next Connect. The store retains its last snapshot so late readers
// still see last-known state; Reset clears it explicitly.
func (c *Client) Disconnect() {
	c.recon.Disconnect()
}

// Send encodes payload into an envelope of the given kind and transmits it.
// Fails with ErrNotConnected when no live connection exists; sends are
// never queued.
func (c *Client) Send(ctx context.Context, kind Kind, payload any) error {
	return c.send(ctx, kind, payload, "")
}

func (c *Client) send(ctx context.Context, kind Kind, payload any, correlationID string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if kind == "" {
		return ErrInvalidSubscription
	}

	env := &Envelope{
		Kind:          kind,
		Timestamp:     c.clock.Now().UnixMilli(),
		CorrelationID: correlationID,
	}
	if payload != nil {
		data, err := c.codec.Marshal(payload)
		if err != nil {
			return err
		}
		env.Payload = data
	}
	frame, err := c.codec.Marshal(env)
	if err != nil {
		return err
	}

	if err := c.recon.Send(ctx, frame); err != nil {
		return err
	}
	c.metrics.framesSent.Add(1)
	c.notifyEvent(Event{Type: FrameSent, Kind: kind})
	return nil
}

// Subscribe registers a handler for one envelope kind. The returned
// unsubscribe func is idempotent.
func (c *Client) Subscribe(kind Kind, h Handler) (func(), error) {
	return c.router.Subscribe(kind, h)
}

// SubscribeAll registers a wildcard handler invoked for every envelope.
func (c *Client) SubscribeAll(h Handler) (func(), error) {
	return c.router.SubscribeAll(h)
}

// GetSnapshot returns the store's smoothed name→value view.
func (c *Client) GetSnapshot() Snapshot { return c.store.GetSnapshot() }

// Series returns the full read view of one tracked metric.
func (c *Client) Series(name string) (MetricSeries, bool) { return c.store.Series(name) }

// OnSnapshotChange registers a watcher fired once per store tick.
func (c *Client) OnSnapshotChange(fn func(Snapshot)) func() {
	return c.store.OnSnapshotChange(fn)
}

// Reset clears the store. Separate from Disconnect on purpose.
func (c *Client) Reset() { c.store.Reset() }

// State returns the reconnector's connection state.
func (c *Client) State() ConnectionState { return c.recon.State() }

// Lifecycle returns the client instance lifecycle.
func (c *Client) Lifecycle() Lifecycle { return Lifecycle(c.lifecycle.Load()) }

// GetMetrics returns current client metrics.
func (c *Client) GetMetrics() Metrics {
	var dropped uint64
	if c.observerPool != nil {
		dropped = c.observerPool.Stats().Dropped
	}
	return c.metrics.snapshot(dropped)
}

// AddObserver registers an observer (thread-safe).
func (c *Client) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	c.observers = append(c.observers, obs)
	c.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (c *Client) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	for i, o := range c.observers {
		if o == obs {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			break
		}
	}
}

// Close disposes the client: disconnects, stops the timer loops, and drains
// the observer pool. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.recon.Disconnect()
		c.failPending(ErrClientClosed)
		c.cancel()
		if c.observerPool != nil {
			timeout := 5 * time.Second
			if d, ok := ctx.Deadline(); ok {
				if rem := time.Until(d); rem < timeout {
					timeout = rem
				}
			}
			if err := c.observerPool.Close(timeout); err != nil {
				c.logger.Warn().Err(err).Msg("xtele: observer pool shutdown timeout")
				closeErr = err
			}
		}
		c.lifecycle.Store(int32(LifecycleDisposed))
	})
	return closeErr
}

// startLoops starts the store tick, history sweep and heartbeat timers.
// They run until Close and keep the smoothed view settling across
// disconnects.
func (c *Client) startLoops() {
	c.loopOnce.Do(func() {
		go c.tickLoop()
		go c.sweepLoop()
		if c.opts.Heartbeat > 0 {
			go c.heartbeatLoop()
		}
	})
}

func (c *Client) tickLoop() {
	t := time.NewTicker(c.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.store.Tick()
			c.metrics.ticksApplied.Add(1)
		}
	}
}

func (c *Client) sweepLoop() {
	t := time.NewTicker(c.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.store.Sweep()
		}
	}
}

// heartbeatLoop sends a ping envelope on the configured interval while
// connected. A missed pong is counted and reported but never forces a
// reconnect; only transport-level close/error drives the retry loop.
func (c *Client) heartbeatLoop() {
	t := time.NewTicker(c.opts.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if c.recon.State() != StateConnected {
				c.hbMu.Lock()
				c.pongPending = false
				c.hbMu.Unlock()
				continue
			}

			c.hbMu.Lock()
			missed := c.pongPending
			c.pongPending = true
			c.hbMu.Unlock()

			if missed {
				c.metrics.pongsMissed.Add(1)
				c.notifyEvent(Event{Type: PongMissed})
			}
			if err := c.Send(c.ctx, KindPing, nil); err == nil {
				c.metrics.heartbeatsSent.Add(1)
				c.notifyEvent(Event{Type: HeartbeatSent, Kind: KindPing})
			}
		}
	}
}

// handleFrame is the reconnector's delivery callback; it runs on the
// connection's receive path, preserving per-connection arrival order.
func (c *Client) handleFrame(frame []byte) {
	c.router.HandleFrame(c.handlerCtx, frame)
}

// ingest is the internal wildcard sink wired ahead of user subscriptions:
// it feeds the store, resolves request waiters, and clears heartbeat state.
func (c *Client) ingest(_ context.Context, env *Envelope) error {
	if env.Kind == KindPong {
		c.hbMu.Lock()
		c.pongPending = false
		c.hbMu.Unlock()
	}
	c.store.Ingest(env)
	c.resolvePending(env)
	return nil
}

// notifyEvent applies lifecycle side effects, then fans the event out to
// observers (async when a pool is configured, synchronous otherwise).
func (c *Client) notifyEvent(e Event) {
	switch e.Type {
	case Connected:
		c.lifecycle.Store(int32(LifecycleConnected))
	case Disconnected:
		if Lifecycle(c.lifecycle.Load()) != LifecycleDisposed {
			c.lifecycle.Store(int32(LifecycleDisconnected))
		}
		c.failPending(ErrNotConnected)
	case ReconnectExhausted:
		if Lifecycle(c.lifecycle.Load()) != LifecycleDisposed {
			c.lifecycle.Store(int32(LifecycleDisconnected))
		}
		c.failPending(ErrReconnectExhausted)
	}

	c.observersMu.RLock()
	if len(c.observers) == 0 {
		c.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.observersMu.RUnlock()

	if c.observerPool != nil {
		c.observerPool.Notify(e, observers)
		return
	}
	for _, o := range observers {
		func() {
			defer func() { _ = recover() }()
			o.OnEvent(e)
		}()
	}
}
