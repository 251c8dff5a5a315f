package xtele

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// reconnectPolicy is the retry surface of Options, isolated from the rest
// of the client configuration.
type reconnectPolicy struct {
	enabled     bool
	maxAttempts int
	base        time.Duration
	cap         time.Duration
	jitter      time.Duration
}

// Reconnector maintains the "logically connected" illusion across physical
// reconnects. It exclusively owns the currently-active Conn; a superseded
// connection is epoch-tagged and its late events are discarded.
type Reconnector struct {
	dialer  Dialer
	policy  reconnectPolicy
	metrics *clientMetrics
	notify  func(Event)
	onFrame func(frame []byte)
	baseCtx context.Context

	mu         sync.Mutex
	state      ConnectionState
	addr       string
	epoch      uint64
	conn       Conn
	attempt    int
	retryTimer *time.Timer
	active     bool
}

func newReconnector(baseCtx context.Context, dialer Dialer, policy reconnectPolicy, metrics *clientMetrics, notify func(Event), onFrame func(frame []byte)) *Reconnector {
	return &Reconnector{
		dialer:  dialer,
		policy:  policy,
		metrics: metrics,
		notify:  notify,
		onFrame: onFrame,
		baseCtx: baseCtx,
		state:   StateDisconnected,
	}
}

// Connect starts a connect cycle toward addr. It returns immediately; the
// outcome is reported through observer events and State(). A pending retry
// timer from a previous cycle is canceled first, and any live connection is
// superseded.
func (r *Reconnector) Connect(addr string) {
	r.mu.Lock()
	r.cancelRetryLocked()
	old := r.conn
	r.conn = nil
	r.epoch++
	r.addr = addr
	r.attempt = 0
	r.active = true
	r.state = StateConnecting
	r.mu.Unlock()

	if old != nil {
		_ = old.Close(context.Background())
	}
	go r.dial()
}

// Disconnect cancels any pending retry timer, closes the current
// connection, and suppresses automatic reconnection until the next Connect.
// Deterministic: no dial fires after Disconnect returns.
func (r *Reconnector) Disconnect() {
	r.mu.Lock()
	wasIdle := !r.active && r.conn == nil && r.state == StateDisconnected
	r.active = false
	r.cancelRetryLocked()
	conn := r.conn
	r.conn = nil
	r.epoch++ // supersede; late transport events are stale now
	addr := r.addr
	r.state = StateDisconnected
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close(context.Background())
	}
	if !wasIdle {
		r.notify(Event{Type: Disconnected, Addr: addr})
	}
}

// Send transmits one frame over the live connection. Never queues.
func (r *Reconnector) Send(ctx context.Context, frame []byte) error {
	r.mu.Lock()
	conn := r.conn
	connected := r.state == StateConnected
	r.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, frame)
}

// State returns the current connection state.
func (r *Reconnector) State() ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// dial runs one single-shot connect attempt against the transport.
func (r *Reconnector) dial() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	epoch := r.epoch
	addr := r.addr
	attempt := r.attempt
	r.mu.Unlock()

	r.notify(Event{Type: ConnectStart, Addr: addr, Attempt: attempt + 1})

	conn, err := r.dialer.Dial(r.baseCtx, addr, ConnEvents{
		OnFrame: func(frame []byte) { r.deliver(epoch, frame) },
		OnClose: func(cerr error) { r.closed(epoch, cerr) },
	})
	if err != nil {
		r.lost(epoch, &ConnectError{Addr: addr, Err: err})
		return
	}

	r.mu.Lock()
	if !r.active || epoch != r.epoch {
		// Superseded mid-dial by Disconnect or a newer Connect.
		r.mu.Unlock()
		_ = conn.Close(context.Background())
		return
	}
	old := r.conn
	r.conn = conn
	r.attempt = 0
	r.state = StateConnected
	r.mu.Unlock()

	if old != nil {
		_ = old.Close(context.Background())
	}
	r.notify(Event{Type: Connected, Addr: addr})
}

// deliver forwards a frame unless its connection has been superseded.
func (r *Reconnector) deliver(epoch uint64, frame []byte) {
	r.mu.Lock()
	live := r.active && epoch == r.epoch
	r.mu.Unlock()
	if live {
		r.onFrame(frame)
	}
}

// closed handles transport-level close for the tagged connection epoch.
func (r *Reconnector) closed(epoch uint64, cerr error) {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		return // stale connection; already superseded
	}
	r.conn = nil
	addr := r.addr
	r.mu.Unlock()

	r.notify(Event{Type: Disconnected, Addr: addr, Err: cerr})
	r.lost(epoch, cerr)
}

// lost is the shared failure path for dial errors and live-link loss: it
// either schedules a backoff retry or transitions to the terminal states.
// A failure tagged with a superseded epoch belongs to a dead cycle and must
// not touch the current one.
func (r *Reconnector) lost(epoch uint64, err error) {
	r.mu.Lock()
	if epoch != r.epoch {
		r.mu.Unlock()
		return
	}
	if !r.active {
		r.state = StateDisconnected
		r.mu.Unlock()
		return
	}
	if !r.policy.enabled {
		r.active = false
		r.state = StateDisconnected
		r.mu.Unlock()
		return
	}
	if r.attempt >= r.policy.maxAttempts {
		// Exhausted: terminal for this connect cycle, recoverable for the
		// client (a fresh Connect starts over).
		r.active = false
		r.state = StateFailed
		r.mu.Unlock()
		r.notify(Event{Type: ReconnectExhausted, Attempt: r.policy.maxAttempts, Err: ErrReconnectExhausted})
		return
	}
	r.attempt++
	attempt := r.attempt
	delay := r.backoff(attempt)
	r.state = StateReconnecting
	r.retryTimer = time.AfterFunc(delay, r.redial)
	r.mu.Unlock()

	r.metrics.reconnects.Add(1)
	r.notify(Event{Type: ReconnectScheduled, Attempt: attempt, Delay: delay, Err: err})
}

func (r *Reconnector) redial() {
	r.mu.Lock()
	r.retryTimer = nil
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.dial()
}

// backoff computes min(base << (attempt-1), cap) with optional jitter.
func (r *Reconnector) backoff(attempt int) time.Duration {
	d := r.policy.base
	for i := 1; i < attempt; i++ {
		d <<= 1
		if d >= r.policy.cap || d <= 0 {
			d = r.policy.cap
			break
		}
	}
	if d > r.policy.cap {
		d = r.policy.cap
	}
	if r.policy.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(r.policy.jitter)))
	}
	return d
}

// cancelRetryLocked stops a pending retry timer. Caller holds r.mu.
func (r *Reconnector) cancelRetryLocked() {
	if r.retryTimer != nil {
		r.retryTimer.Stop()
		r.retryTimer = nil
	}
}
