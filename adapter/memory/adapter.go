// Package memory provides an in-process transport for development and
// testing. A Hub plays the backend: tests script dial failures, push frames
// toward the client, inspect frames the client sent, and force-close
// connections to exercise the reconnect path.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xtele"
)

const DialerName = "memory"

func init() {
	if err := xtele.RegisterDialer(DialerName, func(cfg map[string]any) (xtele.Dialer, error) {
		return NewHub().Dialer(), nil
	}); err != nil {
		panic(fmt.Errorf("xtele/memory: failed to register dialer: %w", err))
	}
}

// ErrDialRefused is returned while the hub is scripted to fail dials.
var ErrDialRefused = errors.New("xtele/memory: dial refused")

// Hub is the scriptable in-process backend.
type Hub struct {
	mu       sync.Mutex
	conns    map[uint64]*ServerConn
	nextID   uint64
	failNext int
	onSend   func(frame []byte, reply func(frame []byte))
	sent     [][]byte

	dials atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uint64]*ServerConn)}
}

// Dialer returns the client-side dialer bound to this hub.
func (h *Hub) Dialer() xtele.Dialer {
	return xtele.DialerFunc(func(ctx context.Context, addr string, events xtele.ConnEvents) (xtele.Conn, error) {
		h.dials.Add(1)

		h.mu.Lock()
		if h.failNext > 0 {
			h.failNext--
			h.mu.Unlock()
			return nil, ErrDialRefused
		}
		h.nextID++
		sc := &ServerConn{hub: h, id: h.nextID, events: events}
		h.conns[sc.id] = sc
		h.mu.Unlock()

		return &clientConn{sc: sc}, nil
	})
}

// FailNextDials scripts the next n dial attempts to fail.
func (h *Hub) FailNextDials(n int) {
	h.mu.Lock()
	h.failNext = n
	h.mu.Unlock()
}

// DialCount reports how many dial attempts the hub has seen.
func (h *Hub) DialCount() uint64 { return h.dials.Load() }

// OnSend installs a server-side tap over frames the client sends. reply
// pushes a frame back over the same connection.
func (h *Hub) OnSend(fn func(frame []byte, reply func(frame []byte))) {
	h.mu.Lock()
	h.onSend = fn
	h.mu.Unlock()
}

// Sent returns a copy of every frame the client has sent, in order.
func (h *Hub) Sent() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.sent))
	copy(out, h.sent)
	return out
}

// Push delivers a raw frame to every live connection.
func (h *Hub) Push(frame []byte) {
	for _, sc := range h.live() {
		sc.Push(frame)
	}
}

// PushEnvelope marshals env and delivers it to every live connection.
func (h *Hub) PushEnvelope(env *xtele.Envelope) error {
	frame, err := xtele.JSONCodec{}.Marshal(env)
	if err != nil {
		return err
	}
	h.Push(frame)
	return nil
}

// Conns returns handles on the currently live connections, oldest first.
func (h *Hub) Conns() []*ServerConn {
	return h.live()
}

// CloseAll force-closes every live connection with err.
func (h *Hub) CloseAll(err error) {
	for _, sc := range h.live() {
		sc.ForceClose(err)
	}
}

func (h *Hub) live() []*ServerConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*ServerConn, 0, len(h.conns))
	for i := uint64(1); i <= h.nextID; i++ {
		if sc, ok := h.conns[i]; ok {
			out = append(out, sc)
		}
	}
	return out
}

// ServerConn is the hub's handle on one accepted connection. It stays
// usable after ForceClose so tests can exercise stale-connection delivery.
type ServerConn struct {
	hub       *Hub
	id        uint64
	events    xtele.ConnEvents
	closeOnce sync.Once
	closed    atomic.Bool
}

// Push delivers a frame to the client side of this connection. It fires
// even after ForceClose; a correct client must discard such stale frames.
func (sc *ServerConn) Push(frame []byte) {
	if sc.events.OnFrame != nil {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		sc.events.OnFrame(cp)
	}
}

// ForceClose simulates a remote close or transport error.
func (sc *ServerConn) ForceClose(err error) {
	sc.closeOnce.Do(func() {
		sc.closed.Store(true)
		sc.hub.mu.Lock()
		delete(sc.hub.conns, sc.id)
		sc.hub.mu.Unlock()
		if sc.events.OnClose != nil {
			sc.events.OnClose(err)
		}
	})
}

// Closed reports whether the connection has been torn down.
func (sc *ServerConn) Closed() bool { return sc.closed.Load() }

// clientConn is the xtele.Conn the dialer hands back.
type clientConn struct {
	sc *ServerConn
}

func (c *clientConn) Send(_ context.Context, frame []byte) error {
	if c.sc.closed.Load() {
		return xtele.ErrNotConnected
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)

	h := c.sc.hub
	h.mu.Lock()
	h.sent = append(h.sent, cp)
	fn := h.onSend
	h.mu.Unlock()

	if fn != nil {
		sc := c.sc
		// Replies flow back over this same connection.
		fn(cp, func(reply []byte) { sc.Push(reply) })
	}
	return nil
}

func (c *clientConn) Close(_ context.Context) error {
	c.sc.ForceClose(nil)
	return nil
}
