// Package tcpjson provides the canonical duplex socket transport:
// newline-delimited JSON text frames over TCP.
package tcpjson

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xtele"
)

const DialerName = "tcp-json"

func init() {
	if err := xtele.RegisterDialer(DialerName, func(cfg map[string]any) (xtele.Dialer, error) {
		return NewDialer(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xtele/tcpjson: failed to register dialer: %w", err))
	}
}

// Config for the TCP line-frame transport.
type Config struct {
	// DialTimeout bounds connection establishment (default 5s).
	DialTimeout time.Duration
	// WriteTimeout bounds a single frame write (default 5s).
	WriteTimeout time.Duration
	// KeepAlive is the TCP keep-alive period (default 30s).
	KeepAlive time.Duration
	// MaxFrameBytes caps a single inbound frame (default 1MiB). Larger
	// frames abort the connection.
	MaxFrameBytes int
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		DialTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		KeepAlive:     30 * time.Second,
		MaxFrameBytes: 1 << 20,
	}
}

// Validate checks Config for usable values.
func (c Config) Validate() error {
	if c.DialTimeout <= 0 {
		return fmt.Errorf("tcpjson: dial_timeout must be > 0, got %v", c.DialTimeout)
	}
	if c.MaxFrameBytes < 1024 {
		return fmt.Errorf("tcpjson: max_frame_bytes must be >= 1024, got %d", c.MaxFrameBytes)
	}
	return nil
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	d := Defaults()
	getDur := func(k string, def time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return def
	}
	getInt := func(k string, def int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return def
	}
	return Config{
		DialTimeout:   getDur("dial_timeout", d.DialTimeout),
		WriteTimeout:  getDur("write_timeout", d.WriteTimeout),
		KeepAlive:     getDur("keep_alive", d.KeepAlive),
		MaxFrameBytes: getInt("max_frame_bytes", d.MaxFrameBytes),
	}
}

// toMap converts Config to the generic map expected by the dialer factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"dial_timeout":    c.DialTimeout,
		"write_timeout":   c.WriteTimeout,
		"keep_alive":      c.KeepAlive,
		"max_frame_bytes": c.MaxFrameBytes,
	}
}

// Dialer implements xtele.Dialer over TCP with newline-delimited frames.
type Dialer struct {
	cfg Config
}

var _ xtele.Dialer = (*Dialer)(nil)

// NewDialer creates a TCP dialer.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{cfg: cfg}, nil
}

// Dial establishes one TCP connection and starts its read loop. Single
// shot: no retry lives here.
func (d *Dialer) Dial(ctx context.Context, addr string, events xtele.ConnEvents) (xtele.Conn, error) {
	nd := net.Dialer{Timeout: d.cfg.DialTimeout, KeepAlive: d.cfg.KeepAlive}
	nc, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &conn{nc: nc, cfg: d.cfg, events: events}
	go c.readLoop()
	return c, nil
}

type conn struct {
	nc     net.Conn
	cfg    Config
	events xtele.ConnEvents

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *conn) Send(ctx context.Context, frame []byte) error {
	if c.closed.Load() {
		return xtele.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}

	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.nc.Write(buf)
	return err
}

func (c *conn) Close(_ context.Context) error {
	c.closed.Store(true)
	return c.nc.Close()
}

// readLoop delivers frames in transport order until the connection dies,
// then fires OnClose exactly once.
func (c *conn) readLoop() {
	sc := bufio.NewScanner(c.nc)
	sc.Buffer(make([]byte, 64*1024), c.cfg.MaxFrameBytes)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		if c.events.OnFrame != nil {
			c.events.OnFrame(frame)
		}
	}

	err := sc.Err()
	if c.closed.Load() {
		err = nil // explicit close, not a transport failure
	}
	c.closed.Store(true)
	_ = c.nc.Close()

	c.closeOnce.Do(func() {
		if c.events.OnClose != nil {
			c.events.OnClose(err)
		}
	})
}
