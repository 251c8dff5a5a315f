// Package redispubsub carries the telemetry link over Redis Pub/Sub: the
// client publishes outbound envelopes to one channel and receives inbound
// frames on another. Useful when the producing process and its dashboards
// are bridged through Redis instead of a direct socket.
package redispubsub

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xtele"
)

const DialerName = "redis-pubsub"

func init() {
	if err := xtele.RegisterDialer(DialerName, func(cfg map[string]any) (xtele.Dialer, error) {
		return NewDialer(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xtele/redispubsub: failed to register dialer: %w", err))
	}
}

// Dialer implements xtele.Dialer over Redis Pub/Sub.
type Dialer struct {
	cfg Config
}

var _ xtele.Dialer = (*Dialer)(nil)

// NewDialer creates a Redis Pub/Sub dialer.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{cfg: cfg}, nil
}

// Dial connects to Redis at addr (or the configured Addr when addr is
// empty), verifies the link with PING, and subscribes to the inbound
// channel. Single shot: a dead subscription closes the Conn, it is never
// re-established here.
func (d *Dialer) Dial(ctx context.Context, addr string, events xtele.ConnEvents) (xtele.Conn, error) {
	cfg := d.cfg
	if addr != "" {
		cfg.Addr = addr
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: cfg.TLSServerName, MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	err := client.Ping(pctx).Err()
	cancel()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redispubsub: ping %s: %w", cfg.Addr, err)
	}

	ps := client.Subscribe(ctx, cfg.ReceiveChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return nil, fmt.Errorf("redispubsub: subscribe %s: %w", cfg.ReceiveChannel, err)
	}

	c := &conn{
		client:  client,
		ps:      ps,
		sendCh:  cfg.SendChannel,
		events:  events,
		closeCh: make(chan struct{}),
	}
	go c.receiveLoop()
	return c, nil
}

type conn struct {
	client  *redis.Client
	ps      *redis.PubSub
	sendCh  string
	events  xtele.ConnEvents
	closeCh chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *conn) Send(ctx context.Context, frame []byte) error {
	if c.closed.Load() {
		return xtele.ErrNotConnected
	}
	return c.client.Publish(ctx, c.sendCh, frame).Err()
}

func (c *conn) Close(_ context.Context) error {
	c.closed.Store(true)
	err := c.ps.Close()
	_ = c.client.Close()
	c.fireClose(nil)
	return err
}

// receiveLoop forwards pub/sub payloads in arrival order until the
// subscription channel closes.
func (c *conn) receiveLoop() {
	ch := c.ps.Channel()
	for msg := range ch {
		if c.events.OnFrame != nil {
			c.events.OnFrame([]byte(msg.Payload))
		}
	}
	if c.closed.Load() {
		c.fireClose(nil)
		return
	}
	c.closed.Store(true)
	_ = c.client.Close()
	c.fireClose(fmt.Errorf("redispubsub: subscription lost"))
}

func (c *conn) fireClose(err error) {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if c.events.OnClose != nil {
			c.events.OnClose(err)
		}
	})
}
