package redispubsub

import (
	"fmt"
	"time"
)

// Config for the Redis Pub/Sub transport.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Channels
	SendChannel    string
	ReceiveChannel string

	// PingTimeout bounds the connect-time health check (default 3s).
	PingTimeout time.Duration
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:           "127.0.0.1:6379",
		DB:             0,
		SendChannel:    "xtele.up",
		ReceiveChannel: "xtele.down",
		PingTimeout:    3 * time.Second,
	}
}

// Validate checks Config for usable values.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redispubsub: addr required")
	}
	if c.SendChannel == "" {
		return fmt.Errorf("redispubsub: send_channel required")
	}
	if c.ReceiveChannel == "" {
		return fmt.Errorf("redispubsub: receive_channel required")
	}
	if c.SendChannel == c.ReceiveChannel {
		return fmt.Errorf("redispubsub: send and receive channels must differ")
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("redispubsub: ping_timeout must be > 0, got %v", c.PingTimeout)
	}
	return nil
}

// toMap converts Config to the generic map expected by the dialer factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"send_channel":    c.SendChannel,
		"receive_channel": c.ReceiveChannel,
		"ping_timeout":    c.PingTimeout,
	}
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	d := Defaults()
	getString := func(k, def string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
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
	getBool := func(k string, def bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return def
	}
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

	return Config{
		Addr:           getString("addr", d.Addr),
		Username:       getString("username", ""),
		Password:       getString("password", ""),
		DB:             getInt("db", d.DB),
		TLS:            getBool("tls", false),
		TLSServerName:  getString("tls_server_name", ""),
		SendChannel:    getString("send_channel", d.SendChannel),
		ReceiveChannel: getString("receive_channel", d.ReceiveChannel),
		PingTimeout:    getDur("ping_timeout", d.PingTimeout),
	}
}
