package redispubsub

import (
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cfg := Defaults()
	cfg.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty addr accepted")
	}

	cfg = Defaults()
	cfg.SendChannel = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty send channel accepted")
	}

	cfg = Defaults()
	cfg.ReceiveChannel = cfg.SendChannel
	if err := cfg.Validate(); err == nil {
		t.Fatal("identical channels accepted")
	}

	cfg = Defaults()
	cfg.PingTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero ping timeout accepted")
	}
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"addr":            "redis.internal:6380",
		"db":              2,
		"tls":             true,
		"tls_server_name": "redis.internal",
		"send_channel":    "lab.up",
		"receive_channel": "lab.down",
		"ping_timeout":    "1s",
	})
	if cfg.Addr != "redis.internal:6380" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.DB != 2 {
		t.Fatalf("db = %d", cfg.DB)
	}
	if !cfg.TLS || cfg.TLSServerName != "redis.internal" {
		t.Fatalf("tls = %v %q", cfg.TLS, cfg.TLSServerName)
	}
	if cfg.SendChannel != "lab.up" || cfg.ReceiveChannel != "lab.down" {
		t.Fatalf("channels = %q %q", cfg.SendChannel, cfg.ReceiveChannel)
	}
	if cfg.PingTimeout != time.Second {
		t.Fatalf("ping timeout = %v", cfg.PingTimeout)
	}

	// Unset keys keep defaults.
	if got := ConfigFromMap(nil); got != Defaults() {
		t.Fatalf("nil map = %+v", got)
	}

	if rt := ConfigFromMap(Defaults().toMap()); rt != Defaults() {
		t.Fatalf("round trip = %+v", rt)
	}
}
