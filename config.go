package xtele

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Defaults for the client option surface. Each option has an isolated
// effect; none couples to another beyond what its doc states.
const (
	DefaultMaxAttempts   = 10
	DefaultBaseDelay     = 500 * time.Millisecond
	DefaultCapDelay      = 30 * time.Second
	DefaultTickInterval  = 16 * time.Millisecond // ~60Hz animation cadence
	DefaultAlpha         = 0.15
	DefaultSettleEpsilon = 0.05
	DefaultHistoryCap    = 100
	DefaultRetention     = 5 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultAddr          = "127.0.0.1:8765"
)

// Options configures a Client.
type Options struct {
	// Reconnect enables automatic retry after dial failure or link loss
	// (default true). When false the client goes Disconnected and stays
	// there until the next Connect.
	Reconnect bool
	// MaxAttempts caps consecutive reconnect attempts before the terminal
	// Failed state (default 10). Never infinite.
	MaxAttempts int
	// BaseDelay is the first backoff delay (default 500ms); attempt n waits
	// min(BaseDelay * 2^(n-1), CapDelay).
	BaseDelay time.Duration
	// CapDelay bounds the backoff (default 30s).
	CapDelay time.Duration
	// Jitter adds up to [0, Jitter) random delay per retry (default 0).
	Jitter time.Duration
	// Heartbeat, when > 0, sends a ping envelope on that interval while
	// connected (default 0 = off). A missed pong is counted, never treated
	// as disconnection.
	Heartbeat time.Duration
	// TickInterval is the store's interpolation cadence (default 16ms),
	// decoupled from arrival rate.
	TickInterval time.Duration
	// Alpha is the per-tick smoothing constant in (0,1] (default 0.15).
	Alpha float64
	// SettleEpsilon is the absolute snap-to-target threshold (default 0.05).
	SettleEpsilon float64
	// HistoryCap bounds per-metric history, FIFO eviction (default 100).
	HistoryCap int
	// Retention bounds history age for the periodic sweep (default 5m).
	Retention time.Duration
	// SweepInterval is the history sweep cadence (default 1m).
	SweepInterval time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Reconnect:     true,
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		CapDelay:      DefaultCapDelay,
		Heartbeat:     0,
		TickInterval:  DefaultTickInterval,
		Alpha:         DefaultAlpha,
		SettleEpsilon: DefaultSettleEpsilon,
		HistoryCap:    DefaultHistoryCap,
		Retention:     DefaultRetention,
		SweepInterval: DefaultSweepInterval,
	}
}

// Validate checks the option surface for usable values.
func (o Options) Validate() error {
	if o.MaxAttempts < 1 {
		return fmt.Errorf("xtele: max attempts must be >= 1, got %d", o.MaxAttempts)
	}
	if o.BaseDelay <= 0 {
		return fmt.Errorf("xtele: base delay must be > 0, got %v", o.BaseDelay)
	}
	if o.CapDelay < o.BaseDelay {
		return fmt.Errorf("xtele: cap delay %v must be >= base delay %v", o.CapDelay, o.BaseDelay)
	}
	if o.TickInterval <= 0 {
		return fmt.Errorf("xtele: tick interval must be > 0, got %v", o.TickInterval)
	}
	if o.Alpha <= 0 || o.Alpha > 1 {
		return fmt.Errorf("xtele: alpha must be in (0,1], got %v", o.Alpha)
	}
	if o.SettleEpsilon <= 0 {
		return fmt.Errorf("xtele: settle epsilon must be > 0, got %v", o.SettleEpsilon)
	}
	if o.HistoryCap < 1 {
		return fmt.Errorf("xtele: history cap must be >= 1, got %d", o.HistoryCap)
	}
	if o.Retention <= 0 {
		return fmt.Errorf("xtele: retention must be > 0, got %v", o.Retention)
	}
	if o.SweepInterval <= 0 {
		return fmt.Errorf("xtele: sweep interval must be > 0, got %v", o.SweepInterval)
	}
	return nil
}

// envOptions is the XTELE_* environment surface. Defaults mirror
// DefaultOptions.
type envOptions struct {
	Addr          string        `env:"XTELE_ADDR,default=127.0.0.1:8765"`
	Reconnect     bool          `env:"XTELE_RECONNECT,default=true"`
	MaxAttempts   int           `env:"XTELE_MAX_ATTEMPTS,default=10"`
	BaseDelay     time.Duration `env:"XTELE_BASE_DELAY,default=500ms"`
	CapDelay      time.Duration `env:"XTELE_CAP_DELAY,default=30s"`
	Jitter        time.Duration `env:"XTELE_JITTER,default=0s"`
	Heartbeat     time.Duration `env:"XTELE_HEARTBEAT,default=0s"`
	TickInterval  time.Duration `env:"XTELE_TICK_INTERVAL,default=16ms"`
	Alpha         float64       `env:"XTELE_ALPHA,default=0.15"`
	SettleEpsilon float64       `env:"XTELE_SETTLE_EPSILON,default=0.05"`
	HistoryCap    int           `env:"XTELE_HISTORY_CAP,default=100"`
	Retention     time.Duration `env:"XTELE_RETENTION,default=5m"`
	SweepInterval time.Duration `env:"XTELE_SWEEP_INTERVAL,default=1m"`
}

// OptionsFromEnv loads the backend address and client options from XTELE_*
// environment variables, falling back to the documented defaults.
func OptionsFromEnv() (addr string, opts Options, err error) {
	var e envOptions
	if err := envdecode.Decode(&e); err != nil {
		return "", Options{}, fmt.Errorf("xtele: decode env: %w", err)
	}
	opts = Options{
		Reconnect:     e.Reconnect,
		MaxAttempts:   e.MaxAttempts,
		BaseDelay:     e.BaseDelay,
		CapDelay:      e.CapDelay,
		Jitter:        e.Jitter,
		Heartbeat:     e.Heartbeat,
		TickInterval:  e.TickInterval,
		Alpha:         e.Alpha,
		SettleEpsilon: e.SettleEpsilon,
		HistoryCap:    e.HistoryCap,
		Retention:     e.Retention,
		SweepInterval: e.SweepInterval,
	}
	if err := opts.Validate(); err != nil {
		return "", Options{}, err
	}
	return e.Addr, opts, nil
}
