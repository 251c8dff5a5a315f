package xtele

import (
	"errors"
	"sync"
)

// DialerFactory constructs dialers from a config blob.
type DialerFactory func(cfg map[string]any) (Dialer, error)

var (
	dialerRegistryMu sync.RWMutex
	dialerRegistry   = map[string]DialerFactory{}
)

// RegisterDialer registers a transport adapter by name.
func RegisterDialer(name string, factory DialerFactory) error {
	if name == "" {
		return errors.New("xtele: dialer name must not be empty")
	}
	if factory == nil {
		return errors.New("xtele: dialer factory must not be nil")
	}
	dialerRegistryMu.Lock()
	dialerRegistry[name] = factory
	dialerRegistryMu.Unlock()
	return nil
}

// NewDialer constructs a dialer by name with config.
func NewDialer(name string, cfg map[string]any) (Dialer, error) {
	dialerRegistryMu.RLock()
	f, ok := dialerRegistry[name]
	dialerRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownDialer{name: name}
	}
	return f(cfg)
}
