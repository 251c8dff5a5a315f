package xtele

import (
	"context"
)

// API represents the complete xtele client surface for extensibility.
type API interface {
	Connect(addr string) error
	Disconnect()
	Send(ctx context.Context, kind Kind, payload any) error
	Request(ctx context.Context, kind Kind, payload any) (*Envelope, error)
	Subscribe(kind Kind, h Handler) (func(), error)
	SubscribeAll(h Handler) (func(), error)
	GetSnapshot() Snapshot
	Series(name string) (MetricSeries, bool)
	OnSnapshotChange(fn func(Snapshot)) func()
	Reset()
	State() ConnectionState
	Lifecycle() Lifecycle
	GetMetrics() Metrics
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	Close(ctx context.Context) error
}
