package xtele

import (
	"context"
	"fmt"
	"sync"

	"github.com/trickstertwo/xclock"
)

// Router decodes raw frames into envelopes and fans them out to per-kind
// and wildcard subscriber lists. Handler invocation order across sibling
// subscriptions is not guaranteed; arrival order per kind is preserved
// because dispatch runs on the connection's receive path.
type Router struct {
	codec   Codec
	clock   xclock.Clock
	metrics *clientMetrics
	notify  func(Event)

	mu       sync.RWMutex
	nextID   uint64
	subs     map[Kind]map[uint64]Handler
	wildcard map[uint64]Handler

	middlewares []Middleware

	// sink is the client's internal tap (store ingest, request correlation).
	// It runs ahead of subscriptions and bypasses the middleware chain.
	sink Handler
}

func newRouter(codec Codec, clock xclock.Clock, metrics *clientMetrics, notify func(Event), mws []Middleware) *Router {
	if clock == nil {
		clock = xclock.Default()
	}
	return &Router{
		codec:       codec,
		clock:       clock,
		metrics:     metrics,
		notify:      notify,
		subs:        make(map[Kind]map[uint64]Handler),
		wildcard:    make(map[uint64]Handler),
		middlewares: mws,
	}
}

// Subscribe registers a handler for one envelope kind and returns an
// idempotent unsubscribe func.
func (r *Router) Subscribe(kind Kind, h Handler) (func(), error) {
	if kind == "" || h == nil {
		return nil, ErrInvalidSubscription
	}
	wrapped := Chain(h, r.middlewares...)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	set, ok := r.subs[kind]
	if !ok {
		set = make(map[uint64]Handler)
		r.subs[kind] = set
	}
	set[id] = wrapped
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if set, ok := r.subs[kind]; ok {
			delete(set, id)
		}
		r.mu.Unlock()
	}, nil
}

// SubscribeAll registers a wildcard handler invoked for every envelope
// regardless of kind, unknown kinds included.
func (r *Router) SubscribeAll(h Handler) (func(), error) {
	if h == nil {
		return nil, ErrInvalidSubscription
	}
	wrapped := Chain(h, r.middlewares...)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.wildcard[id] = wrapped
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.wildcard, id)
		r.mu.Unlock()
	}, nil
}

// HandleFrame parses one raw frame and dispatches it. A frame that cannot
// be decoded is counted and surfaced to error-subscribers only; typed and
// wildcard subscribers never see it.
func (r *Router) HandleFrame(ctx context.Context, frame []byte) {
	r.metrics.framesReceived.Add(1)

	env, err := decodeEnvelope(r.codec, frame)
	if err != nil {
		perr := &ParseError{Frame: frame, Err: err}
		r.metrics.parseErrors.Add(1)
		r.notify(Event{Type: FrameParseError, Err: perr})
		r.dispatchDiagnostic(ctx, perr)
		return
	}

	r.notify(Event{Type: FrameReceived, Kind: env.Kind})
	r.Dispatch(ctx, env)
}

// Dispatch invokes every handler subscribed to env.Kind, then every
// wildcard handler. A failing or panicking handler does not prevent the
// remaining handlers from running.
func (r *Router) Dispatch(ctx context.Context, env *Envelope) {
	if !env.Kind.Known() {
		r.metrics.unknownKinds.Add(1)
	}

	if r.sink != nil {
		r.invoke(ctx, r.sink, env)
	}

	r.mu.RLock()
	typed := make([]Handler, 0, len(r.subs[env.Kind]))
	for _, h := range r.subs[env.Kind] {
		typed = append(typed, h)
	}
	wild := make([]Handler, 0, len(r.wildcard))
	for _, h := range r.wildcard {
		wild = append(wild, h)
	}
	r.mu.RUnlock()

	for _, h := range typed {
		r.invoke(ctx, h, env)
	}
	for _, h := range wild {
		r.invoke(ctx, h, env)
	}
}

// invoke isolates a single handler call: panics are recovered and counted,
// errors are counted and reported, neither propagates.
func (r *Router) invoke(ctx context.Context, h Handler, env *Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.handlerPanics.Add(1)
			r.notify(Event{Type: HandlerPanic, Kind: env.Kind, Err: fmt.Errorf("panic recovered: %v", rec)})
		}
	}()
	if err := h(ctx, env); err != nil {
		r.metrics.handlerErrors.Add(1)
		r.notify(Event{Type: HandlerFailed, Kind: env.Kind, Err: err})
	}
}

// dispatchDiagnostic routes a parse failure to error-subscribers as a
// synthetic "error" envelope.
func (r *Router) dispatchDiagnostic(ctx context.Context, perr *ParseError) {
	r.mu.RLock()
	errSubs := make([]Handler, 0, len(r.subs[KindError]))
	for _, h := range r.subs[KindError] {
		errSubs = append(errSubs, h)
	}
	r.mu.RUnlock()

	if len(errSubs) == 0 {
		return
	}

	payload, merr := r.codec.Marshal(map[string]string{
		"error":  "parse_error",
		"detail": perr.Err.Error(),
	})
	if merr != nil {
		return
	}
	env := &Envelope{Kind: KindError, Payload: payload, Timestamp: r.clock.Now().UnixMilli()}
	for _, h := range errSubs {
		r.invoke(ctx, h, env)
	}
}
