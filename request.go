package xtele

import (
	"context"

	"github.com/google/uuid"
)

type pendingResult struct {
	env *Envelope
	err error
}

// Request sends an envelope tagged with a fresh correlation id and waits
// for the first envelope echoing that id, regardless of its kind. The wait
// is bounded by ctx; pending waiters fail when the link drops or the retry
// budget is exhausted.
func (c *Client) Request(ctx context.Context, kind Kind, payload any) (*Envelope, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	id := uuid.NewString()
	ch := make(chan pendingResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.send(ctx, kind, payload, id); err != nil {
		c.dropPending(id)
		return nil, err
	}

	select {
	case res := <-ch:
		return res.env, res.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		c.dropPending(id)
		return nil, ErrClientClosed
	}
}

// resolvePending hands a correlated envelope to its waiter, if any.
func (c *Client) resolvePending(env *Envelope) {
	if env.CorrelationID == "" {
		return
	}
	c.pendingMu.Lock()
	ch, ok := c.pending[env.CorrelationID]
	if ok {
		delete(c.pending, env.CorrelationID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- pendingResult{env: env}
	}
}

// failPending wakes every waiter with the given error.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	if len(c.pending) == 0 {
		c.pendingMu.Unlock()
		return
	}
	pending := c.pending
	c.pending = make(map[string]chan pendingResult)
	c.pendingMu.Unlock()

	for _, ch := range pending {
		ch <- pendingResult{err: err}
	}
}

func (c *Client) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}
