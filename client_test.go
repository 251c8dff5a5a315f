package xtele_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trickstertwo/xtele"
	"github.com/trickstertwo/xtele/adapter/memory"
)

func TestClientEndToEndConvergence(t *testing.T) {
	hub := memory.NewHub()
	rec := &recorder{}
	c := newMemoryClient(t, hub, fastOptions(), rec)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	if err := hub.PushEnvelope(&xtele.Envelope{
		Kind:      xtele.KindTick,
		Payload:   json.RawMessage(`{"scup":80,"gsr":0.42}`),
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	// The smoothed view ramps toward the target across ticks and settles.
	waitUntil(t, 3*time.Second, "scup convergence", func() bool {
		snap := c.GetSnapshot()
		return math.Abs(snap["scup"]-80) < 0.01
	})
	snap := c.GetSnapshot()
	if math.Abs(snap["gsr"]-0.42) > 0.05 {
		t.Fatalf("gsr = %v, want near 0.42", snap["gsr"])
	}

	series, ok := c.Series("scup")
	if !ok {
		t.Fatal("scup series missing")
	}
	if series.Target != 80 {
		t.Fatalf("target = %v, want 80", series.Target)
	}
	if len(series.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(series.History))
	}
}

func TestClientSendRequiresConnection(t *testing.T) {
	hub := memory.NewHub()
	c := newMemoryClient(t, hub, fastOptions(), nil)

	err := c.Send(context.Background(), xtele.KindStatus, map[string]string{"s": "idle"})
	if !errors.Is(err, xtele.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if len(hub.Sent()) != 0 {
		t.Fatalf("frame queued while disconnected")
	}
}

func TestClientSendEnvelopeShape(t *testing.T) {
	hub := memory.NewHub()
	c := newMemoryClient(t, hub, fastOptions(), nil)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	if err := c.Send(context.Background(), xtele.KindStatus, map[string]string{"phase": "run"}); err != nil {
		t.Fatal(err)
	}

	sent := hub.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(sent[0], &wire); err != nil {
		t.Fatalf("unmarshal sent frame: %v", err)
	}
	if string(wire["type"]) != `"status"` {
		t.Fatalf("type = %s", wire["type"])
	}
	if _, ok := wire["timestamp"]; !ok {
		t.Fatal("timestamp missing")
	}
	if _, ok := wire["correlation_id"]; ok {
		t.Fatal("plain send must not carry a correlation id")
	}
	if got := c.GetMetrics().FramesSent; got != 1 {
		t.Fatalf("framesSent = %d, want 1", got)
	}
}

func TestClientHeartbeatMissedPongNoReconnect(t *testing.T) {
	hub := memory.NewHub()
	rec := &recorder{}
	opts := fastOptions()
	opts.Heartbeat = 15 * time.Millisecond
	c := newMemoryClient(t, hub, opts, rec)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	// The hub never answers pings, so every beat after the first finds the
	// previous pong outstanding.
	waitUntil(t, 2*time.Second, "missed pongs", func() bool {
		return c.GetMetrics().PongsMissed >= 2
	})

	var pings int
	for _, frame := range hub.Sent() {
		var wire struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(frame, &wire) == nil && wire.Type == "ping" {
			pings++
		}
	}
	if pings < 2 {
		t.Fatalf("pings sent = %d, want >= 2", pings)
	}

	// A missed pong is a data point, never a disconnection.
	if got := c.State(); got != xtele.StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	if got := hub.DialCount(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
	if got := rec.count(xtele.PongMissed); got < 2 {
		t.Fatalf("PongMissed events = %d, want >= 2", got)
	}
}

func TestClientHeartbeatPongClearsPending(t *testing.T) {
	hub := memory.NewHub()
	hub.OnSend(func(frame []byte, reply func([]byte)) {
		var wire struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(frame, &wire) == nil && wire.Type == "ping" {
			reply([]byte(`{"type":"pong","timestamp":1}`))
		}
	})
	opts := fastOptions()
	opts.Heartbeat = 10 * time.Millisecond
	c := newMemoryClient(t, hub, opts, nil)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "heartbeats", func() bool {
		return c.GetMetrics().HeartbeatsSent >= 3
	})

	if got := c.GetMetrics().PongsMissed; got != 0 {
		t.Fatalf("pongsMissed = %d with a responsive backend", got)
	}
}

func TestClientRequestResponse(t *testing.T) {
	hub := memory.NewHub()
	hub.OnSend(func(frame []byte, reply func([]byte)) {
		var env xtele.Envelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Kind != xtele.KindStatus {
			return
		}
		out, _ := json.Marshal(&xtele.Envelope{
			Kind:          xtele.KindStatus,
			Payload:       json.RawMessage(`{"phase":"calibrating"}`),
			Timestamp:     time.Now().UnixMilli(),
			CorrelationID: env.CorrelationID,
		})
		reply(out)
	})
	c := newMemoryClient(t, hub, fastOptions(), nil)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := c.Request(ctx, xtele.KindStatus, map[string]string{"q": "phase"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if env.Kind != xtele.KindStatus {
		t.Fatalf("reply kind = %v", env.Kind)
	}
	if env.CorrelationID == "" {
		t.Fatal("reply lost its correlation id")
	}

	var body map[string]string
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		t.Fatal(err)
	}
	if body["phase"] != "calibrating" {
		t.Fatalf("body = %v", body)
	}
}

func TestClientRequestFailsOnLinkLoss(t *testing.T) {
	hub := memory.NewHub()
	opts := fastOptions()
	opts.Reconnect = false
	c := newMemoryClient(t, hub, opts, nil)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	// The backend swallows the request and drops the link.
	hub.OnSend(func([]byte, func([]byte)) {
		go hub.CloseAll(errors.New("link dropped"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Request(ctx, xtele.KindStatus, nil)
	if !errors.Is(err, xtele.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestClientDisconnectRetainsSnapshotResetClears(t *testing.T) {
	hub := memory.NewHub()
	c := newMemoryClient(t, hub, fastOptions(), nil)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	hub.Push([]byte(`{"type":"metrics_update","data":{"hr":72},"timestamp":1}`))
	waitUntil(t, time.Second, "ingest", func() bool {
		_, ok := c.Series("hr")
		return ok
	})

	c.Disconnect()
	if _, ok := c.Series("hr"); !ok {
		t.Fatal("disconnect cleared the store")
	}

	c.Reset()
	if _, ok := c.Series("hr"); ok {
		t.Fatal("reset left series behind")
	}
	if snap := c.GetSnapshot(); len(snap) != 0 {
		t.Fatalf("reset left snapshot: %v", snap)
	}
}

func TestClientParseErrorsReachErrorSubscribersOnly(t *testing.T) {
	hub := memory.NewHub()
	c := newMemoryClient(t, hub, fastOptions(), nil)

	var diag, wild atomic.Int32
	if _, err := c.Subscribe(xtele.KindError, func(context.Context, *xtele.Envelope) error {
		diag.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SubscribeAll(func(context.Context, *xtele.Envelope) error {
		wild.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	hub.Push([]byte(`{"broken`))
	waitUntil(t, time.Second, "diagnostic", func() bool {
		return diag.Load() == 1
	})

	if got := wild.Load(); got != 0 {
		t.Fatalf("wildcard saw malformed frame: %d", got)
	}
	if got := c.GetMetrics().ParseErrors; got != 1 {
		t.Fatalf("parseErrors = %d, want 1", got)
	}
}

func TestClientLifecycleAndClose(t *testing.T) {
	hub := memory.NewHub()
	c := newMemoryClient(t, hub, fastOptions(), nil)

	if got := c.Lifecycle(); got != xtele.LifecycleCreated {
		t.Fatalf("lifecycle = %v, want created", got)
	}

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.Lifecycle() == xtele.LifecycleConnected
	})

	c.Disconnect()
	waitUntil(t, time.Second, "lifecycle disconnect", func() bool {
		return c.Lifecycle() == xtele.LifecycleDisconnected
	})

	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.Lifecycle(); got != xtele.LifecycleDisposed {
		t.Fatalf("lifecycle = %v, want disposed", got)
	}

	if err := c.Send(context.Background(), xtele.KindStatus, nil); !errors.Is(err, xtele.ErrClientClosed) {
		t.Fatalf("send after close: %v", err)
	}
	if err := c.Connect("mem://test"); !errors.Is(err, xtele.ErrClientClosed) {
		t.Fatalf("connect after close: %v", err)
	}
	if _, err := c.Request(context.Background(), xtele.KindStatus, nil); !errors.Is(err, xtele.ErrClientClosed) {
		t.Fatalf("request after close: %v", err)
	}

	// Idempotent.
	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestClientCloseHonorsContextDeadline(t *testing.T) {
	hub := memory.NewHub()
	block := make(chan struct{})
	c, err := xtele.NewClientBuilder().
		WithDialerInstance(hub.Dialer()).
		WithOptions(fastOptions()).
		WithObserverPool(1, 16).
		WithObserver(xtele.ObserverFunc(func(e xtele.Event) {
			if e.Type == xtele.Connected {
				<-block
			}
		})).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer close(block)

	if err := c.Connect("mem://test"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect", func() bool {
		return c.State() == xtele.StateConnected
	})

	// The pool worker is wedged on the blocked observer; a 100ms deadline
	// must bound the drain instead of the default.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = c.Close(ctx)
	if !errors.Is(err, xtele.ErrObserverPoolShutdownTimeout) {
		t.Fatalf("err = %v, want pool shutdown timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("close took %v with a 100ms deadline", elapsed)
	}
}

func TestClientBuilderValidation(t *testing.T) {
	if _, err := xtele.NewClientBuilder().Build(); !errors.Is(err, xtele.ErrNoDialerConfigured) {
		t.Fatalf("err = %v, want ErrNoDialerConfigured", err)
	}

	bad := xtele.DefaultOptions()
	bad.Alpha = 1.5
	_, err := xtele.NewClientBuilder().
		WithDialerInstance(memory.NewHub().Dialer()).
		WithOptions(bad).
		Build()
	if err == nil {
		t.Fatal("invalid alpha accepted")
	}
}

func TestClientTwoInstancesIndependent(t *testing.T) {
	hubA, hubB := memory.NewHub(), memory.NewHub()
	a := newMemoryClient(t, hubA, fastOptions(), nil)
	b := newMemoryClient(t, hubB, fastOptions(), nil)

	if err := a.Connect("mem://a"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, "connect a", func() bool {
		return a.State() == xtele.StateConnected
	})

	hubA.Push([]byte(`{"type":"tick","data":{"scup":10},"timestamp":1}`))
	waitUntil(t, time.Second, "ingest a", func() bool {
		_, ok := a.Series("scup")
		return ok
	})

	if b.State() != xtele.StateDisconnected {
		t.Fatalf("b state = %v", b.State())
	}
	if _, ok := b.Series("scup"); ok {
		t.Fatal("state leaked across client instances")
	}
}
