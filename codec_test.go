package xtele

import (
	"context"
	"encoding/json"
	"testing"
)

func TestKindKnown(t *testing.T) {
	for _, k := range []Kind{KindTick, KindMetrics, KindStatus, KindError, KindPing, KindPong, KindSubscribe, KindSubscribed} {
		if !k.Known() {
			t.Fatalf("%q not known", k)
		}
	}
	for _, k := range []Kind{"", "neural_storm", "TICK"} {
		if k.Known() {
			t.Fatalf("%q reported as known", k)
		}
	}
}

func TestEnvelopeWireFieldNames(t *testing.T) {
	env := &Envelope{
		Kind:          KindMetrics,
		Payload:       json.RawMessage(`{"scup":12.5}`),
		Timestamp:     1700000000000,
		CorrelationID: "abc-123",
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"type", "data", "timestamp", "correlation_id"} {
		if _, ok := wire[field]; !ok {
			t.Fatalf("wire field %q missing: %s", field, b)
		}
	}

	// correlation_id and data are omitted when empty.
	b, err = json.Marshal(&Envelope{Kind: KindPing, Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	wire = nil
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatal(err)
	}
	if _, ok := wire["correlation_id"]; ok {
		t.Fatalf("empty correlation id serialized: %s", b)
	}
	if _, ok := wire["data"]; ok {
		t.Fatalf("nil payload serialized: %s", b)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope(JSONCodec{}, []byte(`{"type":"power_surge","data":{"w":9000},"timestamp":42}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != "power_surge" {
		t.Fatalf("kind = %q", env.Kind)
	}
	if env.Kind.Known() {
		t.Fatal("unknown kind reported as known")
	}
	if env.Timestamp != 42 {
		t.Fatalf("timestamp = %d", env.Timestamp)
	}

	if _, err := decodeEnvelope(JSONCodec{}, []byte(`{"data":{"w":1}}`)); err == nil {
		t.Fatal("frame without type discriminator accepted")
	}
	if _, err := decodeEnvelope(JSONCodec{}, []byte(`not json`)); err == nil {
		t.Fatal("malformed frame accepted")
	}
}

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "json" {
		t.Fatalf("name = %q", c.Name())
	}
	if _, err := NewCodec("protobuf"); err == nil {
		t.Fatal("unregistered codec returned")
	}
	if err := RegisterCodec("", nil); err == nil {
		t.Fatal("empty registration accepted")
	}
}

func TestDecodeTyped(t *testing.T) {
	type metrics struct {
		Scup float64 `json:"scup"`
	}
	env := &Envelope{Kind: KindMetrics, Payload: json.RawMessage(`{"scup":33.3}`)}

	m, err := DecodeCodec[metrics](JSONCodec{}, env)
	if err != nil {
		t.Fatal(err)
	}
	if m.Scup != 33.3 {
		t.Fatalf("scup = %v", m.Scup)
	}

	// Context-based decode falls back to JSON when no codec was injected.
	m, err = Decode[metrics](context.Background(), env)
	if err != nil {
		t.Fatal(err)
	}
	if m.Scup != 33.3 {
		t.Fatalf("scup via ctx = %v", m.Scup)
	}

	ctx := injectCodec(context.Background(), JSONCodec{})
	if got, ok := CodecFromContext(ctx); !ok || got.Name() != "json" {
		t.Fatalf("codec from ctx = %v, %v", got, ok)
	}
}
