package xtele

import (
	"encoding/json"
	"testing"
	"time"
)

func ingestFields(t *testing.T, s *Store, kind Kind, ts int64, fields map[string]any) {
	t.Helper()
	payload, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	s.Ingest(&Envelope{Kind: kind, Payload: payload, Timestamp: ts})
}

func TestStoreConvergenceMonotonic(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, time.Minute)

	ingestFields(t, s, KindTick, 1, map[string]any{"scup": 80.0})

	prev := s.GetSnapshot()["scup"]
	if prev != 0 {
		t.Fatalf("fresh metric should start at 0, got %v", prev)
	}

	for i := 0; i < 50; i++ {
		s.Tick()
		cur := s.GetSnapshot()["scup"]
		if cur < prev {
			t.Fatalf("tick %d: current went backwards: %v -> %v", i, prev, cur)
		}
		if cur > 80 {
			t.Fatalf("tick %d: overshoot: %v > 80", i, cur)
		}
		prev = cur
	}

	final := s.GetSnapshot()["scup"]
	if diff := 80 - final; diff > 0.01 {
		t.Fatalf("after 50 ticks current=%v, want within 0.01 of 80", final)
	}
}

func TestStoreSettlesExactly(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, time.Minute)
	ingestFields(t, s, KindMetrics, 1, map[string]any{"heat": 42.0})

	for i := 0; i < 100; i++ {
		s.Tick()
	}
	if got := s.GetSnapshot()["heat"]; got != 42.0 {
		t.Fatalf("current should settle exactly on target, got %v", got)
	}

	// Further ticks with no ingest must not move it.
	v1 := s.Version()
	s.Tick()
	if got := s.GetSnapshot()["heat"]; got != 42.0 {
		t.Fatalf("settled value moved: %v", got)
	}
	if s.Version() == v1 {
		t.Fatal("tick should still bump the version")
	}
}

func TestStoreHistoryCapFIFO(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, time.Hour)

	for i := 1; i <= 120; i++ {
		ingestFields(t, s, KindTick, int64(i), map[string]any{"entropy": float64(i)})
	}

	series, ok := s.Series("entropy")
	if !ok {
		t.Fatal("series not found")
	}
	if len(series.History) != 100 {
		t.Fatalf("history length = %d, want 100", len(series.History))
	}
	if series.History[0].Value != 21 {
		t.Fatalf("oldest retained = %v, want 21", series.History[0].Value)
	}
	if series.History[99].Value != 120 {
		t.Fatalf("newest retained = %v, want 120", series.History[99].Value)
	}
	for i := 1; i < len(series.History); i++ {
		if series.History[i].At < series.History[i-1].At {
			t.Fatalf("history out of arrival order at %d", i)
		}
	}
}

func TestStoreSweepTrimsOldSamples(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, 5*time.Minute)

	old := time.Now().Add(-10 * time.Minute).UnixMilli()
	fresh := time.Now().UnixMilli()
	ingestFields(t, s, KindTick, old, map[string]any{"scup": 10.0})
	ingestFields(t, s, KindTick, fresh, map[string]any{"scup": 20.0})

	s.Sweep()

	series, ok := s.Series("scup")
	if !ok {
		t.Fatal("sweep must never remove the series itself")
	}
	if len(series.History) != 1 {
		t.Fatalf("history length after sweep = %d, want 1", len(series.History))
	}
	if series.History[0].At != fresh {
		t.Fatal("sweep evicted the wrong sample")
	}
	if _, ok := s.GetSnapshot()["scup"]; !ok {
		t.Fatal("snapshot lost a swept series")
	}
}

func TestStoreSweepOutOfOrderTimestamps(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, 5*time.Minute)

	fresh := time.Now().UnixMilli()
	old := time.Now().Add(-10 * time.Minute).UnixMilli()

	// Producer timestamps are not monotonic: an expired sample can sit
	// behind a newer one.
	ingestFields(t, s, KindTick, fresh, map[string]any{"scup": 1.0})
	ingestFields(t, s, KindTick, old, map[string]any{"scup": 2.0})
	ingestFields(t, s, KindTick, fresh+1, map[string]any{"scup": 3.0})

	s.Sweep()

	series, ok := s.Series("scup")
	if !ok {
		t.Fatal("series missing")
	}
	if len(series.History) != 2 {
		t.Fatalf("history length after sweep = %d, want 2", len(series.History))
	}
	for _, smp := range series.History {
		if smp.At == old {
			t.Fatal("expired sample survived behind a newer one")
		}
	}
}

func TestStoreSnapshotChangeFiresPerTick(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, time.Minute)

	var calls int
	unsub := s.OnSnapshotChange(func(Snapshot) { calls++ })

	ingestFields(t, s, KindTick, 1, map[string]any{"mood": 1.0})
	ingestFields(t, s, KindTick, 2, map[string]any{"mood": 2.0})
	if calls != 0 {
		t.Fatalf("watcher fired on ingest: %d", calls)
	}

	s.Tick()
	s.Tick()
	if calls != 2 {
		t.Fatalf("watcher calls = %d, want one per tick", calls)
	}

	unsub()
	unsub() // idempotent
	s.Tick()
	if calls != 2 {
		t.Fatal("watcher fired after unsubscribe")
	}
}

func TestStoreFlattensNestedNumerics(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, time.Minute)

	ingestFields(t, s, KindTick, 1, map[string]any{
		"entropy": 0.5,
		"mood":    "calm",
		"metrics": map[string]any{"scup": 80.0, "label": "x"},
	})

	snap := s.GetSnapshot()
	if _, ok := snap["entropy"]; !ok {
		t.Fatal("top-level numeric missing")
	}
	if _, ok := snap["metrics.scup"]; !ok {
		t.Fatal("nested numeric missing")
	}
	if _, ok := snap["mood"]; ok {
		t.Fatal("non-numeric field tracked")
	}
	if len(snap) != 2 {
		t.Fatalf("snapshot = %v, want exactly 2 metrics", snap)
	}
}

func TestStoreResetClears(t *testing.T) {
	s := NewStore(nil, 0.15, 0.05, 100, time.Minute)
	ingestFields(t, s, KindTick, 1, map[string]any{"scup": 80.0})
	s.Tick()

	s.Reset()
	if snap := s.GetSnapshot(); len(snap) != 0 {
		t.Fatalf("snapshot after reset = %v, want empty", snap)
	}
}
