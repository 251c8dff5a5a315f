package xtele

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/trickstertwo/xclock"
)

// Snapshot is a point-in-time copy of every tracked metric's smoothed value.
type Snapshot map[string]float64

// Sample is one raw observation in a metric's bounded history.
type Sample struct {
	At    int64 // producer timestamp, unix milliseconds
	Value float64
}

// MetricSeries is the read view of one tracked metric.
type MetricSeries struct {
	Current float64
	Target  float64
	History []Sample
}

type series struct {
	// current starts at zero so a freshly observed metric ramps in from
	// the render side instead of jumping.
	current float64
	target  float64
	history []Sample
}

// Store is the observable, time-smoothed view over arriving metrics.
//
// Writes happen on the receive path (Ingest) and the animation cadence
// (Tick); each completes atomically under the store mutex so readers never
// observe a half-updated metric. Series are created lazily on first
// observation and live for the process lifetime; only their history is
// trimmed.
type Store struct {
	clock      xclock.Clock
	alpha      float64
	settle     float64
	historyCap int
	retention  time.Duration

	mu       sync.Mutex
	series   map[string]*series
	version  uint64
	watchID  uint64
	watchers map[uint64]func(Snapshot)
}

// NewStore builds a store. alpha is the per-tick smoothing constant in
// (0,1]; settle is the absolute snap-to-target threshold; historyCap bounds
// each metric's history (FIFO eviction); retention bounds history age for
// the periodic sweep.
func NewStore(clock xclock.Clock, alpha, settle float64, historyCap int, retention time.Duration) *Store {
	if clock == nil {
		clock = xclock.Default()
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if settle <= 0 {
		settle = DefaultSettleEpsilon
	}
	if historyCap < 1 {
		historyCap = DefaultHistoryCap
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		clock:      clock,
		alpha:      alpha,
		settle:     settle,
		historyCap: historyCap,
		retention:  retention,
		series:     make(map[string]*series),
		watchers:   make(map[uint64]func(Snapshot)),
	}
}

// Ingest extracts every numeric field from the envelope payload and updates
// the matching metric targets. Nested objects flatten to dot-joined names
// ("metrics.scup"). Non-numeric fields are ignored.
func (s *Store) Ingest(env *Envelope) {
	if env == nil || len(env.Payload) == 0 {
		return
	}
	var body map[string]any
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		return
	}
	fields := make(map[string]float64)
	flattenNumeric("", body, fields, 0)
	if len(fields) == 0 {
		return
	}

	at := env.Timestamp
	if at == 0 {
		at = s.clock.Now().UnixMilli()
	}

	s.mu.Lock()
	for name, v := range fields {
		sr, ok := s.series[name]
		if !ok {
			sr = &series{}
			s.series[name] = sr
		}
		sr.target = v
		sr.history = appendBounded(sr.history, Sample{At: at, Value: v}, s.historyCap)
	}
	s.version++
	s.mu.Unlock()
}

// Tick advances every metric's smoothed value toward its target by the
// smoothing constant, snapping once within the settle threshold. Watchers
// registered via OnSnapshotChange fire once per call, after the update.
func (s *Store) Tick() {
	s.mu.Lock()
	for _, sr := range s.series {
		delta := sr.target - sr.current
		if delta == 0 {
			continue
		}
		if math.Abs(delta) <= s.settle {
			sr.current = sr.target
			continue
		}
		sr.current += s.alpha * delta
	}
	s.version++

	var snap Snapshot
	var fns []func(Snapshot)
	if len(s.watchers) > 0 {
		snap = s.snapshotLocked()
		fns = make([]func(Snapshot), 0, len(s.watchers))
		for _, fn := range s.watchers {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() { _ = recover() }()
			fn(snap)
		}()
	}
}

// GetSnapshot returns name→current for every tracked metric. Pure read.
func (s *Store) GetSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Series returns a copy of one metric's full read view.
func (s *Store) Series(name string) (MetricSeries, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[name]
	if !ok {
		return MetricSeries{}, false
	}
	hist := make([]Sample, len(sr.history))
	copy(hist, sr.history)
	return MetricSeries{Current: sr.current, Target: sr.target, History: hist}, true
}

// OnSnapshotChange registers a watcher invoked once per Tick (not once per
// Ingest), decoupling the read-side render cadence from arrival cadence.
// The returned unregister func is idempotent.
func (s *Store) OnSnapshotChange(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.watchID++
	id := s.watchID
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Sweep trims history entries older than the retention window. Producer
// timestamps are not monotonic, so the whole slice is filtered rather than
// trimmed from the front. Series themselves are never removed.
func (s *Store) Sweep() {
	cutoff := s.clock.Now().Add(-s.retention).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sr := range s.series {
		kept := sr.history[:0]
		for _, smp := range sr.history {
			if smp.At >= cutoff {
				kept = append(kept, smp)
			}
		}
		sr.history = kept
	}
}

// Reset discards all series and history. Disconnect alone never clears the
// store; late readers still see the last-known snapshot until Reset.
func (s *Store) Reset() {
	s.mu.Lock()
	s.series = make(map[string]*series)
	s.version++
	s.mu.Unlock()
}

// Version increments on every mutation; useful for cheap change detection.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(s.series))
	for name, sr := range s.series {
		snap[name] = sr.current
	}
	return snap
}

const maxFlattenDepth = 3

func flattenNumeric(prefix string, body map[string]any, out map[string]float64, depth int) {
	if depth >= maxFlattenDepth {
		return
	}
	for k, v := range body {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch val := v.(type) {
		case float64:
			out[name] = val
		case map[string]any:
			flattenNumeric(name, val, out, depth+1)
		}
	}
}

// appendBounded appends keeping at most cap entries, evicting oldest first.
func appendBounded(h []Sample, s Sample, capN int) []Sample {
	if len(h) < capN {
		return append(h, s)
	}
	copy(h, h[1:])
	h[len(h)-1] = s
	return h
}
