package metrics

import (
	"sync/atomic"
	"time"
)

const (
	BucketCount   = 8
	cacheLineSize = 64
)

type histogram struct {
	buckets [BucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Set is a fixed-size bank of counters and latency histograms indexed by
// small integer IDs. The zero value and a nil *Set are both disabled.
type Set struct {
	enabled    bool
	latency    bool
	counters   []paddedCounter
	histograms []histogram
}

func New(size int, enabled, latency bool) *Set {
	if size < 0 {
		size = 0
	}
	return &Set{
		enabled:    enabled,
		latency:    enabled && latency,
		counters:   make([]paddedCounter, size),
		histograms: make([]histogram, size),
	}
}

func (s *Set) Enabled() bool {
	return s != nil && s.enabled
}

func (s *Set) LatencyEnabled() bool {
	return s != nil && s.latency
}

func (s *Set) Inc(id int) {
	if !s.Enabled() || id < 0 || id >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[id].value, 1)
}

func (s *Set) Add(id int, n uint64) {
	if !s.Enabled() || id < 0 || id >= len(s.counters) || n == 0 {
		return
	}
	atomic.AddUint64(&s.counters[id].value, n)
}

func (s *Set) Observe(id int, d time.Duration) {
	if !s.LatencyEnabled() || id < 0 || id >= len(s.histograms) {
		return
	}
	atomic.AddUint64(&s.histograms[id].buckets[BucketIndex(d)], 1)
}

func (s *Set) Value(id int) uint64 {
	if s == nil || id < 0 || id >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[id].value)
}

// Buckets returns a non-cumulative copy of the histogram for id.
func (s *Set) Buckets(id int) []uint64 {
	out := make([]uint64, BucketCount)
	if s == nil || id < 0 || id >= len(s.histograms) {
		return out
	}
	for i := 0; i < BucketCount; i++ {
		out[i] = atomic.LoadUint64(&s.histograms[id].buckets[i])
	}
	return out
}

// BucketIndex maps d onto the bounds 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, +Inf.
func BucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 1000:
		return 0
	case us <= 5000:
		return 1
	case us <= 10000:
		return 2
	case us <= 25000:
		return 3
	case us <= 50000:
		return 4
	case us <= 100000:
		return 5
	case us <= 250000:
		return 6
	default:
		return 7
	}
}
