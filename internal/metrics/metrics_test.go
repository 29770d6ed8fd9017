package metrics

import (
	"testing"
	"time"
)

func TestBucketIndexBoundaries(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{time.Millisecond, 0},
		{time.Millisecond + time.Microsecond, 1},
		{5 * time.Millisecond, 1},
		{10 * time.Millisecond, 2},
		{25 * time.Millisecond, 3},
		{50 * time.Millisecond, 4},
		{100 * time.Millisecond, 5},
		{250 * time.Millisecond, 6},
		{251 * time.Millisecond, 7},
		{time.Hour, 7},
	}
	for _, tc := range tests {
		if got := BucketIndex(tc.d); got != tc.want {
			t.Fatalf("BucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestSetDisabledAndNil(t *testing.T) {
	var nilSet *Set
	nilSet.Inc(0)
	nilSet.Observe(0, time.Millisecond)
	if nilSet.Value(0) != 0 || nilSet.Enabled() || len(nilSet.Buckets(0)) != BucketCount {
		t.Fatal("nil set must be inert")
	}

	s := New(2, false, true)
	s.Inc(0)
	s.Observe(1, time.Millisecond)
	if s.Value(0) != 0 || s.LatencyEnabled() {
		t.Fatal("disabled set must not count")
	}
}

func TestSetCountsAndObserves(t *testing.T) {
	s := New(3, true, true)
	s.Inc(0)
	s.Add(0, 4)
	s.Add(1, 0)
	s.Inc(7)
	s.Observe(2, 3*time.Millisecond)
	s.Observe(2, time.Second)

	if s.Value(0) != 5 || s.Value(1) != 0 || s.Value(7) != 0 {
		t.Fatalf("unexpected counters %d %d", s.Value(0), s.Value(1))
	}
	b := s.Buckets(2)
	if b[1] != 1 || b[7] != 1 {
		t.Fatalf("unexpected buckets %v", b)
	}
}
