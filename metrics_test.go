package goFactor

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricChallengeVerified)

	if got := m.Value(MetricChallengeVerified); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap.Counters)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricChallengeVerified)
	m.Inc(MetricChallengeVerified)
	m.Inc(MetricChallengeVerified)
	m.Add(MetricChallengeSwept, 7)

	if got := m.Value(MetricChallengeVerified); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := m.Value(MetricChallengeSwept); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestMetricsIgnoresUnknownID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(metricIDCount + 3)
	m.Observe(MetricChallengeIssued, time.Millisecond)

	if got := m.Value(metricIDCount + 3); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if _, ok := m.Snapshot().Histograms[MetricChallengeIssued]; ok {
		t.Fatal("counters must not grow histograms")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricChallengeFailed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricChallengeFailed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		500 * time.Microsecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricChallengeIssued)
	m.Inc(MetricChallengeFailed)
	m.Inc(MetricChallengeFailed)
	m.Observe(MetricVerifyLatency, 200*time.Microsecond)

	snap := m.Snapshot()

	if snap.Counters[MetricChallengeIssued] != 1 {
		t.Fatalf("expected MetricChallengeIssued=1 got %d", snap.Counters[MetricChallengeIssued])
	}
	if snap.Counters[MetricChallengeFailed] != 2 {
		t.Fatalf("expected MetricChallengeFailed=2 got %d", snap.Counters[MetricChallengeFailed])
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatal("latency histogram must not appear as a counter")
	}
	if len(snap.Histograms[MetricVerifyLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricVerifyLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricVerifyLatency][0])
	}
}

func TestVerifyObservesLatency(t *testing.T) {
	e := buildTestEngine(t, testConfig(), newFakeClock(), func(b *Builder) {
		b.WithLatencyHistograms(true)
	})

	issued := mustIssue(t, e, "alice", FactorOTPEmail)
	mustVerify(t, e, "alice", FactorOTPEmail, issued.Secret)
	mustVerify(t, e, "alice", FactorOTPEmail, issued.Secret)

	var total uint64
	for _, n := range e.MetricsSnapshot().Histograms[MetricVerifyLatency] {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected 2 latency observations, got %d", total)
	}
}

func TestEngineWithMetricsDisabledReportsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	e := buildTestEngine(t, cfg, newFakeClock())

	issued := mustIssue(t, e, "alice", FactorOTPEmail)
	if _, err := e.VerifyResponse(context.Background(), "alice", FactorOTPEmail, issued.Secret); err != nil {
		t.Fatalf("VerifyResponse failed: %v", err)
	}
	if snap := e.MetricsSnapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}
