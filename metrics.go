package goFactor

import (
	"time"

	internalmetrics "github.com/MrEthical07/goFactor/internal/metrics"
)

// MetricID identifies a counter or histogram in the in-process metrics set.
type MetricID uint16

const (
	// MetricChallengeIssued counts stored challenges.
	MetricChallengeIssued MetricID = iota
	// MetricChallengeDeliveryFailed counts BeginChallenge delivery failures.
	MetricChallengeDeliveryFailed
	// MetricChallengeVerified counts successful challenge verifications.
	MetricChallengeVerified
	// MetricChallengeFailed counts mismatches that left attempts remaining.
	MetricChallengeFailed
	// MetricChallengeExhausted counts challenges invalidated by their attempt cap.
	MetricChallengeExhausted
	// MetricChallengeExpired counts verifications against an expired challenge.
	MetricChallengeExpired
	// MetricChallengeNotFound counts verifications with no live challenge.
	MetricChallengeNotFound
	// MetricChallengeRevoked counts caller revocations.
	MetricChallengeRevoked
	// MetricChallengeSwept counts records removed by Sweep.
	MetricChallengeSwept
	// MetricExtractionFailed counts possession proofs the extractor rejected.
	MetricExtractionFailed
	// MetricBackupCodesEnrolled counts backup code batch enrollments.
	MetricBackupCodesEnrolled
	// MetricBackupCodeUsed counts redeemed backup codes.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed counts failed backup code redemptions.
	MetricBackupCodeFailed
	// MetricBackupCodeRateLimited counts redemptions refused by the limiter.
	MetricBackupCodeRateLimited
	// MetricReceiptIssued counts signed verification receipts.
	MetricReceiptIssued
	// MetricVerifyLatency is the verify latency histogram.
	MetricVerifyLatency
	metricIDCount
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics struct {
	set *internalmetrics.Set
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram buckets
// are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		set: internalmetrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms),
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.set.LatencyEnabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.set.Inc(int(id))
}

func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.set.Add(int(id), n)
}

// Observe records d for histogram metrics; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricVerifyLatency {
		return
	}
	m.set.Observe(int(id), d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.set.Value(int(id))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricVerifyLatency {
			continue
		}
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.LatencyEnabled() {
		s.Histograms[MetricVerifyLatency] = m.set.Buckets(int(MetricVerifyLatency))
	}
	return s
}
