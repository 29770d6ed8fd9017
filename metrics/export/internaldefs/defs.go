package internaldefs

import (
	goFactor "github.com/MrEthical07/goFactor"
)

type CounterDef struct {
	ID   goFactor.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goFactor.MetricID
	Name string
	Help string
}

// AuditDropped names the dispatcher backpressure counter, which is read from
// Engine.AuditDropped rather than the snapshot.
const (
	AuditDroppedName = "gofactor_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: goFactor.MetricChallengeIssued, Name: "gofactor_challenge_issued_total", Help: "Issued challenges."},
	{ID: goFactor.MetricChallengeDeliveryFailed, Name: "gofactor_challenge_delivery_failed_total", Help: "Challenges whose delivery channel returned an error."},
	{ID: goFactor.MetricChallengeVerified, Name: "gofactor_challenge_verified_total", Help: "Successful challenge verifications."},
	{ID: goFactor.MetricChallengeFailed, Name: "gofactor_challenge_failed_total", Help: "Mismatched responses with attempts remaining."},
	{ID: goFactor.MetricChallengeExhausted, Name: "gofactor_challenge_exhausted_total", Help: "Challenges invalidated by their attempt cap."},
	{ID: goFactor.MetricChallengeExpired, Name: "gofactor_challenge_expired_total", Help: "Verifications against an expired challenge."},
	{ID: goFactor.MetricChallengeNotFound, Name: "gofactor_challenge_not_found_total", Help: "Verifications with no live challenge."},
	{ID: goFactor.MetricChallengeRevoked, Name: "gofactor_challenge_revoked_total", Help: "Challenges revoked by the caller."},
	{ID: goFactor.MetricChallengeSwept, Name: "gofactor_challenge_swept_total", Help: "Challenge records removed by sweeping."},
	{ID: goFactor.MetricExtractionFailed, Name: "gofactor_extraction_failed_total", Help: "Possession proofs the extractor could not read."},
	{ID: goFactor.MetricBackupCodesEnrolled, Name: "gofactor_backup_codes_enrolled_total", Help: "Backup code batch enrollments."},
	{ID: goFactor.MetricBackupCodeUsed, Name: "gofactor_backup_code_used_total", Help: "Redeemed backup codes."},
	{ID: goFactor.MetricBackupCodeFailed, Name: "gofactor_backup_code_failed_total", Help: "Failed backup code redemptions."},
	{ID: goFactor.MetricBackupCodeRateLimited, Name: "gofactor_backup_code_rate_limited_total", Help: "Backup code redemptions refused by the limiter."},
	{ID: goFactor.MetricReceiptIssued, Name: "gofactor_receipt_issued_total", Help: "Signed verification receipts."},
}

var HistogramDefs = []HistogramDef{
	{ID: goFactor.MetricVerifyLatency, Name: "gofactor_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the upper bounds in seconds, matching the engine's
// fixed buckets. The last bucket is +Inf.
var HistogramBounds = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
