// Package goFactor provides a challenge-response verification engine for
// multi-factor authentication: one-time codes over email and SMS, possession
// proofs, hardware tokens, and single-use backup codes.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Challenges for different (principal, factor) pairs never
// contend on a shared lock.
//
// # Architecture boundaries
//
// goFactor is the public surface. It exposes [Engine], [Builder], [Config],
// and value types ([VerificationResult], [IssuedChallenge], MetricsSnapshot).
// Flow orchestration, challenge storage, the backup vault, limiters and audit
// dispatch live under internal/ and are never exported. Delivery transports
// and text extraction are collaborators supplied by the caller
// ([DeliveryChannel], [TextExtractor]).
//
// # What this package must NOT do
//
//   - Log, audit, trace or return in errors any secret or submitted response.
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Hash passwords or issue primary sessions.
//   - Import any sub-package that re-imports goFactor (no import cycles).
//
// # Security contract
//
// Secrets come only from crypto/rand. Responses are compared in constant time.
// A challenge is consumed at most once, and attempts are decremented
// atomically with the comparison outcome.
package goFactor
