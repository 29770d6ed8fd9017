// Package middleware gates HTTP handlers on goFactor verification receipts.
//
// A service that performs a sensitive action after MFA (for example a
// session issuer or a payout API) wraps its handler with [Guard] or
// [RequireFactor]. The guard reads the receipt from the
// X-Verification-Receipt header, or from a Bearer Authorization header,
// asks the engine to verify it, and puts the claims into the request
// context. All cryptographic checks are delegated to Engine.ParseReceipt.
package middleware
