// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssueChallenge, RunVerifyResponse, RunRedeemBackupCode,
// etc.) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. This keeps the Engine type thin and
// lets every flow be unit tested against in-memory stores.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the challenge store, backup vault,
// generator, limiter, audit dispatcher, and metrics. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goFactor (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency hooks.
package flows
