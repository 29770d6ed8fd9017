// Package internal contains helpers private to goFactor: the CSPRNG-backed
// secret generator and its sub-packages.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - compare: constant-time response comparison
//   - flows: flow orchestrators for every Engine operation
//   - limiters: backup code redemption limiter (memory and Redis)
//   - metrics: lock-free counters and latency histograms
//   - stores: challenge store and backup vault backends
//
// Nothing here appears in the public goFactor API.
package internal
