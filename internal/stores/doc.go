// Package stores provides the challenge store and backup code vault that back
// the verification engine, each with an in-memory and a Redis implementation.
//
// # Design
//
// Every store serializes mutation per key, never globally. Memory backends
// use murmur3-selected lock stripes; Redis backends use WATCH/MULTI optimistic
// transactions with bounded retry (challenges) or atomic SREM (backup codes).
// Records are single-use: consumed or deleted on success, deleted when the
// attempt budget runs out, and treated as expired once [Expired] reports true.
// Peek, RecordAttempt and Sweep all use that one predicate.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for challenge and
// backup code records. It does NOT generate secrets, compare them, or decide
// what an outcome means to the caller; those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import goFactor or any sibling internal package.
//   - Log or expose secrets.
//   - Store backup codes in plaintext.
package stores
