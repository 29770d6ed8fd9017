// Package compare implements the secret comparison policy used by every
// verification path.
//
// # Design
//
// Secrets are compared as SHA-256 digests with [crypto/subtle.ConstantTimeCompare].
// Normalization is a closed set of named rules ([NormalizeNone], [NormalizeTrim])
// chosen per factor kind by the engine; there is no ad hoc per-call cleanup.
//
// # What this package must NOT do
//
//   - Return any hint about where two inputs differ.
//   - Log or retain its inputs.
package compare
