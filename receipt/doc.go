// Package receipt signs and verifies short-lived verification receipts: JWTs
// attesting that a principal satisfied one factor. A receipt is evidence for
// a downstream session issuer, not a session token itself.
package receipt
