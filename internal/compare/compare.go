package compare

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// Normalization names the fixed rule applied to both sides before comparing.
type Normalization uint8

const (
	// NormalizeNone compares bytes exactly.
	NormalizeNone Normalization = iota
	// NormalizeTrim strips leading and trailing Unicode whitespace.
	NormalizeTrim
)

func (n Normalization) String() string {
	switch n {
	case NormalizeNone:
		return "none"
	case NormalizeTrim:
		return "trim"
	default:
		return "unknown"
	}
}

// Apply returns s normalized under n.
func (n Normalization) Apply(s string) string {
	if n == NormalizeTrim {
		return strings.TrimSpace(s)
	}
	return s
}

// Equal reports whether candidate equals expected.
//
// Both inputs are reduced to SHA-256 digests first, so the constant-time
// compare always runs over 32 bytes: the running time depends on neither the
// position of the first differing byte nor the candidate length.
func Equal(candidate, expected string) bool {
	c := sha256.Sum256([]byte(candidate))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(c[:], e[:]) == 1
}

// EqualNormalized applies n to both sides and then calls Equal.
func EqualNormalized(n Normalization, candidate, expected string) bool {
	return Equal(n.Apply(candidate), n.Apply(expected))
}
