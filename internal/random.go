package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// CodeAlphabet omits glyphs that are easy to confuse when read back (0/O, 1/I/L).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	MinCodeLength = 4
	MaxCodeLength = 64

	// a collision storm in a batch this size means the source is not random
	maxBatchRedraws = 64
)

var (
	ErrEntropy     = errors.New("entropy source unavailable")
	ErrCodeLength  = errors.New("invalid code length")
	ErrBatchCount  = errors.New("invalid code batch count")
	bigTen         = big.NewInt(10)
	bigAlphabetLen = big.NewInt(int64(len(CodeAlphabet)))
)

// Generator draws one-time secrets from a cryptographically secure source.
// The zero value reads from crypto/rand.
type Generator struct {
	entropy io.Reader
}

func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

func (g *Generator) reader() io.Reader {
	if g == nil || g.entropy == nil {
		return rand.Reader
	}
	return g.entropy
}

// NumericCode returns length independent, uniformly distributed decimal digits.
func (g *Generator) NumericCode(length int) (string, error) {
	return g.draw(length, bigTen, func(n int64) byte { return byte('0' + n) })
}

// AlphanumericCode returns length characters drawn uniformly from CodeAlphabet.
func (g *Generator) AlphanumericCode(length int) (string, error) {
	return g.draw(length, bigAlphabetLen, func(n int64) byte { return CodeAlphabet[n] })
}

// BackupCodes returns count distinct alphanumeric codes. Collisions inside the
// batch are re-drawn.
func (g *Generator) BackupCodes(count, length int) ([]string, error) {
	if count <= 0 {
		return nil, ErrBatchCount
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	redraws := 0
	for len(codes) < count {
		code, err := g.AlphanumericCode(length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			redraws++
			if redraws > maxBatchRedraws {
				return nil, fmt.Errorf("%w: backup code batch kept colliding", ErrEntropy)
			}
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// ChallengeID returns a random UUIDv4 drawn from the generator's source.
func (g *Generator) ChallengeID() (string, error) {
	id, err := uuid.NewRandomFromReader(g.reader())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return id.String(), nil
}

func (g *Generator) draw(length int, max *big.Int, symbol func(int64) byte) (string, error) {
	if length < MinCodeLength || length > MaxCodeLength {
		return "", ErrCodeLength
	}

	src := g.reader()

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		// rand.Int rejection-samples, so there is no modulo bias.
		n, err := rand.Int(src, max)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrEntropy, err)
		}
		b.WriteByte(symbol(n.Int64()))
	}

	code := b.String()
	if len(code) != length {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}
