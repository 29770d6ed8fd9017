package internal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("broken")
}

func TestNumericCodeShape(t *testing.T) {
	g := NewGenerator(nil)
	for _, length := range []int{MinCodeLength, 6, 8, MaxCodeLength} {
		code, err := g.NumericCode(length)
		if err != nil {
			t.Fatalf("NumericCode(%d) failed: %v", length, err)
		}
		if len(code) != length {
			t.Fatalf("expected %d digits, got %q", length, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("unexpected symbol %q in %q", r, code)
			}
		}
	}
}

func TestAlphanumericCodeUsesAlphabet(t *testing.T) {
	var zero Generator
	code, err := zero.AlphanumericCode(32)
	if err != nil {
		t.Fatalf("AlphanumericCode failed: %v", err)
	}
	for _, r := range code {
		if !strings.ContainsRune(CodeAlphabet, r) {
			t.Fatalf("unexpected symbol %q in %q", r, code)
		}
	}
}

func TestCodeLengthBounds(t *testing.T) {
	g := NewGenerator(nil)
	for _, length := range []int{-1, 0, MinCodeLength - 1, MaxCodeLength + 1} {
		if _, err := g.NumericCode(length); !errors.Is(err, ErrCodeLength) {
			t.Fatalf("NumericCode(%d): expected ErrCodeLength, got %v", length, err)
		}
	}
}

// Every decimal digit should turn up in every position over enough draws.
func TestNumericCodeCoversAllDigitsPerPosition(t *testing.T) {
	g := NewGenerator(nil)
	const length = 6
	var seen [length][10]bool
	for i := 0; i < 2000; i++ {
		code, err := g.NumericCode(length)
		if err != nil {
			t.Fatalf("NumericCode failed: %v", err)
		}
		for pos := 0; pos < length; pos++ {
			seen[pos][code[pos]-'0'] = true
		}
	}
	for pos := range seen {
		for d, ok := range seen[pos] {
			if !ok {
				t.Fatalf("digit %d never drawn at position %d", d, pos)
			}
		}
	}
}

func TestNumericCodeRoughlyUniform(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}
	g := NewGenerator(nil)
	const draws = 20000
	var counts [10]int
	for i := 0; i < draws; i++ {
		code, err := g.NumericCode(MinCodeLength)
		if err != nil {
			t.Fatalf("NumericCode failed: %v", err)
		}
		for j := 0; j < len(code); j++ {
			counts[code[j]-'0']++
		}
	}
	expected := float64(draws*MinCodeLength) / 10
	var chi2 float64
	for _, c := range counts {
		diff := float64(c) - expected
		chi2 += diff * diff / expected
	}
	// 9 degrees of freedom; 27.88 is the p=0.001 critical value
	if chi2 > 27.88 {
		t.Fatalf("digit distribution looks biased: chi2=%.2f counts=%v", chi2, counts)
	}
}

func TestEntropyFailureSurfaces(t *testing.T) {
	g := NewGenerator(brokenReader{})
	if _, err := g.NumericCode(6); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
	if _, err := g.AlphanumericCode(6); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
	if _, err := g.ChallengeID(); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
	if _, err := g.BackupCodes(3, 10); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
}

func TestBackupCodesDistinct(t *testing.T) {
	g := NewGenerator(nil)
	codes, err := g.BackupCodes(32, 10)
	if err != nil {
		t.Fatalf("BackupCodes failed: %v", err)
	}
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = struct{}{}
	}
	if _, err := g.BackupCodes(0, 10); !errors.Is(err, ErrBatchCount) {
		t.Fatalf("expected ErrBatchCount, got %v", err)
	}
}

func TestBackupCodesCollisionStormFails(t *testing.T) {
	// a zero stream draws the same code forever
	g := NewGenerator(bytes.NewReader(make([]byte, 1<<20)))
	if _, err := g.BackupCodes(2, 8); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy on repeated collisions, got %v", err)
	}
}

func TestChallengeIDUnique(t *testing.T) {
	g := NewGenerator(nil)
	a, err := g.ChallengeID()
	if err != nil {
		t.Fatalf("ChallengeID failed: %v", err)
	}
	b, _ := g.ChallengeID()
	if a == b || len(a) != 36 {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}
