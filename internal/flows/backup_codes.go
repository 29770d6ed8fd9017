package flows

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/MrEthical07/goFactor/internal"
	"github.com/MrEthical07/goFactor/internal/stores"
)

type BackupCodeMetrics struct {
	BackupCodeUsed     int
	BackupCodeFailed   int
	BackupCodeEnrolled int
	BackupCodeLimited  int
}

type BackupCodeEvents struct {
	BackupCodesEnrolled string
	BackupCodeUsed      string
	BackupCodeFailed    string
}

type BackupCodeErrors struct {
	EngineNotReady     error
	InvalidInput       error
	EntropyUnavailable error
	BackendUnavailable error
	RateLimited        error
}

type BackupCodeDeps struct {
	Count     int
	Length    int
	MaxCount  int
	Pepper    []byte
	Factor    string
	Generator *internal.Generator
	Vault     stores.BackupVault

	// ReserveLimiter claims one attempt before the vault is consulted and
	// reports whether the claim spent the last attempt of the window.
	ReserveLimiter func(context.Context, string) (bool, error)
	ResetLimiter   func(context.Context, string) error
	IsRateLimited  func(error) bool

	MetricInc func(int)
	LogError  func(op string, err error)
	EmitAudit func(ctx context.Context, event string, success bool, principal, factor, challengeID, outcome string, err error)

	Metrics BackupCodeMetrics
	Events  BackupCodeEvents
	Errors  BackupCodeErrors
}

// RunEnrollBackupCodes generates a fresh batch for principal and replaces
// whatever batch the vault held. Only digests are stored; the plaintext codes
// are returned once and never again.
func RunEnrollBackupCodes(ctx context.Context, principal string, count int, deps BackupCodeDeps) ([]string, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.Vault == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if !ValidPrincipal(principal) {
		return nil, fmt.Errorf("%w: principal", deps.Errors.InvalidInput)
	}
	if count == 0 {
		count = deps.Count
	}
	if count <= 0 || (deps.MaxCount > 0 && count > deps.MaxCount) {
		return nil, fmt.Errorf("%w: backup code count out of range", deps.Errors.InvalidInput)
	}

	raw, err := deps.Generator.BackupCodes(count, deps.Length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.EntropyUnavailable, err)
	}

	digests := make([][32]byte, 0, count)
	codes := make([]string, 0, count)
	for _, code := range raw {
		d, err := BackupCodeDigest(deps.Pepper, principal, CanonicalizeBackupCode(code))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", deps.Errors.EngineNotReady, err)
		}
		digests = append(digests, d)
		codes = append(codes, FormatBackupCode(code))
	}

	if err := deps.Vault.Replace(ctx, principal, digests); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
	}
	resetBackupLimiter(ctx, principal, deps)

	deps.MetricInc(deps.Metrics.BackupCodeEnrolled)
	deps.EmitAudit(ctx, deps.Events.BackupCodesEnrolled, true, principal, deps.Factor, "", "", nil)
	return codes, nil
}

// RunRedeemBackupCode consumes code for principal. It returns true exactly
// once per enrolled code; any miss is false with a nil error. Every call
// claims a limiter attempt first, so concurrent guesses cannot exceed the
// budget. A tripped limiter yields Errors.RateLimited without touching the
// vault, and the miss that spends the last attempt reports it too.
func RunRedeemBackupCode(ctx context.Context, principal, code string, deps BackupCodeDeps) (bool, error) {
	normalizeBackupCodeDeps(&deps)

	if deps.Vault == nil {
		return false, deps.Errors.EngineNotReady
	}
	if !ValidPrincipal(principal) {
		return false, fmt.Errorf("%w: principal", deps.Errors.InvalidInput)
	}
	if len(code) > MaxResponseLength {
		return false, fmt.Errorf("%w: response too long", deps.Errors.InvalidInput)
	}

	last, err := deps.ReserveLimiter(ctx, principal)
	if err != nil {
		return false, limiterError(err, deps)
	}

	canonical := CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, backupCodeMiss(ctx, principal, last, deps)
	}

	d, err := BackupCodeDigest(deps.Pepper, principal, canonical)
	if err != nil {
		return false, fmt.Errorf("%w: %v", deps.Errors.EngineNotReady, err)
	}
	ok, err := deps.Vault.Consume(ctx, principal, d)
	if err != nil {
		return false, fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
	}
	if !ok {
		return false, backupCodeMiss(ctx, principal, last, deps)
	}

	resetBackupLimiter(ctx, principal, deps)
	deps.MetricInc(deps.Metrics.BackupCodeUsed)
	deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, principal, deps.Factor, "", "success", nil)
	return true, nil
}

func backupCodeMiss(ctx context.Context, principal string, last bool, deps BackupCodeDeps) error {
	deps.MetricInc(deps.Metrics.BackupCodeFailed)
	deps.EmitAudit(ctx, deps.Events.BackupCodeFailed, false, principal, deps.Factor, "", "not_found", nil)
	if last {
		deps.MetricInc(deps.Metrics.BackupCodeLimited)
		return deps.Errors.RateLimited
	}
	return nil
}

// resetBackupLimiter clears the attempt window. A failed reset only leaves
// the principal with fewer attempts, so it is logged rather than returned.
func resetBackupLimiter(ctx context.Context, principal string, deps BackupCodeDeps) {
	if err := deps.ResetLimiter(ctx, principal); err != nil {
		deps.LogError("reset backup code limiter", err)
	}
}

func limiterError(err error, deps BackupCodeDeps) error {
	if deps.IsRateLimited(err) {
		deps.MetricInc(deps.Metrics.BackupCodeLimited)
		return deps.Errors.RateLimited
	}
	return fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
}

// FormatBackupCode splits a code into two dash-separated halves for display.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode folds user input onto the stored form: surrounding
// whitespace, inner spaces and dashes are dropped and letters upper-cased.
func CanonicalizeBackupCode(code string) string {
	s := strings.ReplaceAll(code, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToUpper(strings.TrimSpace(s))
}

// BackupCodeDigest binds a canonical code to its principal under a keyed
// BLAKE2b-256. An empty pepper yields the unkeyed hash.
func BackupCodeDigest(pepper []byte, principal, canonicalCode string) ([32]byte, error) {
	var out [32]byte
	h, err := blake2b.New256(pepper)
	if err != nil {
		return out, err
	}
	h.Write([]byte(principal))
	h.Write([]byte{0})
	h.Write([]byte(canonicalCode))
	copy(out[:], h.Sum(nil))
	return out, nil
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) {
	if deps.Generator == nil {
		deps.Generator = internal.NewGenerator(nil)
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, string, error) {}
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.ReserveLimiter == nil {
		deps.ReserveLimiter = func(context.Context, string) (bool, error) { return false, nil }
	}
	if deps.LogError == nil {
		deps.LogError = func(string, error) {}
	}
	if deps.ResetLimiter == nil {
		deps.ResetLimiter = func(context.Context, string) error { return nil }
	}
}
