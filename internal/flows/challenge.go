package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MrEthical07/goFactor/internal"
	"github.com/MrEthical07/goFactor/internal/compare"
	"github.com/MrEthical07/goFactor/internal/stores"
)

const (
	MaxPrincipalLength = 256
	MaxResponseLength  = 1024
	MaxAttemptsCeiling = 1<<16 - 1
)

// SecretSource selects how a factor's challenge secret is produced.
type SecretSource uint8

const (
	SecretNumeric SecretSource = iota
	SecretAlphanumeric
	SecretReference
	SecretVault
)

// ChallengePolicy is the resolved per-factor behavior consumed by the
// challenge flows.
type ChallengePolicy struct {
	Kind        uint8
	Name        string
	Source      SecretSource
	Fallback    SecretSource
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Normalize   compare.Normalization
}

type IssueRequest struct {
	Principal   string
	Kind        uint8
	TTL         time.Duration
	MaxAttempts int
	CodeLength  int
}

type ChallengeMetrics struct {
	ChallengeIssued    int
	ChallengeVerified  int
	ChallengeFailed    int
	ChallengeExhausted int
	ChallengeExpired   int
	ChallengeNotFound  int
	VerifyLatency      int
}

type ChallengeEvents struct {
	ChallengeIssued    string
	ChallengeVerified  string
	ChallengeFailed    string
	ChallengeExhausted string
	ChallengeExpired   string
}

type ChallengeErrors struct {
	EngineNotReady       error
	InvalidInput         error
	EntropyUnavailable   error
	ReferenceNotEnrolled error
	BackendUnavailable   error
}

type ChallengeDeps struct {
	Policy    func(kind uint8) (ChallengePolicy, bool)
	Now       func() time.Time
	Generator *internal.Generator
	Store     stores.ChallengeStore

	// Reference resolves the enrolled secret for SecretReference factors. A nil
	// hook makes those factors fall back to a generated secret.
	Reference func(ctx context.Context, principal string, kind uint8) (string, error)

	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)
	EmitAudit      func(ctx context.Context, event string, success bool, principal, factor, challengeID, outcome string, err error)

	Metrics ChallengeMetrics
	Events  ChallengeEvents
	Errors  ChallengeErrors
}

// ValidPrincipal reports whether p is a usable principal identifier.
func ValidPrincipal(p string) bool {
	if p == "" || len(p) > MaxPrincipalLength || !utf8.ValidString(p) {
		return false
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// IssuedChallenge is a stored challenge plus how its secret was sourced.
// Reference-sourced secrets belong to the principal's enrolled artifact and
// must never leave the engine.
type IssuedChallenge struct {
	stores.Challenge
	FromReference bool
}

// RunIssueChallenge creates and stores a fresh challenge, superseding any
// live one for the same principal and factor.
func RunIssueChallenge(ctx context.Context, req IssueRequest, deps ChallengeDeps) (IssuedChallenge, error) {
	normalizeChallengeDeps(&deps)

	if deps.Store == nil || deps.Policy == nil {
		return IssuedChallenge{}, deps.Errors.EngineNotReady
	}
	if !ValidPrincipal(req.Principal) {
		return IssuedChallenge{}, fmt.Errorf("%w: principal", deps.Errors.InvalidInput)
	}
	policy, ok := deps.Policy(req.Kind)
	if !ok || policy.Source == SecretVault {
		return IssuedChallenge{}, fmt.Errorf("%w: factor kind", deps.Errors.InvalidInput)
	}

	ttl := policy.TTL
	if req.TTL != 0 {
		ttl = req.TTL
	}
	maxAttempts := policy.MaxAttempts
	if req.MaxAttempts != 0 {
		maxAttempts = req.MaxAttempts
	}
	length := policy.CodeLength
	if req.CodeLength != 0 {
		length = req.CodeLength
	}
	if ttl <= 0 {
		return IssuedChallenge{}, fmt.Errorf("%w: ttl must be > 0", deps.Errors.InvalidInput)
	}
	if maxAttempts < 1 || maxAttempts > MaxAttemptsCeiling {
		return IssuedChallenge{}, fmt.Errorf("%w: max attempts out of range", deps.Errors.InvalidInput)
	}
	if length < internal.MinCodeLength || length > internal.MaxCodeLength {
		return IssuedChallenge{}, fmt.Errorf("%w: code length out of range", deps.Errors.InvalidInput)
	}

	secret, fromRef, err := challengeSecret(ctx, req.Principal, policy, length, deps)
	if err != nil {
		return IssuedChallenge{}, err
	}
	id, err := deps.Generator.ChallengeID()
	if err != nil {
		return IssuedChallenge{}, fmt.Errorf("%w: %v", deps.Errors.EntropyUnavailable, err)
	}

	now := deps.Now()
	c := stores.Challenge{
		ID:                id,
		Principal:         req.Principal,
		Kind:              req.Kind,
		Secret:            secret,
		IssuedAt:          now,
		ExpiresAt:         now.Add(ttl),
		AttemptsRemaining: maxAttempts,
	}
	if err := deps.Store.Issue(ctx, c); err != nil {
		if errors.Is(err, stores.ErrChallengeInvalid) {
			return IssuedChallenge{}, fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
		}
		return IssuedChallenge{}, fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.ChallengeIssued)
	deps.EmitAudit(ctx, deps.Events.ChallengeIssued, true, c.Principal, policy.Name, c.ID, "", nil)
	return IssuedChallenge{Challenge: c, FromReference: fromRef}, nil
}

func challengeSecret(ctx context.Context, principal string, policy ChallengePolicy, length int, deps ChallengeDeps) (string, bool, error) {
	source := policy.Source
	if source == SecretReference {
		if deps.Reference == nil {
			source = policy.Fallback
		} else {
			ref, err := deps.Reference(ctx, principal, policy.Kind)
			if err != nil {
				if errors.Is(err, deps.Errors.ReferenceNotEnrolled) {
					return "", false, err
				}
				return "", false, fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
			}
			if ref == "" {
				return "", false, deps.Errors.ReferenceNotEnrolled
			}
			return ref, true, nil
		}
	}

	var (
		secret string
		err    error
	)
	switch source {
	case SecretAlphanumeric:
		secret, err = deps.Generator.AlphanumericCode(length)
	default:
		secret, err = deps.Generator.NumericCode(length)
	}
	if err != nil {
		if errors.Is(err, internal.ErrCodeLength) {
			return "", false, fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
		}
		return "", false, fmt.Errorf("%w: %v", deps.Errors.EntropyUnavailable, err)
	}
	return secret, false, nil
}

// VerifyOutcome is the flow-level result of one verification.
type VerifyOutcome struct {
	Attempt     stores.AttemptOutcome
	ChallengeID string
}

// RunVerifyResponse compares response against the live challenge and records
// the outcome in one atomic store step.
//
// The comparison happens between Peek and RecordAttempt. RecordAttempt only
// applies to the challenge ID that was compared, so a concurrent reissue makes
// this verification report not-found rather than charge the new challenge.
func RunVerifyResponse(ctx context.Context, principal string, kind uint8, response string, deps ChallengeDeps) (VerifyOutcome, error) {
	normalizeChallengeDeps(&deps)

	if deps.Store == nil || deps.Policy == nil {
		return VerifyOutcome{}, deps.Errors.EngineNotReady
	}
	if !ValidPrincipal(principal) {
		return VerifyOutcome{}, fmt.Errorf("%w: principal", deps.Errors.InvalidInput)
	}
	if len(response) > MaxResponseLength {
		return VerifyOutcome{}, fmt.Errorf("%w: response too long", deps.Errors.InvalidInput)
	}
	policy, ok := deps.Policy(kind)
	if !ok || policy.Source == SecretVault {
		return VerifyOutcome{}, fmt.Errorf("%w: factor kind", deps.Errors.InvalidInput)
	}

	start := time.Now()
	defer func() {
		deps.ObserveLatency(deps.Metrics.VerifyLatency, time.Since(start))
	}()

	c, err := deps.Store.Peek(ctx, principal, kind)
	matched := false
	switch {
	case err == nil:
		matched = compare.EqualNormalized(policy.Normalize, response, c.Secret)
	case errors.Is(err, stores.ErrChallengeNotFound):
		deps.MetricInc(deps.Metrics.ChallengeNotFound)
		return VerifyOutcome{Attempt: stores.AttemptOutcome{Result: stores.AttemptNotFound}}, nil
	case errors.Is(err, stores.ErrChallengeExpired):
		// RecordAttempt re-checks expiry under the key lock
	default:
		return VerifyOutcome{}, fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
	}

	outcome, err := deps.Store.RecordAttempt(ctx, principal, kind, c.ID, matched)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("%w: %v", deps.Errors.BackendUnavailable, err)
	}

	res := VerifyOutcome{Attempt: outcome, ChallengeID: c.ID}
	switch outcome.Result {
	case stores.AttemptSuccess:
		deps.MetricInc(deps.Metrics.ChallengeVerified)
		deps.EmitAudit(ctx, deps.Events.ChallengeVerified, true, principal, policy.Name, c.ID, outcome.Result.String(), nil)
	case stores.AttemptRetry:
		deps.MetricInc(deps.Metrics.ChallengeFailed)
		deps.EmitAudit(ctx, deps.Events.ChallengeFailed, false, principal, policy.Name, c.ID, outcome.Result.String(), nil)
	case stores.AttemptExhausted:
		deps.MetricInc(deps.Metrics.ChallengeExhausted)
		deps.EmitAudit(ctx, deps.Events.ChallengeExhausted, false, principal, policy.Name, c.ID, outcome.Result.String(), nil)
	case stores.AttemptExpired:
		deps.MetricInc(deps.Metrics.ChallengeExpired)
		deps.EmitAudit(ctx, deps.Events.ChallengeExpired, false, principal, policy.Name, c.ID, outcome.Result.String(), nil)
	default:
		deps.MetricInc(deps.Metrics.ChallengeNotFound)
		res.ChallengeID = ""
	}
	return res, nil
}

func normalizeChallengeDeps(deps *ChallengeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Generator == nil {
		deps.Generator = internal.NewGenerator(nil)
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, string, error) {}
	}
}
