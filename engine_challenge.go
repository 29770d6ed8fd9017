package goFactor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/internal/flows"
	"github.com/MrEthical07/goFactor/internal/stores"
)

// IssueChallenge creates a challenge for principal and kind, superseding any
// live one for the same pair. The returned secret is the only copy the caller
// will see; hand it to a delivery channel and discard it. Challenges bound to
// an enrolled reference carry no secret.
//
// FactorBackupCode is not challenge based and yields ErrInvalidInput; use
// EnrollBackupCodes instead.
func (e *Engine) IssueChallenge(ctx context.Context, principal string, kind FactorKind, opts IssueOptions) (IssuedChallenge, error) {
	if !e.ready() {
		return IssuedChallenge{}, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "gofactor.IssueChallenge", kind)

	c, err := flows.RunIssueChallenge(ctx, flows.IssueRequest{
		Principal:   principal,
		Kind:        uint8(kind),
		TTL:         opts.TTL,
		MaxAttempts: opts.MaxAttempts,
		CodeLength:  opts.CodeLength,
	}, e.challengeFlowDeps())
	endSpan(span, "", err)
	if err != nil {
		e.logFailure("issue challenge", kind, "", err)
		return IssuedChallenge{}, err
	}

	issued := IssuedChallenge{
		ID:             c.ID,
		Kind:           kind,
		IssuedAt:       c.IssuedAt,
		ExpiresAt:      c.ExpiresAt,
		MaxAttempts:    c.AttemptsRemaining,
		ReferenceBound: c.FromReference,
	}
	if !c.FromReference {
		issued.Secret = c.Secret
	}
	return issued, nil
}

// BeginChallenge issues a challenge and hands its secret to ch. Reference
// bound challenges are not delivered; the principal answers with the enrolled
// artifact.
//
// When delivery fails the challenge ID is still returned together with an
// error wrapping ErrDeliveryFailed. The challenge stays issued, so the caller
// may retry delivery through another channel by issuing again or revoke it.
func (e *Engine) BeginChallenge(ctx context.Context, principal string, kind FactorKind, ch DeliveryChannel) (string, error) {
	if ch == nil {
		return "", fmt.Errorf("%w: delivery channel", ErrInvalidInput)
	}
	issued, err := e.IssueChallenge(ctx, principal, kind, IssueOptions{})
	if err != nil {
		return "", err
	}
	if issued.ReferenceBound {
		return issued.ID, nil
	}

	err = ch.Deliver(ctx, Delivery{
		ChallengeID: issued.ID,
		Principal:   principal,
		Kind:        kind,
		Secret:      issued.Secret,
		ExpiresAt:   issued.ExpiresAt,
	})
	if err != nil {
		derr := fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		e.metricInc(MetricChallengeDeliveryFailed)
		e.emitAudit(ctx, auditEventChallengeDeliveryFailed, false, principal, kind.String(), issued.ID, "", derr)
		e.logger.Warn("challenge delivery failed",
			zap.String("factor", kind.String()),
			zap.String("challenge_id", issued.ID),
			zap.Error(err),
		)
		return issued.ID, derr
	}
	return issued.ID, nil
}

// VerifyResponse checks response against the live challenge for principal
// and kind. Mismatches, expiry and missing challenges are reported through
// the result, not as errors.
//
// For FactorBackupCode the response is redeemed against the backup vault;
// a miss is ResultNotFound and a tripped limiter ResultAttemptsExhausted.
func (e *Engine) VerifyResponse(ctx context.Context, principal string, kind FactorKind, response string) (VerificationResult, error) {
	res, _, err := e.verify(ctx, principal, kind, response)
	return res, err
}

func (e *Engine) verify(ctx context.Context, principal string, kind FactorKind, response string) (VerificationResult, string, error) {
	if !e.ready() {
		return VerificationResult{}, "", ErrEngineNotReady
	}
	if kind == FactorBackupCode {
		res, err := e.redeemBackupCode(ctx, principal, response)
		return res, "", err
	}

	ctx, span := e.startSpan(ctx, "gofactor.VerifyResponse", kind)
	out, err := flows.RunVerifyResponse(ctx, principal, uint8(kind), response, e.challengeFlowDeps())
	res := resultFromAttempt(out.Attempt)
	endSpan(span, res.Outcome.String(), err)
	if err != nil {
		e.logFailure("verify response", kind, "", err)
		return VerificationResult{}, "", err
	}
	return res, out.ChallengeID, nil
}

// ChallengeStatus reports the state of the challenge for principal and kind
// without consuming an attempt. The secret is never exposed.
func (e *Engine) ChallengeStatus(ctx context.Context, principal string, kind FactorKind) (ChallengeStatus, error) {
	if !e.ready() {
		return ChallengeStatus{}, ErrEngineNotReady
	}
	if err := validateChallengeKey(principal, kind); err != nil {
		return ChallengeStatus{}, err
	}

	c, err := e.store.Peek(ctx, principal, uint8(kind))
	switch {
	case err == nil:
		return statusFrom(StateIssued, c), nil
	case errors.Is(err, stores.ErrChallengeExpired):
		return statusFrom(StateExpired, c), nil
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ChallengeStatus{State: StateNoChallenge}, nil
	default:
		e.logFailure("challenge status", kind, "", err)
		return ChallengeStatus{}, wrapBackend(err)
	}
}

func statusFrom(state ChallengeState, c stores.Challenge) ChallengeStatus {
	return ChallengeStatus{
		State:             state,
		ChallengeID:       c.ID,
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		AttemptsRemaining: c.AttemptsRemaining,
	}
}

// RevokeChallenge deletes the live challenge for principal and kind,
// reporting whether one existed.
func (e *Engine) RevokeChallenge(ctx context.Context, principal string, kind FactorKind) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	if err := validateChallengeKey(principal, kind); err != nil {
		return false, err
	}

	existed, err := e.store.Delete(ctx, principal, uint8(kind))
	if err != nil {
		e.logFailure("revoke challenge", kind, "", err)
		return false, wrapBackend(err)
	}
	if existed {
		e.metricInc(MetricChallengeRevoked)
		e.emitAudit(ctx, auditEventChallengeRevoked, true, principal, kind.String(), "", "", nil)
	}
	return existed, nil
}

func validateChallengeKey(principal string, kind FactorKind) error {
	if !flows.ValidPrincipal(principal) {
		return fmt.Errorf("%w: principal", ErrInvalidInput)
	}
	if !kind.Valid() || kind == FactorBackupCode {
		return fmt.Errorf("%w: factor kind", ErrInvalidInput)
	}
	return nil
}

// logFailure logs operational errors. Caller mistakes stay at debug level.
func (e *Engine) logFailure(op string, kind FactorKind, challengeID string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("factor", kind.String()),
		zap.String("error_code", errorCode(err)),
		zap.Error(err),
	}
	if challengeID != "" {
		fields = append(fields, zap.String("challenge_id", challengeID))
	}

	switch {
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrEntropyUnavailable),
		errors.Is(err, ErrEngineNotReady):
		e.logger.Warn("gofactor operation failed", fields...)
	default:
		e.logger.Debug("gofactor operation rejected", fields...)
	}
}
