package goFactor

import (
	"context"
	"errors"
	"fmt"

	internalflows "github.com/MrEthical07/goFactor/internal/flows"
)

// EnrollBackupCodes generates count backup codes for principal (the
// configured count when zero), replacing any previous batch. The plaintext
// codes are returned once, formatted XXXXX-XXXXX; only keyed digests are
// retained.
func (e *Engine) EnrollBackupCodes(ctx context.Context, principal string, count int) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "gofactor.EnrollBackupCodes", FactorBackupCode)
	codes, err := internalflows.RunEnrollBackupCodes(ctx, principal, count, e.backupCodeFlowDeps())
	endSpan(span, "", err)
	if err != nil {
		e.logFailure("enroll backup codes", FactorBackupCode, "", err)
		return nil, err
	}
	return codes, nil
}

// RemainingBackupCodes returns how many unused backup codes principal holds.
func (e *Engine) RemainingBackupCodes(ctx context.Context, principal string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if !internalflows.ValidPrincipal(principal) {
		return 0, fmt.Errorf("%w: principal", ErrInvalidInput)
	}
	n, err := e.vault.Remaining(ctx, principal)
	if err != nil {
		e.logFailure("remaining backup codes", FactorBackupCode, "", err)
		return 0, wrapBackend(err)
	}
	return n, nil
}

func (e *Engine) redeemBackupCode(ctx context.Context, principal, code string) (VerificationResult, error) {
	ctx, span := e.startSpan(ctx, "gofactor.RedeemBackupCode", FactorBackupCode)
	ok, err := internalflows.RunRedeemBackupCode(ctx, principal, code, e.backupCodeFlowDeps())

	var res VerificationResult
	switch {
	case errors.Is(err, ErrBackupCodeRateLimited):
		res, err = VerificationResult{Outcome: ResultAttemptsExhausted}, nil
	case err != nil:
	case ok:
		res = VerificationResult{Outcome: ResultSuccess}
	default:
		res = VerificationResult{Outcome: ResultNotFound}
	}
	endSpan(span, res.Outcome.String(), err)
	if err != nil {
		e.logFailure("redeem backup code", FactorBackupCode, "", err)
		return VerificationResult{}, err
	}
	return res, nil
}
