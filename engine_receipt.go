package goFactor

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goFactor/receipt"
)

// ReceiptClaims is the verified content of a receipt.
type ReceiptClaims = receipt.Claims

// VerifyResponseWithReceipt behaves like VerifyResponse and, on success,
// also returns a signed receipt attesting that principal satisfied kind.
// It fails with ErrReceiptsDisabled before touching the challenge when
// receipts are not configured.
func (e *Engine) VerifyResponseWithReceipt(ctx context.Context, principal string, kind FactorKind, response string) (VerificationResult, string, error) {
	if e == nil || e.receipts == nil {
		return VerificationResult{}, "", ErrReceiptsDisabled
	}

	res, challengeID, err := e.verify(ctx, principal, kind, response)
	if err != nil || !res.Success() {
		return res, "", err
	}

	token, err := e.receipts.Issue(principal, kind.String(), challengeID)
	if err != nil {
		// the factor is already consumed; report success with the signing failure
		e.logFailure("issue receipt", kind, challengeID, err)
		return res, "", fmt.Errorf("%w: %v", ErrReceiptInvalid, err)
	}
	e.metricInc(MetricReceiptIssued)
	return res, token, nil
}

// ParseReceipt verifies a receipt produced by this engine's configuration.
func (e *Engine) ParseReceipt(token string) (*ReceiptClaims, error) {
	if e == nil || e.receipts == nil {
		return nil, ErrReceiptsDisabled
	}
	claims, err := e.receipts.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReceiptInvalid, err)
	}
	return claims, nil
}
