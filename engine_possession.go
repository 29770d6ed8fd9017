package goFactor

import (
	"context"
	"errors"

	"github.com/MrEthical07/goFactor/internal/flows"
)

// SubmitPossessionProof extracts the text carried by proof and verifies it as
// the response to principal's possession challenge. Surrounding whitespace in
// the extracted text is ignored.
//
// If the extractor fails, an error wrapping ErrExtractionFailed is returned
// and no attempt is consumed.
func (e *Engine) SubmitPossessionProof(ctx context.Context, principal string, proof []byte, extractor TextExtractor) (VerificationResult, error) {
	if !e.ready() {
		return VerificationResult{}, ErrEngineNotReady
	}

	deps := e.flowDeps()
	if extractor != nil {
		deps.Possession.Extract = extractor.Extract
	}

	ctx, span := e.startSpan(ctx, "gofactor.SubmitPossessionProof", FactorPossession)
	out, err := flows.RunSubmitPossessionProof(ctx, principal, proof, deps.Possession, deps.Challenge)
	res := resultFromAttempt(out.Attempt)
	endSpan(span, res.Outcome.String(), err)
	if err != nil {
		if errors.Is(err, ErrExtractionFailed) {
			e.metricInc(MetricExtractionFailed)
			e.emitAudit(ctx, auditEventProofRejected, false, principal, FactorPossession.String(), "", "", err)
		}
		e.logFailure("submit possession proof", FactorPossession, "", err)
		return VerificationResult{}, err
	}
	return res, nil
}
