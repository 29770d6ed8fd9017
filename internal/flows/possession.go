package flows

import (
	"context"
	"fmt"
)

type PossessionDeps struct {
	Kind    uint8
	Extract func(ctx context.Context, proof []byte) (string, error)

	ExtractionFailed error
	InvalidInput     error
}

// MaxProofBytes caps the artifact handed to an extractor.
const MaxProofBytes = 16 << 20

// RunSubmitPossessionProof turns a proof artifact into a text response and
// verifies it as a possession factor. An extractor failure consumes no
// attempt.
func RunSubmitPossessionProof(
	ctx context.Context,
	principal string,
	proof []byte,
	deps PossessionDeps,
	challenge ChallengeDeps,
) (VerifyOutcome, error) {
	if deps.Extract == nil {
		return VerifyOutcome{}, fmt.Errorf("%w: extractor", deps.InvalidInput)
	}
	if !ValidPrincipal(principal) {
		return VerifyOutcome{}, fmt.Errorf("%w: principal", deps.InvalidInput)
	}
	if len(proof) == 0 || len(proof) > MaxProofBytes {
		return VerifyOutcome{}, fmt.Errorf("%w: proof size", deps.InvalidInput)
	}

	text, err := deps.Extract(ctx, proof)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("%w: %v", deps.ExtractionFailed, err)
	}
	return RunVerifyResponse(ctx, principal, deps.Kind, text, challenge)
}
