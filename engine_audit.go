package goFactor

import (
	"context"
	"errors"
)

const (
	auditEventChallengeIssued         = "challenge_issued"
	auditEventChallengeDeliveryFailed = "challenge_delivery_failed"
	auditEventChallengeVerified       = "challenge_verified"
	auditEventChallengeFailed         = "challenge_failed"
	auditEventChallengeExhausted      = "challenge_exhausted"
	auditEventChallengeExpired        = "challenge_expired"
	auditEventChallengeRevoked        = "challenge_revoked"
	auditEventProofRejected           = "possession_proof_rejected"
	auditEventBackupCodesEnrolled     = "backup_codes_enrolled"
	auditEventBackupCodeUsed          = "backup_code_used"
	auditEventBackupCodeFailed        = "backup_code_failed"
)

// AuditErrorCode is the stable, secret-free error classification written to
// AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrNotFound         AuditErrorCode = "not_found"
	auditErrExpired          AuditErrorCode = "expired"
	auditErrAttemptsExceeded AuditErrorCode = "attempts_exceeded"
	auditErrDeliveryFailed   AuditErrorCode = "delivery_failed"
	auditErrEntropy          AuditErrorCode = "entropy_unavailable"
	auditErrInvalidInput     AuditErrorCode = "invalid_input"
	auditErrExtraction       AuditErrorCode = "extraction_failed"
	auditErrNotEnrolled      AuditErrorCode = "reference_not_enrolled"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrNotReady         AuditErrorCode = "engine_not_ready"
	auditErrReceipt          AuditErrorCode = "receipt_invalid"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principal string,
	factor string,
	challengeID string,
	outcome string,
	err error,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:   e.clock.Now().UTC(),
		EventType:   eventType,
		Principal:   principal,
		Factor:      factor,
		ChallengeID: challengeID,
		Outcome:     outcome,
		Success:     success,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func errorCode(err error) string {
	return string(auditErrorCode(err))
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrEntropyUnavailable):
		return auditErrEntropy
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrExtractionFailed):
		return auditErrExtraction
	case errors.Is(err, ErrReferenceNotEnrolled):
		return auditErrNotEnrolled
	case errors.Is(err, ErrBackupCodeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineNotReady),
		errors.Is(err, ErrReceiptsDisabled):
		return auditErrNotReady
	case errors.Is(err, ErrReceiptInvalid):
		return auditErrReceipt
	default:
		return auditErrInternal
	}
}
