package goFactor

import "errors"

var (
	// ErrNotFound reports that no live challenge exists for the principal and factor.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired reports that the challenge validity window has passed.
	ErrExpired = errors.New("challenge expired")
	// ErrAttemptsExhausted reports that the challenge was invalidated by its attempt cap.
	ErrAttemptsExhausted = errors.New("challenge attempts exhausted")
	// ErrDeliveryFailed wraps a DeliveryChannel failure. The challenge stays issued.
	ErrDeliveryFailed = errors.New("challenge delivery failed")
	// ErrEntropyUnavailable reports that the secure random source failed.
	ErrEntropyUnavailable = errors.New("entropy source unavailable")
	// ErrInvalidInput reports a malformed principal, factor kind, option or response.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtractionFailed wraps a TextExtractor failure. No attempt is consumed.
	ErrExtractionFailed = errors.New("proof extraction failed")
	// ErrReferenceNotEnrolled reports a possession or hardware factor with no enrolled reference.
	ErrReferenceNotEnrolled = errors.New("factor reference not enrolled")
	// ErrBackendUnavailable reports a store, vault or limiter failure.
	ErrBackendUnavailable = errors.New("verification backend unavailable")
	// ErrBackupCodeRateLimited reports that backup code redemption is cooling down.
	ErrBackupCodeRateLimited = errors.New("backup code rate limited")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrReceiptsDisabled is returned by receipt operations when no signing key is configured.
	ErrReceiptsDisabled = errors.New("verification receipts disabled")
	// ErrReceiptInvalid reports a receipt that fails signature, expiry or claim checks.
	ErrReceiptInvalid = errors.New("invalid verification receipt")
)
