package goFactor

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/goFactor/internal/audit"
)

// FactorKind identifies a verification factor. The set is closed; every kind
// has exactly one entry in the factor strategy table.
type FactorKind uint8

const (
	// FactorOTPEmail is a numeric one-time code delivered by email.
	FactorOTPEmail FactorKind = iota + 1
	// FactorOTPSMS is a numeric one-time code delivered by SMS.
	FactorOTPSMS
	// FactorPossession is proof of holding an enrolled artifact, answered with
	// text extracted from it.
	FactorPossession
	// FactorBackupCode is a single-use recovery code held in the backup vault.
	FactorBackupCode
	// FactorHardwareToken is a code read off an enrolled hardware token.
	FactorHardwareToken
)

// String returns the stable lower-case name used in audit events, metrics
// labels and receipts.
func (k FactorKind) String() string {
	if s, ok := factorStrategies[k]; ok {
		return s.name
	}
	return "unknown"
}

// Valid reports whether k is a known factor kind.
func (k FactorKind) Valid() bool {
	_, ok := factorStrategies[k]
	return ok
}

// Outcome is the result category of one verification.
type Outcome uint8

const (
	// ResultNotFound means no live challenge (or unused backup code) matched.
	ResultNotFound Outcome = iota
	// ResultSuccess means the response matched and the challenge is consumed.
	ResultSuccess
	// ResultRetry means the response did not match; Remaining attempts are left.
	ResultRetry
	// ResultAttemptsExhausted means the last attempt failed and the challenge
	// was invalidated, or backup code redemption is rate limited.
	ResultAttemptsExhausted
	// ResultExpired means the challenge validity window had passed.
	ResultExpired
)

func (o Outcome) String() string {
	switch o {
	case ResultSuccess:
		return "success"
	case ResultRetry:
		return "retry"
	case ResultAttemptsExhausted:
		return "attempts_exhausted"
	case ResultExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// VerificationResult is the typed answer to a verification. Remaining is only
// meaningful for ResultRetry.
type VerificationResult struct {
	Outcome   Outcome
	Remaining int
}

// Success reports whether the factor was satisfied.
func (r VerificationResult) Success() bool {
	return r.Outcome == ResultSuccess
}

// IssueOptions overrides per-kind defaults for a single challenge. Zero
// fields use the configured value.
type IssueOptions struct {
	TTL         time.Duration
	MaxAttempts int
	CodeLength  int
}

// IssuedChallenge is returned once at issue time. Secret must be handed to a
// delivery channel and then discarded by the caller.
//
// ReferenceBound challenges are answered with the principal's enrolled
// artifact; their Secret is always empty and nothing is delivered.
type IssuedChallenge struct {
	ID             string
	Kind           FactorKind
	Secret         string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	MaxAttempts    int
	ReferenceBound bool
}

// ChallengeState is the externally visible state of a (principal, kind) slot.
type ChallengeState uint8

const (
	StateNoChallenge ChallengeState = iota
	StateIssued
	StateExpired
)

func (s ChallengeState) String() string {
	switch s {
	case StateIssued:
		return "issued"
	case StateExpired:
		return "expired"
	default:
		return "no_challenge"
	}
}

// ChallengeStatus is a read-only view of a challenge. It never includes the
// secret.
type ChallengeStatus struct {
	State             ChallengeState
	ChallengeID       string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
}

// Delivery is the payload handed to a DeliveryChannel.
type Delivery struct {
	ChallengeID string
	Principal   string
	Kind        FactorKind
	Secret      string
	ExpiresAt   time.Time
}

// DeliveryChannel transports a secret to its recipient. Implementations live
// outside the engine (see package channel).
type DeliveryChannel interface {
	Deliver(ctx context.Context, d Delivery) error
}

// TextExtractor turns a possession proof artifact (for example an image) into
// the text response it carries.
type TextExtractor interface {
	Extract(ctx context.Context, proof []byte) (string, error)
}

// TextExtractorFunc adapts a function to TextExtractor.
type TextExtractorFunc func(ctx context.Context, proof []byte) (string, error)

func (f TextExtractorFunc) Extract(ctx context.Context, proof []byte) (string, error) {
	return f(ctx, proof)
}

// Clock supplies the current time. Expiry decisions use only this source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ReferenceProvider resolves the per-principal reference secret enrolled for
// possession and hardware-token factors. It returns an error wrapping
// ErrReferenceNotEnrolled when the principal has none.
type ReferenceProvider interface {
	Reference(ctx context.Context, principal string, kind FactorKind) (string, error)
}

// MemoryReferences is an in-process ReferenceProvider. It is safe for
// concurrent use.
type MemoryReferences struct {
	mu   sync.RWMutex
	refs map[referenceKey]string
}

type referenceKey struct {
	principal string
	kind      FactorKind
}

func NewMemoryReferences() *MemoryReferences {
	return &MemoryReferences{refs: make(map[referenceKey]string)}
}

// Enroll binds ref to principal for kind, replacing any previous reference.
func (m *MemoryReferences) Enroll(principal string, kind FactorKind, ref string) error {
	if principal == "" || ref == "" || !kind.Valid() || kind == FactorBackupCode {
		return ErrInvalidInput
	}
	m.mu.Lock()
	m.refs[referenceKey{principal, kind}] = ref
	m.mu.Unlock()
	return nil
}

// Remove drops the reference for principal and kind.
func (m *MemoryReferences) Remove(principal string, kind FactorKind) {
	m.mu.Lock()
	delete(m.refs, referenceKey{principal, kind})
	m.mu.Unlock()
}

func (m *MemoryReferences) Reference(ctx context.Context, principal string, kind FactorKind) (string, error) {
	m.mu.RLock()
	ref, ok := m.refs[referenceKey{principal, kind}]
	m.mu.RUnlock()
	if !ok {
		return "", ErrReferenceNotEnrolled
	}
	return ref, nil
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that logs events through zap; failures log at Warn.
type ZapSink = internalaudit.ZapSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewZapSink creates a [ZapSink] writing through a child logger named "audit".
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
