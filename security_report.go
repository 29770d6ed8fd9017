package goFactor

import "time"

// SecurityReport summarizes the security-relevant posture of a built engine.
// It never includes key material or peppers.
type SecurityReport struct {
	StoreBackend             StoreBackend
	DefaultChallengeTTL      time.Duration
	DefaultMaxAttempts       int
	ExpiredRetention         time.Duration
	BackupCodeCount          int
	BackupCodeLength         int
	BackupCodePepperSet      bool
	BackupCodeLimiterActive  bool
	ReferenceProviderPresent bool
	ReceiptsEnabled          bool
	ReceiptSigningAlgorithm  string
	AuditEnabled             bool
	MetricsEnabled           bool
}

// SecurityReport returns the engine's effective security posture.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		StoreBackend:             e.config.Store.Backend,
		DefaultChallengeTTL:      e.config.Challenge.DefaultTTL,
		DefaultMaxAttempts:       e.config.Challenge.DefaultMaxAttempts,
		ExpiredRetention:         e.config.Store.ExpiredRetention,
		BackupCodeCount:          e.config.BackupCodes.Count,
		BackupCodeLength:         e.config.BackupCodes.Length,
		BackupCodePepperSet:      len(e.config.BackupCodes.Pepper) > 0,
		BackupCodeLimiterActive:  e.config.BackupCodes.MaxAttempts > 0 && e.config.BackupCodes.Cooldown > 0,
		ReferenceProviderPresent: e.references != nil,
		ReceiptsEnabled:          e.receipts != nil,
		AuditEnabled:             e.audit != nil,
		MetricsEnabled:           e.metrics.Enabled(),
	}
	if r.ReceiptsEnabled {
		r.ReceiptSigningAlgorithm = e.config.Receipt.SigningMethod
	}
	return r
}
