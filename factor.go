package goFactor

import (
	"github.com/MrEthical07/goFactor/internal/compare"
	"github.com/MrEthical07/goFactor/internal/flows"
)

// factorStrategy is the fixed behavior of a factor kind. Tunables (length,
// TTL, attempts) come from Config and only fall back to these values.
type factorStrategy struct {
	name       string
	source     flows.SecretSource
	fallback   flows.SecretSource
	codeLength int
	normalize  compare.Normalization
}

// factorStrategies is the single dispatch point for kind-specific behavior.
var factorStrategies = map[FactorKind]factorStrategy{
	FactorOTPEmail: {
		name:       "otp_email",
		source:     flows.SecretNumeric,
		codeLength: 6,
		normalize:  compare.NormalizeNone,
	},
	FactorOTPSMS: {
		name:       "otp_sms",
		source:     flows.SecretNumeric,
		codeLength: 6,
		normalize:  compare.NormalizeNone,
	},
	FactorPossession: {
		name:       "possession",
		source:     flows.SecretReference,
		fallback:   flows.SecretAlphanumeric,
		codeLength: 12,
		// extracted text commonly carries a trailing newline
		normalize: compare.NormalizeTrim,
	},
	FactorBackupCode: {
		name:       "backup_code",
		source:     flows.SecretVault,
		codeLength: 10,
		normalize:  compare.NormalizeNone,
	},
	FactorHardwareToken: {
		name:       "hardware_token",
		source:     flows.SecretReference,
		fallback:   flows.SecretNumeric,
		codeLength: 8,
		normalize:  compare.NormalizeNone,
	},
}

// FactorKinds returns every known kind in declaration order.
func FactorKinds() []FactorKind {
	return []FactorKind{
		FactorOTPEmail,
		FactorOTPSMS,
		FactorPossession,
		FactorBackupCode,
		FactorHardwareToken,
	}
}

// ParseFactorKind maps a name produced by FactorKind.String back to its kind.
func ParseFactorKind(name string) (FactorKind, bool) {
	for _, k := range FactorKinds() {
		if factorStrategies[k].name == name {
			return k, true
		}
	}
	return 0, false
}

// challengePolicy resolves the strategy of kind against cfg.
func challengePolicy(cfg *Config, kind uint8) (flows.ChallengePolicy, bool) {
	k := FactorKind(kind)
	s, ok := factorStrategies[k]
	if !ok {
		return flows.ChallengePolicy{}, false
	}

	p := flows.ChallengePolicy{
		Kind:        kind,
		Name:        s.name,
		Source:      s.source,
		Fallback:    s.fallback,
		CodeLength:  s.codeLength,
		TTL:         cfg.Challenge.DefaultTTL,
		MaxAttempts: cfg.Challenge.DefaultMaxAttempts,
		Normalize:   s.normalize,
	}
	if fc, ok := cfg.Challenge.Factors[k]; ok {
		if fc.CodeLength > 0 {
			p.CodeLength = fc.CodeLength
		}
		if fc.TTL > 0 {
			p.TTL = fc.TTL
		}
		if fc.MaxAttempts > 0 {
			p.MaxAttempts = fc.MaxAttempts
		}
	}
	return p, true
}
