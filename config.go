package goFactor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete engine configuration. Obtain a baseline from
// DefaultConfig, adjust it, and pass it to Builder.WithConfig.
//
// Config values are copied into the engine at Build time; later mutation of
// the caller's value has no effect.
type Config struct {
	Challenge   ChallengeConfig
	BackupCodes BackupCodeConfig
	Store       StoreConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	Receipt     ReceiptConfig
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig holds engine-wide challenge defaults and per-kind overrides.
type ChallengeConfig struct {
	DefaultTTL         time.Duration
	DefaultMaxAttempts int
	Factors            map[FactorKind]FactorConfig
}

// FactorConfig overrides the defaults of one factor kind. Zero fields inherit.
type FactorConfig struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

// BackupCodeConfig controls backup code batches and redemption throttling.
// MaxAttempts of zero disables the limiter. Pepper keys the stored digests;
// it must be at most 64 bytes and stable for the lifetime of the vault.
type BackupCodeConfig struct {
	Count       int
	MaxCount    int
	Length      int
	MaxAttempts int
	Cooldown    time.Duration
	Pepper      []byte
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects where challenges and backup code digests live.
type StoreBackend string

const (
	// StoreMemory keeps state in process memory.
	StoreMemory StoreBackend = "memory"
	// StoreRedis keeps state in Redis. Requires Builder.WithRedis.
	StoreRedis StoreBackend = "redis"
)

// StoreConfig controls persistence.
//
// ExpiredRetention keeps expired challenge records around so every late
// verifier observes ResultExpired rather than ResultNotFound until it passes. SweepInterval of zero
// disables the background sweeper for the memory backend.
type StoreConfig struct {
	Backend          StoreBackend
	RedisPrefix      string
	Shards           int
	SweepInterval    time.Duration
	ExpiredRetention time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
RECEIPT CONFIG
====================================
*/

// ReceiptConfig controls signed verification receipts.
type ReceiptConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: in-memory stores, five
// minute challenges with three attempts, ten backup codes of ten characters.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			DefaultTTL:         5 * time.Minute,
			DefaultMaxAttempts: 3,
		},
		BackupCodes: BackupCodeConfig{
			Count:       10,
			MaxCount:    32,
			Length:      10,
			MaxAttempts: 5,
			Cooldown:    10 * time.Minute,
		},
		Store: StoreConfig{
			Backend:          StoreMemory,
			RedisPrefix:      "gf",
			Shards:           64,
			SweepInterval:    time.Minute,
			ExpiredRetention: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Receipt: ReceiptConfig{
			Enabled:       false,
			TTL:           2 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "gofactor",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Challenge.Factors != nil {
		out.Challenge.Factors = make(map[FactorKind]FactorConfig, len(cfg.Challenge.Factors))
		for k, v := range cfg.Challenge.Factors {
			out.Challenge.Factors[k] = v
		}
	}
	out.BackupCodes.Pepper = cloneBytes(cfg.BackupCodes.Pepper)
	out.Receipt.PrivateKey = cloneBytes(cfg.Receipt.PrivateKey)
	out.Receipt.PublicKey = cloneBytes(cfg.Receipt.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

const (
	minCodeLength      = 4
	maxCodeLength      = 64
	maxAttemptsCeiling = 1<<16 - 1
	maxPepperLength    = 64
)

// Validate reports the first inconsistency in c, or nil.
func (c *Config) Validate() error {
	// Challenge
	if c.Challenge.DefaultTTL <= 0 {
		return errors.New("Challenge DefaultTTL must be > 0")
	}
	if c.Challenge.DefaultMaxAttempts < 1 || c.Challenge.DefaultMaxAttempts > maxAttemptsCeiling {
		return errors.New("Challenge DefaultMaxAttempts must be between 1 and 65535")
	}
	for kind, fc := range c.Challenge.Factors {
		if !kind.Valid() {
			return fmt.Errorf("Challenge Factors contains unknown kind %d", kind)
		}
		if kind == FactorBackupCode {
			return errors.New("Challenge Factors must not configure backup_code; use BackupCodes")
		}
		if fc.CodeLength != 0 && (fc.CodeLength < minCodeLength || fc.CodeLength > maxCodeLength) {
			return fmt.Errorf("Challenge %s CodeLength must be between %d and %d", kind, minCodeLength, maxCodeLength)
		}
		if fc.TTL < 0 {
			return fmt.Errorf("Challenge %s TTL must be >= 0", kind)
		}
		if fc.MaxAttempts < 0 || fc.MaxAttempts > maxAttemptsCeiling {
			return fmt.Errorf("Challenge %s MaxAttempts must be between 0 and 65535", kind)
		}
	}

	// Backup codes
	if c.BackupCodes.Count < 1 {
		return errors.New("BackupCodes Count must be >= 1")
	}
	if c.BackupCodes.MaxCount < c.BackupCodes.Count {
		return errors.New("BackupCodes MaxCount must be >= Count")
	}
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length > maxCodeLength {
		return errors.New("BackupCodes Length must be between 8 and 64")
	}
	if c.BackupCodes.MaxAttempts < 0 {
		return errors.New("BackupCodes MaxAttempts must be >= 0")
	}
	if c.BackupCodes.MaxAttempts > 0 && c.BackupCodes.Cooldown <= 0 {
		return errors.New("BackupCodes Cooldown must be > 0 when MaxAttempts is set")
	}
	if len(c.BackupCodes.Pepper) > maxPepperLength {
		return errors.New("BackupCodes Pepper must be at most 64 bytes")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory, StoreRedis:
	default:
		return errors.New("Store Backend must be 'memory' or 'redis'")
	}
	if c.Store.Backend == StoreRedis && strings.TrimSpace(c.Store.RedisPrefix) == "" {
		return errors.New("Store RedisPrefix must be set for the redis backend")
	}
	if strings.ContainsAny(c.Store.RedisPrefix, " \t\r\n") {
		return errors.New("Store RedisPrefix must not contain whitespace")
	}
	if c.Store.Shards < 0 {
		return errors.New("Store Shards must be >= 0")
	}
	if c.Store.SweepInterval < 0 {
		return errors.New("Store SweepInterval must be >= 0")
	}
	if c.Store.ExpiredRetention < 0 {
		return errors.New("Store ExpiredRetention must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Receipt
	if c.Receipt.Enabled {
		if c.Receipt.TTL <= 0 {
			return errors.New("Receipt TTL must be > 0")
		}
		if c.Receipt.Leeway < 0 || c.Receipt.Leeway > 2*time.Minute {
			return errors.New("Receipt Leeway must be between 0 and 2m")
		}
		switch c.Receipt.SigningMethod {
		case "ed25519":
			if len(c.Receipt.PrivateKey) == 0 {
				return errors.New("ed25519 requires PrivateKey")
			}
			if len(c.Receipt.PublicKey) == 0 {
				return errors.New("ed25519 requires PublicKey")
			}
		case "hs256":
			if len(c.Receipt.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported Receipt signing method")
		}
	}

	return nil
}
