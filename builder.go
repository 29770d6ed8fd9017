package goFactor

import (
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/internal"
	internalaudit "github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/internal/limiters"
	"github.com/MrEthical07/goFactor/internal/stores"
	"github.com/MrEthical07/goFactor/receipt"
)

const tracerName = "github.com/MrEthical07/goFactor"

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and
// used once; Build fails on a second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	logger         *zap.Logger
	auditSink      AuditSink
	clock          Clock
	entropy        io.Reader
	references     ReferenceProvider
	tracerProvider trace.TracerProvider

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the redis store backend and by the
// backup code limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Secrets are never logged.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the destination of audit events. Audit must also be
// enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces the time source used for every expiry decision.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithEntropy replaces the secure random source. It exists for tests that
// need to simulate an entropy failure; production callers should not use it.
func (b *Builder) WithEntropy(r io.Reader) *Builder {
	b.entropy = r
	return b
}

// WithReferenceProvider supplies per-principal references for possession and
// hardware-token factors. Without one those factors issue generated secrets.
func (b *Builder) WithReferenceProvider(p ReferenceProvider) *Builder {
	b.references = p
	return b
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used by default.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready [Engine]. The caller
// must Close the engine to stop its background workers.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.Backend == StoreRedis && b.redis == nil {
		return nil, errors.New("redis store backend requires redis client")
	}

	engine := &Engine{
		config:     cfg,
		generator:  internal.NewGenerator(b.entropy),
		references: b.references,
		logger:     b.logger,
		clock:      b.clock,
		done:       make(chan struct{}),
	}
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	if engine.clock == nil {
		engine.clock = systemClock{}
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	engine.tracer = tp.Tracer(tracerName)

	// -------- STORES --------
	now := engine.clock.Now
	limiterCfg := limiters.BackupCodeConfig{
		Prefix:      cfg.Store.RedisPrefix + ":l",
		MaxAttempts: cfg.BackupCodes.MaxAttempts,
		Cooldown:    cfg.BackupCodes.Cooldown,
		Shards:      cfg.Store.Shards,
	}
	switch cfg.Store.Backend {
	case StoreRedis:
		engine.store = stores.NewRedisChallengeStore(b.redis, cfg.Store.RedisPrefix+":c", now, cfg.Store.ExpiredRetention)
		engine.vault = stores.NewRedisBackupVault(b.redis, cfg.Store.RedisPrefix+":b")
	default:
		mem := stores.NewMemoryChallengeStore(cfg.Store.Shards, now, cfg.Store.ExpiredRetention)
		engine.store = mem
		engine.vault = stores.NewMemoryBackupVault(cfg.Store.Shards)
		engine.sweepable = true
	}
	if b.redis != nil {
		engine.limiter = limiters.NewBackupCodeLimiter(b.redis, limiterCfg)
	} else {
		engine.limiter = limiters.NewMemoryBackupCodeLimiter(limiterCfg, now)
	}

	// -------- OBSERVABILITY --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     engine.logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- RECEIPTS --------
	if cfg.Receipt.Enabled {
		rm, err := receipt.NewManager(receipt.Config{
			TTL:           cfg.Receipt.TTL,
			SigningMethod: receipt.SigningMethod(cfg.Receipt.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Receipt.PrivateKey),
			PublicKey:     cloneBytes(cfg.Receipt.PublicKey),
			Issuer:        cfg.Receipt.Issuer,
			Audience:      cfg.Receipt.Audience,
			Leeway:        cfg.Receipt.Leeway,
			KeyID:         cfg.Receipt.KeyID,
			Now:           now,
		})
		if err != nil {
			engine.closeAudit()
			return nil, err
		}
		engine.receipts = rm
	}

	engine.startSweeper()
	b.built = true

	engine.logger.Debug("gofactor engine built",
		zap.String("store", string(cfg.Store.Backend)),
		zap.Bool("audit", cfg.Audit.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("receipts", cfg.Receipt.Enabled),
	)
	return engine, nil
}
