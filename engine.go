package goFactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/goFactor/internal"
	internalaudit "github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/internal/flows"
	"github.com/MrEthical07/goFactor/internal/limiters"
	"github.com/MrEthical07/goFactor/internal/stores"
	"github.com/MrEthical07/goFactor/receipt"
)

type backupLimiter interface {
	Reserve(ctx context.Context, principal string) (bool, error)
	Reset(ctx context.Context, principal string) error
}

// limiterSweeper is implemented by limiters that keep windows in process.
type limiterSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Engine issues and verifies MFA challenges and redeems backup codes.
//
// An Engine is safe for concurrent use. Operations on different
// (principal, kind) pairs never serialize on one another; operations on the
// same pair are linearizable.
type Engine struct {
	config     Config
	store      stores.ChallengeStore
	vault      stores.BackupVault
	limiter    backupLimiter
	generator  *internal.Generator
	references ReferenceProvider
	receipts   *receipt.Manager
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
	clock      Clock

	sweepable bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the background sweeper and flushes the audit dispatcher. It is
// safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.done != nil {
			close(e.done)
		}
		e.wg.Wait()
		e.closeAudit()
	})
}

func (e *Engine) closeAudit() {
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.vault != nil && e.generator != nil
}

// Sweep eagerly removes expired challenge records and returns how many were
// removed. In-process backup code limiter windows past their cooldown are
// dropped in the same pass. Verification correctness never depends on it.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if ls, ok := e.limiter.(limiterSweeper); ok {
		if _, err := ls.Sweep(ctx); err != nil {
			return 0, err
		}
	}
	n, err := e.store.Sweep(ctx)
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricChallengeSwept, uint64(n))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, err
		}
		return n, wrapBackend(err)
	}
	return n, nil
}

func (e *Engine) startSweeper() {
	interval := e.config.Store.SweepInterval
	if !e.sweepable || interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				n, err := e.Sweep(ctx)
				cancel()
				if err != nil {
					e.logger.Warn("challenge sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					e.logger.Debug("challenge sweep", zap.Int("removed", n))
				}
			}
		}
	}()
}

func (e *Engine) startSpan(ctx context.Context, name string, kind FactorKind) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("gofactor.factor", kind.String())))
}

func endSpan(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String("gofactor.outcome", outcome))
	}
	if err != nil {
		span.SetStatus(codes.Error, errorCode(err))
	}
	span.End()
}

func wrapBackend(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

/*
====================================
FLOW DEPENDENCIES
====================================
*/

func (e *Engine) challengeFlowDeps() flows.ChallengeDeps {
	deps := flows.ChallengeDeps{
		Policy: func(kind uint8) (flows.ChallengePolicy, bool) {
			return challengePolicy(&e.config, kind)
		},
		Now:       e.clock.Now,
		Generator: e.generator,
		Store:     e.store,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ObserveLatency: func(id int, d time.Duration) {
			if e.metrics != nil {
				e.metrics.Observe(MetricID(id), d)
			}
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.ChallengeMetrics{
			ChallengeIssued:    int(MetricChallengeIssued),
			ChallengeVerified:  int(MetricChallengeVerified),
			ChallengeFailed:    int(MetricChallengeFailed),
			ChallengeExhausted: int(MetricChallengeExhausted),
			ChallengeExpired:   int(MetricChallengeExpired),
			ChallengeNotFound:  int(MetricChallengeNotFound),
			VerifyLatency:      int(MetricVerifyLatency),
		},
		Events: flows.ChallengeEvents{
			ChallengeIssued:    auditEventChallengeIssued,
			ChallengeVerified:  auditEventChallengeVerified,
			ChallengeFailed:    auditEventChallengeFailed,
			ChallengeExhausted: auditEventChallengeExhausted,
			ChallengeExpired:   auditEventChallengeExpired,
		},
		Errors: flows.ChallengeErrors{
			EngineNotReady:       ErrEngineNotReady,
			InvalidInput:         ErrInvalidInput,
			EntropyUnavailable:   ErrEntropyUnavailable,
			ReferenceNotEnrolled: ErrReferenceNotEnrolled,
			BackendUnavailable:   ErrBackendUnavailable,
		},
	}
	if e.references != nil {
		deps.Reference = func(ctx context.Context, principal string, kind uint8) (string, error) {
			return e.references.Reference(ctx, principal, FactorKind(kind))
		}
	}
	return deps
}

func (e *Engine) backupCodeFlowDeps() flows.BackupCodeDeps {
	return flows.BackupCodeDeps{
		Count:          e.config.BackupCodes.Count,
		MaxCount:       e.config.BackupCodes.MaxCount,
		Length:         e.config.BackupCodes.Length,
		Pepper:         e.config.BackupCodes.Pepper,
		Factor:         FactorBackupCode.String(),
		Generator:      e.generator,
		Vault:          e.vault,
		ReserveLimiter: e.limiter.Reserve,
		ResetLimiter:   e.limiter.Reset,
		IsRateLimited: func(err error) bool {
			return errors.Is(err, limiters.ErrBackupCodeRateLimited)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		LogError: func(op string, err error) {
			e.logFailure(op, FactorBackupCode, "", err)
		},
		EmitAudit: e.emitAudit,
		Metrics: flows.BackupCodeMetrics{
			BackupCodeUsed:     int(MetricBackupCodeUsed),
			BackupCodeFailed:   int(MetricBackupCodeFailed),
			BackupCodeEnrolled: int(MetricBackupCodesEnrolled),
			BackupCodeLimited:  int(MetricBackupCodeRateLimited),
		},
		Events: flows.BackupCodeEvents{
			BackupCodesEnrolled: auditEventBackupCodesEnrolled,
			BackupCodeUsed:      auditEventBackupCodeUsed,
			BackupCodeFailed:    auditEventBackupCodeFailed,
		},
		Errors: flows.BackupCodeErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidInput:       ErrInvalidInput,
			EntropyUnavailable: ErrEntropyUnavailable,
			BackendUnavailable: ErrBackendUnavailable,
			RateLimited:        ErrBackupCodeRateLimited,
		},
	}
}

func (e *Engine) flowDeps() flows.Deps {
	return flows.Deps{
		Challenge:  e.challengeFlowDeps(),
		BackupCode: e.backupCodeFlowDeps(),
		Possession: flows.PossessionDeps{
			Kind:             uint8(FactorPossession),
			ExtractionFailed: ErrExtractionFailed,
			InvalidInput:     ErrInvalidInput,
		},
	}
}

func resultFromAttempt(o stores.AttemptOutcome) VerificationResult {
	switch o.Result {
	case stores.AttemptSuccess:
		return VerificationResult{Outcome: ResultSuccess}
	case stores.AttemptRetry:
		return VerificationResult{Outcome: ResultRetry, Remaining: o.Remaining}
	case stores.AttemptExhausted:
		return VerificationResult{Outcome: ResultAttemptsExhausted}
	case stores.AttemptExpired:
		return VerificationResult{Outcome: ResultExpired}
	default:
		return VerificationResult{Outcome: ResultNotFound}
	}
}
