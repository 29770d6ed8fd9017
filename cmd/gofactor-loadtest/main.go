package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/channel"
	promexport "github.com/MrEthical07/goFactor/metrics/export/prometheus"
)

type options struct {
	principals  int
	concurrency int
	ops         int
	wrongRatio  float64
	backend     string
	redisAddr   string
	prefix      string
	metricsAddr string
	verbose     bool
}

func main() {
	opts := parseOptions()
	if err := validateOptions(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	engine, cleanup, err := buildEngine(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: promexport.NewExporter(engine).Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
		fmt.Printf("serving metrics on %s\n", opts.metricsAddr)
	}

	challengeStats, err := runChallengePhase(ctx, engine, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "challenge phase aborted: %v\n", err)
		os.Exit(1)
	}
	backupStats, err := runBackupPhase(ctx, engine, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup phase aborted: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("issue+verify", challengeStats)
	printStats("backup-redeem", backupStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: issued=%d verified=%d retried=%d exhausted=%d superseded_or_missing=%d backup_used=%d\n",
		snap.Counters[goFactor.MetricChallengeIssued],
		snap.Counters[goFactor.MetricChallengeVerified],
		snap.Counters[goFactor.MetricChallengeFailed],
		snap.Counters[goFactor.MetricChallengeExhausted],
		snap.Counters[goFactor.MetricChallengeNotFound],
		snap.Counters[goFactor.MetricBackupCodeUsed],
	)
}

func parseOptions() options {
	var opts options
	flag.IntVar(&opts.principals, "principals", 10000, "number of distinct principals")
	flag.IntVar(&opts.concurrency, "concurrency", 128, "number of concurrent workers")
	flag.IntVar(&opts.ops, "ops", 100000, "operations per phase")
	flag.Float64Var(&opts.wrongRatio, "wrong-ratio", 0.1, "share of verifications preceded by a wrong response")
	flag.StringVar(&opts.backend, "backend", envOr("GOFACTOR_BACKEND", "memory"), "store backend: memory or redis")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flag.StringVar(&opts.prefix, "prefix", "gfl", "redis key prefix")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", os.Getenv("GOFACTOR_METRICS_ADDR"), "serve Prometheus metrics on this address while running")
	flag.BoolVar(&opts.verbose, "verbose", envBool("GOFACTOR_VERBOSE"), "log engine warnings")
	flag.Parse()
	return opts
}

func validateOptions(opts options) error {
	if opts.principals <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("principals, concurrency, and ops must be > 0")
	}
	if opts.wrongRatio < 0 || opts.wrongRatio > 1 {
		return errors.New("wrong-ratio must be within [0,1]")
	}
	if opts.backend != "memory" && opts.backend != "redis" {
		return fmt.Errorf("unknown backend %q", opts.backend)
	}
	return nil
}

func buildEngine(opts options, logger *zap.Logger) (*goFactor.Engine, func(), error) {
	cfg := goFactor.DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.BackupCodes.Pepper = []byte("loadtest-pepper")
	cfg.BackupCodes.MaxAttempts = 1 << 20
	cfg.Store.RedisPrefix = opts.prefix

	b := goFactor.New().WithLogger(logger)
	cleanup := func() {}

	if opts.backend == "redis" {
		cfg.Store.Backend = goFactor.StoreRedis

		addr := opts.redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		var mr *miniredis.Miniredis
		if addr == "" {
			var err error
			mr, err = miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b = b.WithRedis(client)
		cleanup = func() {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
		}
	} else {
		fmt.Println("using in-memory store")
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, func() {
		engine.Close()
		cleanup()
	}, nil
}

// runChallengePhase issues a challenge through a capturing channel and
// answers it, sometimes after a deliberate miss. Workers share principals,
// so some verifications race a superseding issue; those count as outcomes,
// not failures.
func runChallengePhase(ctx context.Context, engine *goFactor.Engine, opts options) (phaseStats, error) {
	kinds := []goFactor.FactorKind{goFactor.FactorOTPEmail, goFactor.FactorOTPSMS}
	rec := newRecorder(opts.ops)
	var cursor int64

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				if atomic.AddInt64(&cursor, 1) > int64(opts.ops) {
					return nil
				}
				principal := "user-" + strconv.Itoa(r.Intn(opts.principals))
				kind := kinds[r.Intn(len(kinds))]

				var secret string
				capture := channel.Func(func(_ context.Context, d goFactor.Delivery) error {
					secret = d.Secret
					return nil
				})

				t0 := time.Now()
				if _, err := engine.BeginChallenge(gctx, principal, kind, capture); err != nil {
					rec.fail(time.Since(t0))
					continue
				}
				if r.Float64() < opts.wrongRatio {
					if _, err := engine.VerifyResponse(gctx, principal, kind, flip(secret)); err != nil {
						rec.fail(time.Since(t0))
						continue
					}
				}
				res, err := engine.VerifyResponse(gctx, principal, kind, secret)
				d := time.Since(t0)
				if err != nil {
					rec.fail(d)
					continue
				}
				rec.ok(d, res.Outcome)
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return phaseStats{}, err
	}
	return rec.stats(time.Since(start)), nil
}

func runBackupPhase(ctx context.Context, engine *goFactor.Engine, opts options) (phaseStats, error) {
	const codesPerPrincipal = 10
	principals := opts.ops/codesPerPrincipal + 1
	if principals > opts.principals {
		principals = opts.principals
	}

	codes := make([][]string, principals)
	enroll, ectx := errgroup.WithContext(ctx)
	enroll.SetLimit(opts.concurrency)
	for i := 0; i < principals; i++ {
		enroll.Go(func() error {
			batch, err := engine.EnrollBackupCodes(ectx, "backup-"+strconv.Itoa(i), codesPerPrincipal)
			if err != nil {
				return err
			}
			codes[i] = batch
			return nil
		})
	}
	if err := enroll.Wait(); err != nil {
		return phaseStats{}, fmt.Errorf("enroll: %w", err)
	}

	total := principals * codesPerPrincipal
	if total > opts.ops {
		total = opts.ops
	}
	rec := newRecorder(total)
	var cursor int64

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= total {
					return nil
				}
				p := i % principals
				code := codes[p][i/principals]
				t0 := time.Now()
				res, err := engine.VerifyResponse(gctx, "backup-"+strconv.Itoa(p), goFactor.FactorBackupCode, code)
				d := time.Since(t0)
				if err != nil {
					rec.fail(d)
					continue
				}
				rec.ok(d, res.Outcome)
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return phaseStats{}, err
	}
	return rec.stats(time.Since(start)), nil
}

func flip(secret string) string {
	if secret == "" {
		return "0"
	}
	b := []byte(secret)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}

type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	outcomes  map[goFactor.Outcome]int
	failures  int
}

func newRecorder(capacity int) *recorder {
	return &recorder{
		latencies: make([]time.Duration, 0, capacity),
		outcomes:  make(map[goFactor.Outcome]int),
	}
}

func (r *recorder) ok(d time.Duration, o goFactor.Outcome) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.outcomes[o]++
	r.mu.Unlock()
}

func (r *recorder) fail(d time.Duration) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.failures++
	r.mu.Unlock()
}

func (r *recorder) stats(total time.Duration) phaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := computeStats(total, r.latencies, r.failures)
	s.outcomes = r.outcomes
	return s
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int
	outcomes map[goFactor.Outcome]int
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
	for _, o := range []goFactor.Outcome{
		goFactor.ResultSuccess,
		goFactor.ResultRetry,
		goFactor.ResultAttemptsExhausted,
		goFactor.ResultExpired,
		goFactor.ResultNotFound,
	} {
		if n := s.outcomes[o]; n > 0 {
			fmt.Printf("  %s=%d\n", o, n)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
