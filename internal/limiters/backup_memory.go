package limiters

import (
	"context"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

const DefaultShards = 64

type failureWindow struct {
	count   int
	resetAt time.Time
}

type limiterShard struct {
	mu      sync.Mutex
	windows map[string]failureWindow
}

// MemoryBackupCodeLimiter is the in-process counterpart of BackupCodeLimiter
// with identical counting semantics. Principals are spread over lock stripes,
// and windows past their cooldown are dropped lazily or by Sweep.
type MemoryBackupCodeLimiter struct {
	shards      []limiterShard
	maxAttempts int
	cooldown    time.Duration
	now         func() time.Time
}

func NewMemoryBackupCodeLimiter(cfg BackupCodeConfig, now func() time.Time) *MemoryBackupCodeLimiter {
	if now == nil {
		now = time.Now
	}
	n := cfg.Shards
	if n <= 0 {
		n = DefaultShards
	}
	l := &MemoryBackupCodeLimiter{
		shards:      make([]limiterShard, n),
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
		now:         now,
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]failureWindow)
	}
	return l
}

func (l *MemoryBackupCodeLimiter) enabled() bool {
	return l != nil && l.maxAttempts > 0
}

func (l *MemoryBackupCodeLimiter) shard(principal string) *limiterShard {
	return &l.shards[murmur3.Sum32([]byte(principal))%uint32(len(l.shards))]
}

// window returns the live window for principal. Caller holds sh.mu.
func (l *MemoryBackupCodeLimiter) window(sh *limiterShard, principal string, now time.Time) failureWindow {
	w, ok := sh.windows[principal]
	if ok && !now.Before(w.resetAt) {
		delete(sh.windows, principal)
		return failureWindow{}
	}
	return w
}

// Reserve claims one redemption attempt for principal. It fails with
// ErrBackupCodeRateLimited once MaxAttempts are claimed inside the cooldown
// window; last reports that this claim spent the final attempt.
func (l *MemoryBackupCodeLimiter) Reserve(ctx context.Context, principal string) (bool, error) {
	if !l.enabled() {
		return false, nil
	}
	sh := l.shard(principal)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := l.now()
	w := l.window(sh, principal, now)
	if w.count >= l.maxAttempts {
		return false, ErrBackupCodeRateLimited
	}
	if w.count == 0 {
		w.resetAt = now.Add(l.cooldown)
	}
	w.count++
	sh.windows[principal] = w
	return w.count >= l.maxAttempts, nil
}

func (l *MemoryBackupCodeLimiter) Reset(ctx context.Context, principal string) error {
	if !l.enabled() {
		return nil
	}
	sh := l.shard(principal)
	sh.mu.Lock()
	delete(sh.windows, principal)
	sh.mu.Unlock()
	return nil
}

// Sweep drops windows whose cooldown has passed, one stripe at a time.
func (l *MemoryBackupCodeLimiter) Sweep(ctx context.Context) (int, error) {
	if l == nil {
		return 0, nil
	}
	removed := 0
	for i := range l.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh := &l.shards[i]
		sh.mu.Lock()
		now := l.now()
		for principal, w := range sh.windows {
			if !now.Before(w.resetAt) {
				delete(sh.windows, principal)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked windows, stale ones included.
func (l *MemoryBackupCodeLimiter) Len() int {
	n := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}
