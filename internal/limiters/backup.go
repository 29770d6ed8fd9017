package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrBackupCodeRateLimited = errors.New("backup code rate limited")
	ErrBackupCodeUnavailable = errors.New("backup code limiter unavailable")
)

type BackupCodeConfig struct {
	Prefix      string
	MaxAttempts int
	Cooldown    time.Duration
	// Shards is the stripe count of the in-memory limiter.
	Shards int
}

// BackupCodeLimiter counts backup code redemption attempts per principal in a
// Redis counter that expires Cooldown after the first attempt. A successful
// redemption resets it.
type BackupCodeLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
	cooldown    time.Duration
}

func NewBackupCodeLimiter(redisClient redis.UniversalClient, cfg BackupCodeConfig) *BackupCodeLimiter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "gfl"
	}
	return &BackupCodeLimiter{
		redis:       redisClient,
		prefix:      prefix,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
	}
}

func (l *BackupCodeLimiter) key(principal string) string {
	return l.prefix + ":backup:" + principal
}

func (l *BackupCodeLimiter) enabled() bool {
	return l != nil && l.redis != nil && l.maxAttempts > 0
}

// Reserve claims one redemption attempt with a single INCR, so concurrent
// callers can never claim more than MaxAttempts per window. The counter
// expires Cooldown after the first claim.
func (l *BackupCodeLimiter) Reserve(ctx context.Context, principal string) (bool, error) {
	if !l.enabled() {
		return false, nil
	}
	count, err := l.redis.Incr(ctx, l.key(principal)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackupCodeUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(principal), l.cooldown).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrBackupCodeUnavailable, err)
		}
	}
	if int(count) > l.maxAttempts {
		return false, ErrBackupCodeRateLimited
	}
	return int(count) == l.maxAttempts, nil
}

func (l *BackupCodeLimiter) Reset(ctx context.Context, principal string) error {
	if !l.enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(principal)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupCodeUnavailable, err)
	}
	return nil
}
