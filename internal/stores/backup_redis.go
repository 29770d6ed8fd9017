package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackupVault stores one Redis set of digests per principal. Consuming a
// code removes it with SREM, which reports success to exactly one caller.
type RedisBackupVault struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisBackupVault(redisClient redis.UniversalClient, prefix string) *RedisBackupVault {
	if prefix == "" {
		prefix = "gfb"
	}
	return &RedisBackupVault{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (v *RedisBackupVault) key(principal string) string {
	return v.prefix + ":" + principal
}

func (v *RedisBackupVault) Replace(ctx context.Context, principal string, digests [][32]byte) error {
	if principal == "" {
		return ErrBackupVaultInvalid
	}
	key := v.key(principal)
	members := make([]interface{}, 0, len(digests))
	for _, d := range digests {
		members = append(members, string(d[:]))
	}

	_, err := v.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackupVaultBackend, err)
	}
	return nil
}

func (v *RedisBackupVault) Consume(ctx context.Context, principal string, digest [32]byte) (bool, error) {
	n, err := v.redis.SRem(ctx, v.key(principal), string(digest[:])).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackupVaultBackend, err)
	}
	return n == 1, nil
}

func (v *RedisBackupVault) Remaining(ctx context.Context, principal string) (int, error) {
	n, err := v.redis.SCard(ctx, v.key(principal)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackupVaultBackend, err)
	}
	return int(n), nil
}
