package stores

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backupVaults(t *testing.T) map[string]BackupVault {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]BackupVault{
		"memory": NewMemoryBackupVault(4),
		"redis":  NewRedisBackupVault(client, "test:b"),
	}
}

func digestOf(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func TestBackupVaultContract(t *testing.T) {
	for name, vault := range backupVaults(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, b, c := digestOf("a"), digestOf("b"), digestOf("c")

			require.NoError(t, vault.Replace(ctx, "alice", [][32]byte{a, b}))
			n, err := vault.Remaining(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			ok, err := vault.Consume(ctx, "alice", a)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = vault.Consume(ctx, "alice", a)
			require.NoError(t, err)
			assert.False(t, ok, "digest must be single use")

			ok, err = vault.Consume(ctx, "bob", b)
			require.NoError(t, err)
			assert.False(t, ok, "digest must be scoped to its principal")

			require.NoError(t, vault.Replace(ctx, "alice", [][32]byte{c}))
			ok, err = vault.Consume(ctx, "alice", b)
			require.NoError(t, err)
			assert.False(t, ok, "replace must drop the previous batch")

			n, err = vault.Remaining(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = vault.Remaining(ctx, "nobody")
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			require.ErrorIs(t, vault.Replace(ctx, "", nil), ErrBackupVaultInvalid)
		})
	}
}

func TestBackupVaultConcurrentConsume(t *testing.T) {
	for name, vault := range backupVaults(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := digestOf("only")
			require.NoError(t, vault.Replace(ctx, "alice", [][32]byte{d}))

			var (
				wg        sync.WaitGroup
				successes atomic.Int32
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, err := vault.Consume(ctx, "alice", d); err == nil && ok {
						successes.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), successes.Load())
		})
	}
}
