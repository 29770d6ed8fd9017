package stores

import (
	"context"
	"sync"
)

type backupShard struct {
	mu    sync.Mutex
	codes map[string]map[[32]byte]bool
}

// MemoryBackupVault keeps digests in process memory. A consumed digest stays
// in the set flagged used, so it can never be redeemed again.
type MemoryBackupVault struct {
	shards []backupShard
}

func NewMemoryBackupVault(shards int) *MemoryBackupVault {
	shards = normalizeShards(shards)
	v := &MemoryBackupVault{shards: make([]backupShard, shards)}
	for i := range v.shards {
		v.shards[i].codes = make(map[string]map[[32]byte]bool)
	}
	return v
}

func (v *MemoryBackupVault) shard(principal string) *backupShard {
	return &v.shards[shardFor(len(v.shards), principal, 0)]
}

func (v *MemoryBackupVault) Replace(ctx context.Context, principal string, digests [][32]byte) error {
	if principal == "" {
		return ErrBackupVaultInvalid
	}
	set := make(map[[32]byte]bool, len(digests))
	for _, d := range digests {
		set[d] = false
	}

	sh := v.shard(principal)
	sh.mu.Lock()
	sh.codes[principal] = set
	sh.mu.Unlock()
	return nil
}

func (v *MemoryBackupVault) Consume(ctx context.Context, principal string, digest [32]byte) (bool, error) {
	sh := v.shard(principal)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.codes[principal]
	if !ok {
		return false, nil
	}
	used, exists := set[digest]
	if !exists || used {
		return false, nil
	}
	set[digest] = true
	return true, nil
}

func (v *MemoryBackupVault) Remaining(ctx context.Context, principal string) (int, error) {
	sh := v.shard(principal)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	n := 0
	for _, used := range sh.codes[principal] {
		if !used {
			n++
		}
	}
	return n, nil
}
