package stores

import (
	"context"
	"errors"
)

var (
	ErrBackupVaultBackend = errors.New("backup vault backend unavailable")
	ErrBackupVaultInvalid = errors.New("invalid backup vault input")
)

// BackupVault owns the per-principal set of backup code digests. Plaintext
// codes never reach the vault.
type BackupVault interface {
	// Replace discards every code held for principal and stores digests unused.
	Replace(ctx context.Context, principal string, digests [][32]byte) error
	// Consume marks digest used iff it exists for principal and is unused.
	// The check and the mark are one atomic step.
	Consume(ctx context.Context, principal string, digest [32]byte) (bool, error)
	// Remaining counts unused codes for principal.
	Remaining(ctx context.Context, principal string) (int, error)
}
