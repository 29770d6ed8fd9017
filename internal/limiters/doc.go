// Package limiters provides failure throttles that sit in front of the
// verification flows.
//
// # Limiters
//
//   - [BackupCodeLimiter] — per-principal attempt budget for backup code
//     redemption. Each redemption reserves an attempt atomically before the
//     vault is consulted. Challenge-based factors carry their own attempt
//     budget and need no separate limiter.
//   - [MemoryBackupCodeLimiter] — the same budget for single-process
//     deployments without Redis, striped by principal and swept by the
//     engine.
//
// All limiters are nil-safe: calling any method on a nil receiver, or on a
// limiter built without a Redis client, returns nil. A MaxAttempts of zero
// disables counting.
//
// # What this package must NOT do
//
//   - Import goFactor or any sibling internal package.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
