//go:build integration
// +build integration

package stores

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis Hook that counts commands and pipeline round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func newCountedClient(t *testing.T) (*redis.Client, *cmdCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 1})
	t.Cleanup(func() { _ = rdb.Close() })

	counter := &cmdCounter{}
	rdb.AddHook(counter)
	// connection handshake noise is excluded from every budget
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.Reset()
	return rdb, counter
}

func TestChallengeIssueAndPeekRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewRedisChallengeStore(rdb, "gfb", clock.Now, time.Minute)
	ctx := context.Background()

	if err := store.Issue(ctx, newChallenge(clock, "c1", 3)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if n := counter.commands.Load(); n != 1 {
		t.Errorf("Issue used %d commands; budget is 1 (SET)", n)
	}

	counter.Reset()
	if _, err := store.Peek(ctx, "alice", 1); err != nil {
		t.Fatalf("peek: %v", err)
	}
	if n := counter.commands.Load(); n != 1 {
		t.Errorf("Peek used %d commands; budget is 1 (GET)", n)
	}
}

func TestChallengeRecordAttemptRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewRedisChallengeStore(rdb, "gfb", clock.Now, time.Minute)
	ctx := context.Background()

	if err := store.Issue(ctx, newChallenge(clock, "c1", 3)); err != nil {
		t.Fatalf("issue: %v", err)
	}

	for _, matched := range []bool{false, true} {
		counter.Reset()
		if _, err := store.RecordAttempt(ctx, "alice", 1, "c1", matched); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
		// WATCH, GET, MULTI/op/EXEC pipeline, UNWATCH
		if n := counter.commands.Load(); n > 6 {
			t.Errorf("RecordAttempt(matched=%v) used %d commands; budget is 6", matched, n)
		}
		if p := counter.pipelines.Load(); p > 1 {
			t.Errorf("RecordAttempt(matched=%v) used %d pipelines; budget is 1", matched, p)
		}
		t.Logf("RecordAttempt(matched=%v): %d commands, %d pipelines", matched, counter.commands.Load(), counter.pipelines.Load())
	}
}

func TestBackupVaultRedisBudget(t *testing.T) {
	rdb, counter := newCountedClient(t)
	vault := NewRedisBackupVault(rdb, "gfbv")
	ctx := context.Background()

	digests := [][32]byte{digestOf("a"), digestOf("b"), digestOf("c")}
	if err := vault.Replace(ctx, "alice", digests); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if p := counter.pipelines.Load(); p != 1 {
		t.Errorf("Replace used %d pipelines; budget is 1", p)
	}

	counter.Reset()
	if ok, err := vault.Consume(ctx, "alice", digests[0]); err != nil || !ok {
		t.Fatalf("consume: ok=%v err=%v", ok, err)
	}
	if n := counter.commands.Load(); n != 1 {
		t.Errorf("Consume used %d commands; budget is 1 (SREM)", n)
	}
}
