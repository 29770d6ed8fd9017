package stores

import (
	"context"
	"sync"
	"time"
)

type challengeKey struct {
	principal string
	kind      uint8
}

type challengeShard struct {
	mu      sync.RWMutex
	records map[challengeKey]*Challenge
}

// MemoryChallengeStore keeps challenges in process memory behind lock stripes.
type MemoryChallengeStore struct {
	shards    []challengeShard
	now       func() time.Time
	retention time.Duration
}

// NewMemoryChallengeStore builds a store with the given stripe count. now
// defaults to time.Now; retention delays Sweep's removal of expired records so
// that late verifiers still observe ErrChallengeExpired instead of a miss.
func NewMemoryChallengeStore(shards int, now func() time.Time, retention time.Duration) *MemoryChallengeStore {
	shards = normalizeShards(shards)
	if now == nil {
		now = time.Now
	}
	if retention < 0 {
		retention = 0
	}
	s := &MemoryChallengeStore{
		shards:    make([]challengeShard, shards),
		now:       now,
		retention: retention,
	}
	for i := range s.shards {
		s.shards[i].records = make(map[challengeKey]*Challenge)
	}
	return s
}

func (s *MemoryChallengeStore) shard(principal string, kind uint8) *challengeShard {
	return &s.shards[shardFor(len(s.shards), principal, kind)]
}

func (s *MemoryChallengeStore) Issue(ctx context.Context, c Challenge) error {
	if err := validateChallenge(c); err != nil {
		return err
	}
	c.Consumed = false

	sh := s.shard(c.Principal, c.Kind)
	sh.mu.Lock()
	sh.records[challengeKey{c.Principal, c.Kind}] = &c
	sh.mu.Unlock()
	return nil
}

func (s *MemoryChallengeStore) Peek(ctx context.Context, principal string, kind uint8) (Challenge, error) {
	sh := s.shard(principal, kind)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[challengeKey{principal, kind}]
	if !ok || rec.Consumed {
		return Challenge{}, ErrChallengeNotFound
	}
	now := s.now()
	if Retired(now, rec.ExpiresAt, s.retention) {
		return Challenge{}, ErrChallengeNotFound
	}
	if Expired(now, rec.ExpiresAt) {
		return *rec, ErrChallengeExpired
	}
	return *rec, nil
}

func (s *MemoryChallengeStore) RecordAttempt(
	ctx context.Context,
	principal string,
	kind uint8,
	challengeID string,
	matched bool,
) (AttemptOutcome, error) {
	key := challengeKey{principal, kind}
	sh := s.shard(principal, kind)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok || rec.Consumed || rec.ID != challengeID {
		return AttemptOutcome{Result: AttemptNotFound}, nil
	}
	now := s.now()
	if Retired(now, rec.ExpiresAt, s.retention) {
		delete(sh.records, key)
		return AttemptOutcome{Result: AttemptNotFound}, nil
	}
	if Expired(now, rec.ExpiresAt) {
		return AttemptOutcome{Result: AttemptExpired}, nil
	}
	if matched {
		rec.Consumed = true
		delete(sh.records, key)
		return AttemptOutcome{Result: AttemptSuccess}, nil
	}

	rec.AttemptsRemaining--
	if rec.AttemptsRemaining <= 0 {
		delete(sh.records, key)
		return AttemptOutcome{Result: AttemptExhausted}, nil
	}
	return AttemptOutcome{Result: AttemptRetry, Remaining: rec.AttemptsRemaining}, nil
}

func (s *MemoryChallengeStore) Delete(ctx context.Context, principal string, kind uint8) (bool, error) {
	key := challengeKey{principal, kind}
	sh := s.shard(principal, kind)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	_, ok := sh.records[key]
	delete(sh.records, key)
	return ok, nil
}

// Sweep holds one stripe lock at a time, so it never blocks the whole store.
func (s *MemoryChallengeStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for i := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh := &s.shards[i]
		sh.mu.Lock()
		now := s.now()
		for key, rec := range sh.records {
			if rec.Consumed || Expired(now, rec.ExpiresAt.Add(s.retention)) {
				delete(sh.records, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of records held, expired ones included.
func (s *MemoryChallengeStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}
