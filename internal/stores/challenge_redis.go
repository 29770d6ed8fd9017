package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersion1 = 1
	challengeMaxRetries     = 32
	maxFieldLength          = 65535
)

// RedisChallengeStore persists one versioned binary record per
// (principal, kind) key. Mutations run as WATCH/MULTI transactions.
//
// Expiry timestamps are stored as Unix nanoseconds: monotonic readings do
// not survive a process boundary, so this backend compares wall-clock time.
type RedisChallengeStore struct {
	redis     redis.UniversalClient
	prefix    string
	now       func() time.Time
	retention time.Duration
}

func NewRedisChallengeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time, retention time.Duration) *RedisChallengeStore {
	if prefix == "" {
		prefix = "gfc"
	}
	if now == nil {
		now = time.Now
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisChallengeStore{
		redis:     redisClient,
		prefix:    prefix,
		now:       now,
		retention: retention,
	}
}

func (s *RedisChallengeStore) key(principal string, kind uint8) string {
	// kind precedes the principal so a ':' inside the principal stays unambiguous
	return s.prefix + ":" + strconv.Itoa(int(kind)) + ":" + principal
}

func (s *RedisChallengeStore) Issue(ctx context.Context, c Challenge) error {
	if err := validateChallenge(c); err != nil {
		return err
	}
	encoded, err := encodeChallenge(&c)
	if err != nil {
		return err
	}

	ttl := c.ExpiresAt.Sub(c.IssuedAt) + s.retention
	if err := s.redis.Set(ctx, s.key(c.Principal, c.Kind), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *RedisChallengeStore) Peek(ctx context.Context, principal string, kind uint8) (Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(principal, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return Challenge{}, err
	}
	record.Principal = principal
	record.Kind = kind
	now := s.now()
	if Retired(now, record.ExpiresAt, s.retention) {
		return Challenge{}, ErrChallengeNotFound
	}
	if Expired(now, record.ExpiresAt) {
		return *record, ErrChallengeExpired
	}
	return *record, nil
}

func (s *RedisChallengeStore) RecordAttempt(
	ctx context.Context,
	principal string,
	kind uint8,
	challengeID string,
	matched bool,
) (AttemptOutcome, error) {
	key := s.key(principal, kind)

	del := func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < challengeMaxRetries; i++ {
		var outcome AttemptOutcome

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					outcome = AttemptOutcome{Result: AttemptNotFound}
					return nil
				}
				return err
			}

			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}
			if record.ID != challengeID {
				outcome = AttemptOutcome{Result: AttemptNotFound}
				return nil
			}

			now := s.now()
			if Retired(now, record.ExpiresAt, s.retention) {
				outcome = AttemptOutcome{Result: AttemptNotFound}
				return del(tx)
			}
			if Expired(now, record.ExpiresAt) {
				// left in place; the key TTL reaps it after retention
				outcome = AttemptOutcome{Result: AttemptExpired}
				return nil
			}
			if matched {
				outcome = AttemptOutcome{Result: AttemptSuccess}
				return del(tx)
			}

			record.AttemptsRemaining--
			if record.AttemptsRemaining <= 0 {
				outcome = AttemptOutcome{Result: AttemptExhausted}
				return del(tx)
			}

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			ttl := record.ExpiresAt.Sub(now) + s.retention
			outcome = AttemptOutcome{Result: AttemptRetry, Remaining: record.AttemptsRemaining}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrChallengeInvalid) {
				return AttemptOutcome{}, err
			}
			return AttemptOutcome{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return outcome, nil
	}

	return AttemptOutcome{}, fmt.Errorf("%w: transaction contention", ErrChallengeBackend)
}

func (s *RedisChallengeStore) Delete(ctx context.Context, principal string, kind uint8) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(principal, kind)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// Sweep is a no-op: Redis key TTLs reap records once retention has elapsed.
func (s *RedisChallengeStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

func encodeChallenge(record *Challenge) ([]byte, error) {
	if record.AttemptsRemaining < 0 || record.AttemptsRemaining > maxFieldLength {
		return nil, ErrChallengeInvalid
	}
	if len(record.ID) > maxFieldLength || len(record.Secret) > maxFieldLength {
		return nil, fmt.Errorf("%w: field length exceeded", ErrChallengeInvalid)
	}

	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, uint16(record.AttemptsRemaining)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := writeField(&buf, record.ID); err != nil {
		return nil, err
	}
	if err := writeField(&buf, record.Secret); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrChallengeInvalid
	}
	if version != challengeRecordVersion1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrChallengeInvalid, version)
	}

	var (
		attempts           uint16
		issuedAt, expireAt int64
	)
	if err := binary.Read(reader, binary.BigEndian, &attempts); err != nil {
		return nil, ErrChallengeInvalid
	}
	if err := binary.Read(reader, binary.BigEndian, &issuedAt); err != nil {
		return nil, ErrChallengeInvalid
	}
	if err := binary.Read(reader, binary.BigEndian, &expireAt); err != nil {
		return nil, ErrChallengeInvalid
	}

	id, err := readField(reader)
	if err != nil {
		return nil, err
	}
	secret, err := readField(reader)
	if err != nil {
		return nil, err
	}

	return &Challenge{
		ID:                id,
		Secret:            secret,
		IssuedAt:          time.Unix(0, issuedAt),
		ExpiresAt:         time.Unix(0, expireAt),
		AttemptsRemaining: int(attempts),
	}, nil
}

func writeField(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readField(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", ErrChallengeInvalid
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", ErrChallengeInvalid
	}
	return string(raw), nil
}
