package stores

import (
	"context"
	"errors"
	"time"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeInvalid  = errors.New("invalid challenge record")
	ErrChallengeBackend  = errors.New("challenge backend unavailable")
)

// Challenge is a time-bounded, single-use secret bound to (Principal, Kind).
type Challenge struct {
	ID                string
	Principal         string
	Kind              uint8
	Secret            string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
	Consumed          bool
}

// AttemptResult is the state transition applied by RecordAttempt.
type AttemptResult uint8

const (
	AttemptNotFound AttemptResult = iota
	AttemptSuccess
	AttemptRetry
	AttemptExhausted
	AttemptExpired
)

func (r AttemptResult) String() string {
	switch r {
	case AttemptSuccess:
		return "success"
	case AttemptRetry:
		return "retry"
	case AttemptExhausted:
		return "exhausted"
	case AttemptExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// AttemptOutcome reports the result of one verification attempt. Remaining is
// only meaningful for AttemptRetry.
type AttemptOutcome struct {
	Result    AttemptResult
	Remaining int
}

// ChallengeStore owns every Challenge record. Issue and RecordAttempt on the
// same (principal, kind) key are mutually exclusive.
type ChallengeStore interface {
	// Issue stores c, superseding any challenge already live for its key.
	Issue(ctx context.Context, c Challenge) error
	// Peek is read-only. An expired record is returned together with
	// ErrChallengeExpired until the retention window passes; after that the
	// key reads as missing.
	Peek(ctx context.Context, principal string, kind uint8) (Challenge, error)
	// RecordAttempt applies a comparison outcome to the challenge identified by
	// challengeID. A superseded or missing challenge yields AttemptNotFound.
	// An expired record yields AttemptExpired and is kept, so every late
	// verifier inside the retention window observes the same outcome.
	RecordAttempt(ctx context.Context, principal string, kind uint8, challengeID string, matched bool) (AttemptOutcome, error)
	// Delete removes the live challenge for the key, reporting whether one existed.
	Delete(ctx context.Context, principal string, kind uint8) (bool, error)
	// Sweep eagerly removes expired records and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Expired is the single expiry boundary test shared by every backend path:
// a record is expired once now reaches expiresAt.
func Expired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// Retired reports that an expired record has also outlived a non-zero
// retention window and must read as missing. Without retention an expired
// record stays observable until removed.
func Retired(now, expiresAt time.Time, retention time.Duration) bool {
	return retention > 0 && Expired(now, expiresAt.Add(retention))
}

func validateChallenge(c Challenge) error {
	if c.ID == "" || c.Principal == "" || c.Secret == "" {
		return ErrChallengeInvalid
	}
	if c.AttemptsRemaining <= 0 || c.AttemptsRemaining > 65535 {
		return ErrChallengeInvalid
	}
	if !c.ExpiresAt.After(c.IssuedAt) {
		return ErrChallengeInvalid
	}
	return nil
}
