package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goFactor "github.com/MrEthical07/goFactor"
)

type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafkago.Message
	err      error
	deadline bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

var _ goFactor.DeliveryChannel = (*Publisher)(nil)

func TestNewPublisherRequiresWriter(t *testing.T) {
	_, err := NewPublisher(nil)
	require.ErrorIs(t, err, ErrNilWriter)
}

func TestDeliverWritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := NewPublisher(w, WithTopic("mfa.deliveries"), WithClock(func() time.Time { return sent }))
	require.NoError(t, err)

	d := goFactor.Delivery{
		ChallengeID: "6f1c3a0e-1111-4222-8333-444455556666",
		Principal:   "alice",
		Kind:        goFactor.FactorOTPSMS,
		Secret:      "042917",
		ExpiresAt:   sent.Add(5 * time.Minute),
	}
	require.NoError(t, p.Deliver(context.Background(), d))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "mfa.deliveries", msg.Topic)
	assert.Equal(t, d.ChallengeID, string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "factor", msg.Headers[0].Key)
	assert.Equal(t, "otp_sms", string(msg.Headers[0].Value))
	assert.True(t, w.deadline, "default timeout should bound the write")

	var body Message
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, d.ChallengeID, body.ChallengeID)
	assert.Equal(t, "alice", body.Principal)
	assert.Equal(t, "otp_sms", body.Factor)
	assert.Equal(t, "042917", body.Secret)
	assert.True(t, body.ExpiresAt.Equal(d.ExpiresAt))
	assert.True(t, body.SentAt.Equal(sent))
}

func TestDeliverWithoutTimeoutUsesCallerContext(t *testing.T) {
	w := &fakeWriter{}
	p, err := NewPublisher(w, WithTimeout(0))
	require.NoError(t, err)

	require.NoError(t, p.Deliver(context.Background(), goFactor.Delivery{ChallengeID: "c"}))
	assert.False(t, w.deadline)
	assert.Empty(t, w.msgs[0].Topic)
}

func TestDeliverWrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p, err := NewPublisher(w)
	require.NoError(t, err)

	err = p.Deliver(context.Background(), goFactor.Delivery{ChallengeID: "c", Secret: "123456"})
	require.ErrorIs(t, err, ErrPublish)
	assert.NotContains(t, err.Error(), "123456")
}

func TestEngineDeliveryFailureThroughPublisher(t *testing.T) {
	cfg := goFactor.DefaultConfig()
	cfg.Store.SweepInterval = 0
	cfg.BackupCodes.Pepper = []byte("kafka-test-pepper")
	e, err := goFactor.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(e.Close)

	p, err := NewPublisher(&fakeWriter{err: errors.New("broker down")})
	require.NoError(t, err)

	id, err := e.BeginChallenge(context.Background(), "alice", goFactor.FactorOTPEmail, p)
	require.ErrorIs(t, err, goFactor.ErrDeliveryFailed)
	assert.NotEmpty(t, id)
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(WriterConfig{Topic: "t"}, nil)
	require.Error(t, err)
	_, err = NewWriter(WriterConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.Error(t, err)

	w, err := NewWriter(WriterConfig{Brokers: []string{"localhost:9092"}, Topic: "mfa.deliveries"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mfa.deliveries", w.Topic)
	assert.Equal(t, 3, w.MaxAttempts)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
	require.NoError(t, w.Close())
}
