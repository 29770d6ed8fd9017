package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	goFactor "github.com/MrEthical07/goFactor"
)

var (
	ErrNilWriter = errors.New("kafka writer is nil")
	ErrPublish   = errors.New("kafka publish failed")
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Message is the JSON document written to the topic.
type Message struct {
	ChallengeID string    `json:"challenge_id"`
	Principal   string    `json:"principal"`
	Factor      string    `json:"factor"`
	Secret      string    `json:"secret"`
	ExpiresAt   time.Time `json:"expires_at"`
	SentAt      time.Time `json:"sent_at"`
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic sets the per-message topic. Leave unset when the writer already
// has a Topic; kafka-go rejects messages that set both.
func WithTopic(topic string) Option {
	return func(p *Publisher) { p.topic = topic }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTimeout bounds a single publish. Zero means the caller's context only.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

// WithClock overrides the SentAt source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// Publisher implements goFactor.DeliveryChannel over Kafka.
type Publisher struct {
	w       MessageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewPublisher wraps w. w is usually a *kafka.Writer from NewWriter.
func NewPublisher(w MessageWriter, opts ...Option) (*Publisher, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	p := &Publisher{
		w:       w,
		timeout: 5 * time.Second,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Deliver encodes d and writes it synchronously.
func (p *Publisher) Deliver(ctx context.Context, d goFactor.Delivery) error {
	value, err := json.Marshal(Message{
		ChallengeID: d.ChallengeID,
		Principal:   d.Principal,
		Factor:      d.Kind.String(),
		Secret:      d.Secret,
		ExpiresAt:   d.ExpiresAt.UTC(),
		SentAt:      p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPublish, err)
	}

	msg := kafkago.Message{
		Topic: p.topic,
		Key:   []byte(d.ChallengeID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "factor", Value: []byte(d.Kind.String())},
		},
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka delivery publish failed",
			zap.String("factor", d.Kind.String()),
			zap.String("challenge_id", d.ChallengeID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// WriterConfig holds the knobs NewWriter exposes.
type WriterConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	BatchTimeout time.Duration
}

// NewWriter builds a synchronous *kafka.Writer suited to one-message-per-call
// delivery hand-off.
func NewWriter(cfg WriterConfig, logger *zap.Logger) (*kafkago.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}, nil
}
