package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one audit record. It never carries secrets or submitted responses.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	Principal   string            `json:"principal,omitempty"`
	Factor      string            `json:"factor,omitempty"`
	ChallengeID string            `json:"challenge_id,omitempty"`
	Outcome     string            `json:"outcome,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader through a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, _ = s.w.Write(line)
	s.mu.Unlock()
}

// ZapSink logs each event at Info, or Warn when Success is false.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := make([]zap.Field, 0, 8+len(event.Metadata))
	fields = append(fields,
		zap.Time("timestamp", event.Timestamp),
		zap.String("principal", event.Principal),
		zap.String("factor", event.Factor),
		zap.Bool("success", event.Success),
	)
	if event.ChallengeID != "" {
		fields = append(fields, zap.String("challenge_id", event.ChallengeID))
	}
	if event.Outcome != "" {
		fields = append(fields, zap.String("outcome", event.Outcome))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error_code", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if event.Success {
		s.logger.Info(event.EventType, fields...)
		return
	}
	s.logger.Warn(event.EventType, fields...)
}

// MultiSink fans each event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
