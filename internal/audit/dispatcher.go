package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering. With DropIfFull unset, Emit waits
// for queue space until its context ends.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Logger     *zap.Logger
}

// Dispatcher relays events to one sink from a single background goroutine.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	logger     *zap.Logger
	dropIfFull bool

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}

	dropped   atomic.Uint64
	panicked  atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     cfg.Logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver isolates the loop from a panicking sink; the event is lost.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", ev.EventType),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. Events refused because the queue is full or ctx ended
// count as dropped.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close flushes queued events and waits for the loop to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		<-d.finished
		if n := d.dropped.Load(); n > 0 {
			d.logger.Warn("audit events dropped", zap.Uint64("dropped", n))
		}
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics counts events lost to a panicking sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panicked.Load()
}
