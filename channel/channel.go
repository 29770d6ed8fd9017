package channel

import (
	"context"
	"errors"
	"sync"

	goFactor "github.com/MrEthical07/goFactor"
)

// ErrNoDelivery is returned by Recorder.Last when nothing was delivered.
var ErrNoDelivery = errors.New("no delivery recorded")

// Func adapts an ordinary function to goFactor.DeliveryChannel.
type Func func(ctx context.Context, d goFactor.Delivery) error

// Deliver calls f(ctx, d).
func (f Func) Deliver(ctx context.Context, d goFactor.Delivery) error {
	return f(ctx, d)
}

// Recorder keeps every delivery in memory. If Fail is set, Deliver records
// the attempt and returns Fail.
type Recorder struct {
	Fail error

	mu         sync.Mutex
	deliveries []goFactor.Delivery
}

// Deliver records d. It honours ctx cancellation before recording.
func (r *Recorder) Deliver(ctx context.Context, d goFactor.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	fail := r.Fail
	r.mu.Unlock()
	return fail
}

// Deliveries returns a copy of all recorded deliveries in call order.
func (r *Recorder) Deliveries() []goFactor.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]goFactor.Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Last returns the most recent delivery.
func (r *Recorder) Last() (goFactor.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deliveries) == 0 {
		return goFactor.Delivery{}, ErrNoDelivery
	}
	return r.deliveries[len(r.deliveries)-1], nil
}

// SecretFor returns the secret most recently delivered to principal for kind.
func (r *Recorder) SecretFor(principal string, kind goFactor.FactorKind) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.deliveries) - 1; i >= 0; i-- {
		d := r.deliveries[i]
		if d.Principal == principal && d.Kind == kind {
			return d.Secret, true
		}
	}
	return "", false
}

// Reset drops all recorded deliveries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.deliveries = nil
	r.mu.Unlock()
}
