package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
)

// Subscriber receives the freshly loaded record list after every successful
// cycle. The slice is shared between subscribers and must not be modified.
type Subscriber interface {
	Name() string
	Receive(ctx context.Context, quakes []domain.Earthquake) error
}

// Broadcaster implements Distributor by calling each subscriber in turn. A
// subscriber that errors or panics is logged and counted; the others still
// receive the list.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    []Subscriber
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewBroadcaster creates a Broadcaster with the given initial subscribers.
func NewBroadcaster(logger *slog.Logger, metrics *observability.Metrics, subs ...Subscriber) *Broadcaster {
	return &Broadcaster{subs: subs, logger: logger, metrics: metrics}
}

// Subscribe adds a subscriber for subsequent cycles.
func (b *Broadcaster) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Subscribers returns the registered subscriber names in delivery order.
func (b *Broadcaster) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subs))
	for i, s := range b.subs {
		names[i] = s.Name()
	}
	return names
}

func (b *Broadcaster) Distribute(ctx context.Context, quakes []domain.Earthquake) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := deliver(ctx, s, quakes); err != nil {
			b.metrics.PublishErrors.WithLabelValues(s.Name()).Inc()
			b.logger.Error("subscriber failed", "subscriber", s.Name(), "count", len(quakes), "error", err)
		}
	}
}

func deliver(ctx context.Context, s Subscriber, quakes []domain.Earthquake) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Receive(ctx, quakes)
}
