// Package bus is the in-process channel that carries rate snapshots from the
// poller to every interested listener.
//
// Delivery rules:
//   - a publish reaches each subscriber registered when Publish was called, once;
//   - subscribers added later do not see earlier publishes;
//   - Publish returns after every handler has returned, so a single publisher
//     calling Publish sequentially delivers to each subscriber in order;
//   - no ordering is promised between different subscribers of one publish.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"service-rates/internal"
	"service-rates/internal/metrics"
)

type SubscriptionID = uuid.UUID

// Handler receives one snapshot. Returned errors are reported back to the
// publisher and do not affect other subscribers.
type Handler func(ctx context.Context, snap internal.RateSnapshot) error

type subscriber struct {
	id      SubscriptionID
	name    string
	handler Handler
}

type Options struct {
	// MaxWorkers bounds concurrent handler calls per publish. Defaults to GOMAXPROCS.
	MaxWorkers int
	Metrics    *metrics.RateMetrics
	Logger     *log.Logger
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[SubscriptionID]subscriber
	order  []SubscriptionID
	opts   Options
	logger *log.Logger
}

func New(opts Options) *Bus {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		subs:   make(map[SubscriptionID]subscriber),
		opts:   opts,
		logger: logger,
	}
}

func (b *Bus) Subscribe(handler Handler) SubscriptionID {
	return b.SubscribeNamed("", handler)
}

// SubscribeNamed is Subscribe with a label used in logs and errors.
func (b *Bus) SubscribeNamed(name string, handler Handler) SubscriptionID {
	id := uuid.New()
	if name == "" {
		name = id.String()
	}

	b.mu.Lock()
	b.subs[id] = subscriber{id: id, name: name, handler: handler}
	b.order = append(b.order, id)
	n := len(b.subs)
	b.mu.Unlock()

	b.opts.Metrics.SetSubscribers(n)
	return id
}

// Unsubscribe reports whether id was registered. A publish already in
// progress may still deliver to it.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	_, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		b.opts.Metrics.SetSubscribers(n)
	}
	return ok
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) Publish(ctx context.Context, snap internal.RateSnapshot) error {
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.subs[id])
	}
	b.mu.RUnlock()

	b.opts.Metrics.ObservePublish(snap.FetchedAt(), snap.Len())

	switch len(targets) {
	case 0:
		return nil
	case 1:
		return b.deliver(ctx, targets[0], snap)
	}

	workers := b.opts.MaxWorkers
	if workers > len(targets) {
		workers = len(targets)
	}
	p := pool.New().WithMaxGoroutines(workers).WithErrors()
	for _, sub := range targets {
		sub := sub
		p.Go(func() error {
			return b.deliver(ctx, sub, snap)
		})
	}
	return p.Wait()
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, snap internal.RateSnapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panic: %v", sub.name, r)
		}
		if err != nil {
			b.logger.Printf("bus: delivery failed: %v", err)
		}
		b.opts.Metrics.ObserveDelivery(err)
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("subscriber %s: %w", sub.name, err)
	}
	if sub.handler == nil {
		return errors.New("subscriber " + sub.name + ": nil handler")
	}
	if err := sub.handler(ctx, snap); err != nil {
		return fmt.Errorf("subscriber %s: %w", sub.name, err)
	}
	return nil
}
