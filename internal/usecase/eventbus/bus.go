// Package eventbus is the in-process change-notification stream. Registry
// mutations and execution lifecycle events are published here.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"aura-agents/internal/domain"
)

// queueSize bounds each subscriber's backlog. Publish never waits on a
// subscriber: once its queue is full further events for it are dropped.
const queueSize = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id        uint64
	eventType domain.EventType // empty = every event
	handler   domain.EventHandler
	queue     chan delivery
	quit      chan struct{}
	stopOnce  sync.Once
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber receives
// events on its own goroutine in publish order.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Publish enqueues event for every matching subscriber without blocking.
// A subscriber whose queue is full misses the event, and nothing is
// published once ctx is done.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() || ctx.Err() != nil {
		return
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.eventType == "" || s.eventType == event.Type {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.queue <- delivery{ctx: ctx, event: event}:
		case <-s.quit:
		default:
			n := b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"subscriber", s.id,
				"dropped_total", n,
			)
		}
	}
}

// Dropped returns how many deliveries were discarded because a subscriber's
// queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscription{
		id:        b.nextID.Add(1),
		eventType: eventType,
		handler:   handler,
		queue:     make(chan delivery, queueSize),
		quit:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)

	return func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s.id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.stop()
	}
}

// run delivers queued events until the subscription stops, then drains
// whatever was already queued.
func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case d := <-sub.queue:
			b.deliver(sub, d)
		case <-sub.quit:
			for {
				select {
				case d := <-sub.queue:
					b.deliver(sub, d)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Close prevents new publishes and waits for queued events to be handled.
// Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed.Swap(true) {
		b.mu.Unlock()
		return
	}
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	b.wg.Wait()
}
