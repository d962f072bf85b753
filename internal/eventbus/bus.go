// Package eventbus fans classified events out to in-process subscribers.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// ErrTimeout is returned by Wait when no matching event arrived in time.
var ErrTimeout = errors.New("timed out waiting for event")

// Handler receives events. Handlers run on the publisher's goroutine and must
// not block or call Publish.
type Handler func(models.Event)

// Subscription is a registered handler.
type Subscription struct {
	id      uint64
	types   map[models.EventType]struct{}
	handler Handler
	bus     *Bus
}

// Unsubscribe removes the subscription from its bus. Safe to call twice.
func (s *Subscription) Unsubscribe() {
	s.bus.Unsubscribe(s)
}

func (s *Subscription) accepts(t models.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus delivers every published event to matching subscribers in registration
// order before Publish returns.
type Bus struct {
	publishMu sync.Mutex

	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64

	logger zerolog.Logger
}

// New creates an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "eventbus").Logger()}
}

// Subscribe registers h for the given event types, or for all types when none
// are given.
func (b *Bus) Subscribe(h Handler, types ...models.EventType) *Subscription {
	sub := &Subscription{handler: h, bus: b}
	if len(types) > 0 {
		sub.types = make(map[models.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.register(sub)
	return sub
}

func (b *Bus) register(sub *Subscription) {
	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Unsubscribe removes sub. An in-progress Publish may still deliver to it.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount reports the number of registered subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every subscriber registered when the call started.
// Concurrent publishes are serialized so all subscribers observe one order.
func (b *Bus) Publish(ev models.Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	snapshot := make([]*Subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.accepts(ev.Type) {
			continue
		}
		b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *Subscription, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event", ev.Type.String()).
				Msg("Subscriber panicked")
		}
	}()
	sub.handler(ev)
}

// Waiter is a one-shot subscription created by Expect.
type Waiter struct {
	matcher Matcher
	sub     *Subscription
	ch      chan models.Event
	once    sync.Once
}

// Expect registers a one-shot waiter for the first event accepted by m.
// Register before triggering the action whose result is awaited.
func (b *Bus) Expect(m Matcher) *Waiter {
	w := &Waiter{matcher: m, ch: make(chan models.Event, 1)}
	w.sub = &Subscription{bus: b}
	w.sub.handler = func(ev models.Event) {
		if !m.Match(ev) {
			return
		}
		w.once.Do(func() {
			w.ch <- ev
			b.Unsubscribe(w.sub)
		})
	}
	b.register(w.sub)
	return w
}

// Wait blocks until the waiter fires, timeout elapses or ctx is done. The
// waiter is removed from the bus on every path.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (models.Event, error) {
	defer w.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.ch:
		return ev, nil
	case <-timer.C:
		return models.Event{}, ErrTimeout
	case <-ctx.Done():
		return models.Event{}, ctx.Err()
	}
}

// Cancel removes the waiter without waiting.
func (w *Waiter) Cancel() {
	w.sub.Unsubscribe()
}

// Matcher returns the matcher the waiter was registered with.
func (w *Waiter) Matcher() Matcher {
	return w.matcher
}

// WaitFor subscribes and waits in one call. Use Expect when the awaited event
// is caused by something the caller does afterwards.
func (b *Bus) WaitFor(ctx context.Context, m Matcher, timeout time.Duration) (models.Event, error) {
	return b.Expect(m).Wait(ctx, timeout)
}
