package transport

import (
	"context"
	"sync"
)

// Memory is an in-process PubSub. Payloads are copied per subscriber.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[*stream]struct{}
	closed bool
}

// NewMemory creates an empty in-process transport.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*stream]struct{})}
}

func (m *Memory) Subscribe(_ context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	var s *stream
	s = newStream(func() {
		m.mu.Lock()
		delete(m.subs[channel], s)
		m.mu.Unlock()
	})
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*stream]struct{})
	}
	m.subs[channel][s] = struct{}{}
	return s, nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*stream, 0, len(m.subs[channel]))
	for s := range m.subs[channel] {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		s.deliver(cp)
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Fail ends every open subscription with err, as a dropped connection would.
func (m *Memory) Fail(err error) {
	for _, s := range m.snapshot() {
		s.finish(err)
	}
}

// SubscriberCount reports open subscriptions on channel.
func (m *Memory) SubscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	for _, s := range m.snapshot() {
		s.finish(nil)
	}
	return nil
}

func (m *Memory) snapshot() []*stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*stream
	for _, set := range m.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	return all
}
