// Package transport abstracts the pub/sub backbone shared with peer processes.
package transport

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrNotConnected is returned when the backing connection is down.
	ErrNotConnected = errors.New("transport not connected")
)

// PubSub is a channel-addressed publish/subscribe transport.
type PubSub interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a stream of payloads from one channel. Messages is closed
// when the stream ends; Err then reports why (nil after Close or ctx done).
type Subscription interface {
	Messages() <-chan []byte
	Err() error
	Close() error
}

const streamBuffer = 256

// stream is the Subscription shared by every implementation.
type stream struct {
	ch   chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	once    sync.Once
	err     error
	onClose func()
}

func newStream(onClose func()) *stream {
	return &stream{
		ch:      make(chan []byte, streamBuffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *stream) Messages() <-chan []byte { return s.ch }

func (s *stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *stream) Close() error {
	s.finish(nil)
	return nil
}

// deliver blocks until the payload is queued or the stream ends.
func (s *stream) deliver(payload []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- payload:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) finish(err error) {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.err = err
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}
