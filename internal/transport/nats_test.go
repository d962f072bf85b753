package transport

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNATS_DisconnectEndsStreams(t *testing.T) {
	n := &NATS{logger: zerolog.Nop(), streams: make(map[*stream]struct{})}
	var a, b *stream
	a = newStream(func() {
		n.mu.Lock()
		delete(n.streams, a)
		n.mu.Unlock()
	})
	b = newStream(func() {
		n.mu.Lock()
		delete(n.streams, b)
		n.mu.Unlock()
	})
	n.streams[a] = struct{}{}
	n.streams[b] = struct{}{}

	n.handleDisconnect(nil, io.EOF)

	for _, s := range []*stream{a, b} {
		_, open := <-s.Messages()
		assert.False(t, open)
		assert.True(t, errors.Is(s.Err(), ErrNotConnected))
		assert.True(t, errors.Is(s.Err(), io.EOF))
	}
	assert.Empty(t, n.streams)

	// A closed connection after the drop finds nothing left to end.
	n.handleClosed(nil)
}
