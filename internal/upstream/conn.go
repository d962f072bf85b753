// Package upstream connects the bridge to the game client that produces chat
// lines and accepts commands.
package upstream

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
)

var (
	// ErrNotConnected is returned by Send when no connection is live.
	ErrNotConnected = errors.New("upstream not connected")
	// ErrClosed is returned by Run when the peer closed the stream.
	ErrClosed = errors.New("upstream closed")
)

// DefaultMaxLength is the game's chat input limit.
const DefaultMaxLength = 256

// Conn is one upstream session.
type Conn interface {
	// Run delivers each received line to fn until the stream ends or ctx is done.
	Run(ctx context.Context, fn func(line string)) error
	Send(ctx context.Context, text string) error
	Ready() bool
	Close() error
}

// DialFunc opens a new upstream session.
type DialFunc func(ctx context.Context) (Conn, error)

// Link is a stable Sender in front of whichever Conn is currently live.
type Link struct {
	cur atomic.Pointer[connBox]
}

type connBox struct{ c Conn }

// Set installs c as the live connection. nil clears it.
func (l *Link) Set(c Conn) {
	if c == nil {
		l.cur.Store(nil)
		metrics.UpstreamConnected.Set(0)
		return
	}
	l.cur.Store(&connBox{c: c})
	metrics.UpstreamConnected.Set(1)
}

// Send writes text on the live connection.
func (l *Link) Send(ctx context.Context, text string) error {
	box := l.cur.Load()
	if box == nil {
		return ErrNotConnected
	}
	return box.c.Send(ctx, text)
}

// Ready reports whether a live connection is ready for commands.
func (l *Link) Ready() bool {
	box := l.cur.Load()
	return box != nil && box.c.Ready()
}

// clean turns text into a single command line of at most max runes.
func clean(text string, max int) string {
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	if max > 0 {
		if r := []rune(text); len(r) > max {
			text = string(r[:max])
		}
	}
	return text
}
