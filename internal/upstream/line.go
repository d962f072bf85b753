package upstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const maxLineSize = 64 * 1024

// LineConn speaks newline-framed text over any byte stream (TCP or stdio).
type LineConn struct {
	rw        io.ReadWriteCloser
	maxLength int
	logger    zerolog.Logger

	writeMu sync.Mutex
	ready   atomic.Bool
	once    sync.Once
}

// NewLineConn wraps rw. maxLength bounds outbound commands; 0 uses the default.
func NewLineConn(rw io.ReadWriteCloser, maxLength int, logger zerolog.Logger) *LineConn {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &LineConn{
		rw:        rw,
		maxLength: maxLength,
		logger:    logger.With().Str("component", "upstream").Str("kind", "line").Logger(),
	}
}

// DialTCP returns a DialFunc connecting to addr.
func DialTCP(addr string, maxLength int, logger zerolog.Logger) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		d := net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial upstream %s: %w", addr, err)
		}
		return NewLineConn(c, maxLength, logger), nil
	}
}

// Run reads lines until EOF, a read error, or ctx is done.
func (c *LineConn) Run(ctx context.Context, fn func(line string)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.ready.Store(true)
	defer c.ready.Store(false)
	c.logger.Info().Msg("Upstream connected")

	sc := bufio.NewScanner(c.rw)
	sc.Buffer(make([]byte, 4096), maxLineSize)
	for sc.Scan() {
		fn(strings.TrimRight(sc.Text(), "\r"))
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("read upstream: %w", err)
	}
	return ErrClosed
}

// Send writes one command line.
func (c *LineConn) Send(_ context.Context, text string) error {
	if !c.ready.Load() {
		return ErrNotConnected
	}
	line := clean(text, c.maxLength) + "\n"

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := io.WriteString(c.rw, line); err != nil {
		return fmt.Errorf("write upstream: %w", err)
	}
	return nil
}

// Ready reports whether Run is reading.
func (c *LineConn) Ready() bool {
	return c.ready.Load()
}

// Close closes the underlying stream.
func (c *LineConn) Close() error {
	var err error
	c.once.Do(func() {
		c.ready.Store(false)
		err = c.rw.Close()
	})
	return err
}
