package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketConn exchanges one text frame per line. A frame may hold several
// newline-separated lines; it is delivered as one line.
type WebSocketConn struct {
	conn      *websocket.Conn
	maxLength int
	logger    zerolog.Logger

	writeMu sync.Mutex
	ready   atomic.Bool
	once    sync.Once
}

// DialWebSocket returns a DialFunc connecting to url.
func DialWebSocket(url string, header http.Header, maxLength int, logger zerolog.Logger) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		dialer := &websocket.Dialer{HandshakeTimeout: 45 * time.Second}
		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("dial upstream %s: %w", url, err)
		}
		return NewWebSocketConn(conn, maxLength, logger), nil
	}
}

// NewWebSocketConn wraps an established connection.
func NewWebSocketConn(conn *websocket.Conn, maxLength int, logger zerolog.Logger) *WebSocketConn {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &WebSocketConn{
		conn:      conn,
		maxLength: maxLength,
		logger:    logger.With().Str("component", "upstream").Str("kind", "websocket").Logger(),
	}
}

// Run reads frames until the peer closes, a read fails, or ctx is done.
func (c *WebSocketConn) Run(ctx context.Context, fn func(line string)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.ready.Store(true)
	defer c.ready.Store(false)
	c.logger.Info().Msg("Upstream connected")

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("%w: %s", ErrClosed, ce.Error())
			}
			return fmt.Errorf("read upstream: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		fn(string(msg))
	}
}

// Send writes one command as a text frame.
func (c *WebSocketConn) Send(_ context.Context, text string) error {
	if !c.ready.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(clean(text, c.maxLength))); err != nil {
		return fmt.Errorf("write upstream: %w", err)
	}
	return nil
}

// Ready reports whether Run is reading.
func (c *WebSocketConn) Ready() bool {
	return c.ready.Load()
}

// Close sends a close frame and closes the connection.
func (c *WebSocketConn) Close() error {
	var err error
	c.once.Do(func() {
		c.ready.Store(false)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
