package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
)

// NATSOptions configures the NATS connection.
type NATSOptions struct {
	URL           string
	Name          string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATS is a PubSub backed by core NATS subjects.
type NATS struct {
	conn   *nats.Conn
	logger zerolog.Logger

	mu      sync.Mutex
	streams map[*stream]struct{}
}

// NewNATS connects to a NATS server. Subscriptions end with an error when the
// connection drops; the client keeps reconnecting in the background.
func NewNATS(o NATSOptions, logger zerolog.Logger) (*NATS, error) {
	n := &NATS{
		logger:  logger.With().Str("component", "transport").Str("backend", "nats").Logger(),
		streams: make(map[*stream]struct{}),
	}

	wait := o.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.MaxReconnects(o.MaxReconnects),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(n.handleDisconnect),
		nats.ReconnectHandler(n.handleReconnect),
		nats.ClosedHandler(n.handleClosed),
	}
	if o.Name != "" {
		opts = append(opts, nats.Name(o.Name))
	}
	if o.Token != "" {
		opts = append(opts, nats.Token(o.Token))
	}

	conn, err := nats.Connect(o.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	n.conn = conn
	return n, nil
}

// Subscribe subscribes to the subject named channel.
func (n *NATS) Subscribe(_ context.Context, channel string) (Subscription, error) {
	if !n.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	var sub *nats.Subscription
	var s *stream
	s = newStream(func() {
		if sub != nil {
			sub.Unsubscribe()
		}
		n.mu.Lock()
		delete(n.streams, s)
		n.mu.Unlock()
	})

	n.mu.Lock()
	n.streams[s] = struct{}{}
	n.mu.Unlock()

	var err error
	sub, err = n.conn.Subscribe(channel, func(msg *nats.Msg) {
		s.deliver(msg.Data)
	})
	if err != nil {
		s.finish(err)
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	n.logger.Info().Str("channel", channel).Msg("Subscribed")
	return s, nil
}

// Publish sends payload to the subject named channel.
func (n *NATS) Publish(_ context.Context, channel string, payload []byte) error {
	if !n.conn.IsConnected() {
		return ErrNotConnected
	}
	start := time.Now()
	err := n.conn.Publish(channel, payload)
	metrics.TransportLatency.Observe(time.Since(start).Seconds())
	return err
}

// Ping round-trips to the server.
func (n *NATS) Ping(_ context.Context) error {
	if !n.conn.IsConnected() {
		return ErrNotConnected
	}
	_, err := n.conn.RTT()
	return err
}

// Close drains nothing and closes the connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}

// handleDisconnect ends every open stream so its reader resubscribes once the
// client has reconnected.
func (n *NATS) handleDisconnect(_ *nats.Conn, err error) {
	n.logger.Warn().Err(err).Msg("NATS disconnected")
	if err != nil {
		n.endStreams(fmt.Errorf("%w: %w", ErrNotConnected, err))
		return
	}
	n.endStreams(ErrNotConnected)
}

func (n *NATS) handleReconnect(c *nats.Conn) {
	n.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
}

func (n *NATS) handleClosed(_ *nats.Conn) {
	n.endStreams(ErrNotConnected)
}

func (n *NATS) endStreams(err error) {
	n.mu.Lock()
	streams := make([]*stream, 0, len(n.streams))
	for s := range n.streams {
		streams = append(streams, s)
	}
	n.mu.Unlock()

	for _, s := range streams {
		s.finish(err)
	}
}
