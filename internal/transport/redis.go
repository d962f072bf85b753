package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
)

// RedisOptions selects the Redis server. URL wins over Addr when both are set.
type RedisOptions struct {
	URL        string
	Addr       string
	Password   string
	ClientName string
}

// Redis is a PubSub backed by Redis channels.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, o RedisOptions, logger zerolog.Logger) (*Redis, error) {
	var opts *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: o.Addr, Password: o.Password}
	}
	if o.ClientName != "" {
		opts.ClientName = o.ClientName
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisFromClient(client, logger), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger.With().Str("component", "transport").Str("backend", "redis").Logger(),
	}
}

// Client exposes the underlying client for other Redis consumers.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Subscribe subscribes to channel. A receive error ends the subscription with
// that error so the caller can treat it as connection loss.
func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s := newStream(func() { ps.Close() })
	go func() {
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				select {
				case <-s.done:
					return
				default:
				}
				if ctx.Err() != nil {
					s.finish(nil)
					return
				}
				r.logger.Warn().Err(err).Str("channel", channel).Msg("Subscription lost")
				s.finish(err)
				return
			}
			if !s.deliver([]byte(msg.Payload)) {
				return
			}
		}
	}()

	r.logger.Info().Str("channel", channel).Msg("Subscribed")
	return s, nil
}

// Publish sends payload to channel.
func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	start := time.Now()
	err := r.client.Publish(ctx, channel, payload).Err()
	metrics.TransportLatency.Observe(time.Since(start).Seconds())
	return err
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
