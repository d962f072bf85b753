package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// slidingWindow admits a request when fewer than ARGV[3] requests landed in
// the last ARGV[2] ms, recording it only when admitted. It returns
// {allowed, remaining, retry_ms}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, limit - count - 1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, 0, tonumber(oldest[2]) + window - now}
`)

// redisCounter keeps one sorted set of request timestamps per key. Redis
// errors let the request through.
type redisCounter struct {
	client *redis.Client
	logger zerolog.Logger
}

func (c *redisCounter) take(ctx context.Context, key string, limit RateLimit) verdict {
	now := time.Now()
	res, err := slidingWindow.Run(ctx, c.client, []string{"ratelimit:" + key},
		now.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.Requests,
		strconv.FormatInt(now.UnixNano(), 10),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		c.logger.Debug().Err(err).Str("key", key).Msg("rate limit check failed, allowing")
		return verdict{allowed: true, remaining: limit.Requests}
	}
	return verdict{
		allowed:    res[0] == 1,
		remaining:  int(res[1]),
		retryAfter: time.Duration(res[2]) * time.Millisecond,
	}
}

const (
	strikeLimit  = 10
	strikeWindow = time.Hour
	blockFor     = 24 * time.Hour
)

// IPBlocker counts rate limit violations per IP and blocks repeat offenders.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

// IsBlocked checks if an IP is blocked. Redis errors count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, _ := b.client.Exists(ctx, "blocked:ip:"+ip).Result()
	return n > 0
}

// Strike records a violation and blocks ip once it reaches the strike limit
// within the strike window.
func (b *IPBlocker) Strike(ctx context.Context, ip string) (int64, bool) {
	key := "violations:ip:" + ip
	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, strikeWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false
	}
	n := incr.Val()
	if n < strikeLimit {
		return n, false
	}
	b.Block(ctx, ip, blockFor, "repeated rate limit violations")
	return n, true
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, "blocked:ip:"+ip, reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.client.Del(ctx, "blocked:ip:"+ip)
}
