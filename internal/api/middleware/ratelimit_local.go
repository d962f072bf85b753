package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxLocalKeys = 10000

// localCounter is a token bucket per key, refilled at Requests per Window.
type localCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newLocalCounter() *localCounter {
	return &localCounter{buckets: make(map[string]*bucket)}
}

func (c *localCounter) take(_ context.Context, key string, limit RateLimit) verdict {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[key]
	if !ok {
		if len(c.buckets) >= maxLocalKeys {
			c.sweep(now)
		}
		every := limit.Window / time.Duration(limit.Requests)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), limit.Requests)}
		c.buckets[key] = b
	}
	b.seen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return verdict{retryAfter: delay}
	}
	return verdict{allowed: true, remaining: int(b.limiter.TokensAt(now))}
}

// sweep drops buckets idle for over an hour. Called with mu held.
func (c *localCounter) sweep(now time.Time) {
	for k, b := range c.buckets {
		if now.Sub(b.seen) > time.Hour {
			delete(c.buckets, k)
		}
	}
}
