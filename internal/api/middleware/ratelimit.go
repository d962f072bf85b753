package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Pattern  string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	Limits           []RateLimit
}

// DefaultLimits covers the admin API. Patterns are matched in order against
// "METHOD /path".
func DefaultLimits() []RateLimit {
	return []RateLimit{
		{"POST /rpc/", 120, time.Minute, clientKey},
		{"POST /remote/", 60, time.Minute, clientKey},
		{"GET /health", 300, time.Minute, ipKey},
	}
}

// verdict is a counter's answer for one request.
type verdict struct {
	allowed    bool
	remaining  int
	retryAfter time.Duration
}

// counter takes one request from the budget under key.
type counter interface {
	take(ctx context.Context, key string, limit RateLimit) verdict
}

// RateLimiter enforces the configured limits per client. With Redis the
// windows are shared between bridge instances and repeat offenders can be
// blocked; without it each process keeps its own token buckets.
type RateLimiter struct {
	counter   counter
	blocker   *IPBlocker
	limits    []RateLimit
	whitelist *ipWhitelist
	logger    zerolog.Logger
}

// NewRateLimiter creates a rate limiter. A nil client selects in-process
// buckets and disables auto-blocking.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		limits: cfg.Limits,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
	if rl.limits == nil {
		rl.limits = DefaultLimits()
	}
	rl.whitelist = newIPWhitelist(cfg.Whitelist, rl.logger)
	if client != nil {
		rl.counter = &redisCounter{client: client, logger: rl.logger}
		if cfg.AutoBlockEnabled {
			rl.blocker = NewIPBlocker(client)
		}
	} else {
		rl.counter = newLocalCounter()
	}
	return rl
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.whitelist.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker != nil && rl.blocker.IsBlocked(r.Context(), ip) {
			rl.security("blocked_request", ip, r).Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := findLimit(rl.limits, r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		v := rl.counter.take(r.Context(), limit.Pattern+"|"+limit.KeyFunc(r), *limit)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(v.remaining, 0)))
		if v.allowed {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RateLimitHits.WithLabelValues(limit.Pattern).Inc()
		rl.security("rate_limit_exceeded", ip, r).Msg("rate limit exceeded")
		if rl.blocker != nil {
			if n, blocked := rl.blocker.Strike(r.Context(), ip); blocked {
				rl.security("ip_auto_blocked", ip, r).Int64("violations", n).Msg("IP auto-blocked for repeated violations")
			}
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(v.retryAfter.Seconds())+1))
		jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

func (rl *RateLimiter) security(event, ip string, r *http.Request) *zerolog.Event {
	return rl.logger.Warn().
		Str("type", "security").
		Str("event", event).
		Str("ip", ip).
		Str("endpoint", r.URL.Path)
}

// findLimit returns the first limit whose pattern prefixes the request.
func findLimit(limits []RateLimit, r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path
	for i := range limits {
		if strings.HasPrefix(key, limits[i].Pattern) {
			l := limits[i]
			return &l
		}
	}
	return nil
}

// ipWhitelist holds IPs and CIDRs exempt from rate limiting.
type ipWhitelist struct {
	nets []*net.IPNet
	ips  map[string]bool
}

func newIPWhitelist(entries []string, logger zerolog.Logger) *ipWhitelist {
	wl := &ipWhitelist{ips: make(map[string]bool)}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			wl.ips[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		wl.nets = append(wl.nets, ipNet)
	}
	if len(entries) > 0 {
		logger.Info().Int("ips", len(wl.ips)).Int("cidrs", len(wl.nets)).Msg("rate limit whitelist configured")
	}
	return wl
}

func (wl *ipWhitelist) contains(ipStr string) bool {
	if wl.ips[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range wl.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// clientKey keys on the bearer token when one is sent, otherwise the IP.
// The token is hashed so it never lands in Redis.
func clientKey(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return ipKey(r)
	}
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:8])
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
