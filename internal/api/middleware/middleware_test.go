package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRouteLabel(t *testing.T) {
	known := func(name string) bool { return name == "kick" }
	var got []string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = append(got, routeLabel(req, known))
		})
	})
	ok := func(http.ResponseWriter, *http.Request) {}
	r.Post("/rpc/{endpoint}", ok)
	r.Post("/remote/{endpoint}", ok)
	r.Get("/health", ok)

	for _, path := range []string{"/rpc/kick", "/rpc/disband", "/remote/online", "/health"} {
		method := http.MethodPost
		if path == "/health" {
			method = http.MethodGet
		}
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
	}
	assert.Equal(t, []string{"/rpc/kick", "/rpc/{endpoint}", "/remote/{endpoint}", "/health"}, got)
	assert.Equal(t, "other", routeLabel(httptest.NewRequest(http.MethodGet, "/", nil), known))
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", RealIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", RealIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", RealIP(r))
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/rpc/kick", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1", clientKey(r))

	r.Header.Set("Authorization", "Bearer secret")
	key := clientKey(r)
	assert.Contains(t, key, "token:")
	assert.NotContains(t, key, "secret")
}

// unreachable returns a client whose commands fail fast.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRateLimiter_Whitelist(t *testing.T) {
	wl := newIPWhitelist([]string{"10.0.0.1", "192.168.0.0/16", "bogus/cidr"}, zerolog.Nop())
	assert.True(t, wl.contains("10.0.0.1"))
	assert.True(t, wl.contains("192.168.4.20"))
	assert.False(t, wl.contains("10.0.0.2"))
	assert.False(t, wl.contains("not-an-ip"))
}

func TestRateLimiter_FindLimit(t *testing.T) {
	limits := DefaultLimits()

	l := findLimit(limits, httptest.NewRequest(http.MethodPost, "/rpc/kick", nil))
	if assert.NotNil(t, l) {
		assert.Equal(t, "POST /rpc/", l.Pattern)
		assert.Equal(t, 120, l.Requests)
	}
	assert.Nil(t, findLimit(limits, httptest.NewRequest(http.MethodGet, "/metrics", nil)))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	client := unreachable()
	defer client.Close()
	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{AutoBlockEnabled: true})

	v := rl.counter.take(context.Background(), "ip:x", RateLimit{"POST /rpc/", 5, time.Minute, ipKey})
	assert.True(t, v.allowed)
	assert.Equal(t, 5, v.remaining)

	called := false
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc/kick", nil))
	assert.True(t, called)
	assert.Equal(t, "120", rec.Header().Get("X-RateLimit-Limit"))
}

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	open := BearerAuth("")(ok)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc/kick", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	guarded := BearerAuth("s3cret")(ok)
	for header, want := range map[string]int{
		"":              http.StatusUnauthorized,
		"Basic s3cret":  http.StatusUnauthorized,
		"Bearer nope":   http.StatusUnauthorized,
		"Bearer s3cret": http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodPost, "/rpc/kick", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, header)
	}
}

func TestValidateEndpoint(t *testing.T) {
	h := ValidateEndpoint(64)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(path, contentType, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.URL.Path = path
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("/rpc/kick", "application/json", `{}`))
	assert.Equal(t, http.StatusNoContent, call("/remote/guild.online", "", ""))
	assert.Equal(t, http.StatusBadRequest, call("/rpc/..", "application/json", `{}`))
	assert.Equal(t, http.StatusBadRequest, call("/rpc/kick/../x", "application/json", `{}`))
	assert.Equal(t, http.StatusBadRequest, call("/remote/<script>", "application/json", `{}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, call("/rpc/chat", "application/json", `{"message":"`+strings.Repeat("a", 64)+`"}`))

	// Other routes are not endpoint calls.
	assert.Equal(t, http.StatusNoContent, call("/health", "text/plain", "x"))
}

func TestLocalRateLimiter(t *testing.T) {
	l := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"10.0.0.1"},
		Limits:    []RateLimit{{"POST /rpc/", 2, time.Hour, ipKey}},
	})
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(ip, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("192.0.2.1", "/rpc/kick").Code)
	assert.Equal(t, http.StatusNoContent, call("192.0.2.1", "/rpc/kick").Code)
	rec := call("192.0.2.1", "/rpc/kick")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other clients and unlimited paths are unaffected.
	assert.Equal(t, http.StatusNoContent, call("192.0.2.2", "/rpc/kick").Code)
	assert.Equal(t, http.StatusNoContent, call("192.0.2.1", "/health").Code)

	for range 5 {
		assert.Equal(t, http.StatusNoContent, call("10.0.0.1", "/rpc/kick").Code)
	}
}
