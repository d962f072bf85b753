package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/api/middleware"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/handlers"
)

// Options configures NewRouter.
type Options struct {
	// Token protects /rpc and /remote. Empty disables auth.
	Token       string
	CORSOrigins []string
	// Redis backs rate limiting. Nil falls back to in-process buckets.
	Redis     *redis.Client
	RateLimit middleware.RateLimiterConfig
	// MaxBodyBytes defaults to 16KB.
	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics(h.HasEndpoint))

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 16 * 1024
	}
	r.Use(chimw.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(chimw.SetHeader("X-Frame-Options", "DENY"))
	r.Use(chimw.SetHeader("Content-Security-Policy", "default-src 'none'"))
	r.Use(chimw.SetHeader("Cache-Control", "no-store"))
	r.Use(middleware.ValidateEndpoint(maxBody))

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewRateLimiter(opts.Redis, logger, opts.RateLimit).Middleware)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(opts.Token))
		r.Use(chimw.AllowContentType("application/json"))

		r.Post("/rpc/{endpoint}", h.Call)
		r.Post("/remote/{endpoint}", h.Remote)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
