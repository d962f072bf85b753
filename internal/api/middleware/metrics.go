package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
)

// Metrics records request counts and latency by chi route pattern. Calls to a
// registered local endpoint are labelled with its name; known reports which
// names are registered, which keeps label values bounded.
func Metrics(known func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routeLabel(r, known)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel must run after routing so the pattern is filled in.
func routeLabel(r *http.Request, known func(string) bool) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "other"
	}
	pattern := rctx.RoutePattern()
	switch pattern {
	case "":
		return "other"
	case "/rpc/{endpoint}":
		if name := rctx.URLParam("endpoint"); known != nil && known(name) {
			return "/rpc/" + name
		}
	}
	return pattern
}
