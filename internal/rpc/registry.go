package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// ReasonInvalidEndpoint is returned for endpoints with no handler.
const ReasonInvalidEndpoint = "invalid endpoint"

// HandlerFunc serves one endpoint. A returned error becomes a failure result.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (models.Result, error)

// Registry is the endpoint table shared by the pub/sub bridge and the admin API.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// Register binds endpoint to h, replacing any previous handler.
func (r *Registry) Register(endpoint string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[endpoint] = h
}

// Endpoints lists registered endpoint names in order.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether endpoint has a handler.
func (r *Registry) Has(endpoint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[endpoint]
	return ok
}

// Dispatch runs the handler for endpoint. It never panics.
func (r *Registry) Dispatch(ctx context.Context, endpoint string, data json.RawMessage) (res models.Result) {
	r.mu.RLock()
	h, ok := r.handlers[endpoint]
	r.mu.RUnlock()
	if !ok {
		return models.Failure(ReasonInvalidEndpoint)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("endpoint", endpoint).
				Interface("panic", p).
				Msg("Handler panicked")
			res = models.Failure(fmt.Sprint(p))
		}
	}()

	res, err := h(ctx, data)
	if err != nil {
		r.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Handler failed")
		return models.Failure(err.Error())
	}
	return res
}
