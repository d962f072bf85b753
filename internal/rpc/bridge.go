// Package rpc exchanges request/response envelopes with peer processes over
// the pub/sub transport.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/transport"
)

var (
	// ErrTimeout is returned by Request when no response arrived in time.
	ErrTimeout = errors.New("rpc request timed out")
	// ErrConnectionLost is returned by Serve when the inbound stream ends.
	ErrConnectionLost = errors.New("rpc connection lost")
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxInFlight    = 16
	responseTimeout       = 5 * time.Second
)

// Config names the channels and limits of a Bridge.
type Config struct {
	ClientName     string
	ReceivePrefix  string
	SendChannel    string
	RequestTimeout time.Duration
	MaxInFlight    int
}

// Bridge serves inbound requests and issues outbound ones.
type Bridge struct {
	cfg      Config
	ps       transport.PubSub
	registry *Registry
	bus      *eventbus.Bus
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
}

// NewBridge creates a Bridge. bus may be nil.
func NewBridge(cfg Config, ps transport.PubSub, registry *Registry, bus *eventbus.Bus, logger zerolog.Logger) *Bridge {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	return &Bridge{
		cfg:      cfg,
		ps:       ps,
		registry: registry,
		bus:      bus,
		logger:   logger.With().Str("component", "rpc").Str("client", cfg.ClientName).Logger(),
		pending:  make(map[string]chan json.RawMessage),
	}
}

// InboundChannel is the channel this bridge listens on.
func (b *Bridge) InboundChannel() string {
	return b.cfg.ReceivePrefix + ":" + b.cfg.ClientName
}

// Serve consumes the inbound channel until ctx is done (returning nil) or the
// stream is lost (returning ErrConnectionLost). It waits for in-flight
// handlers before returning. Pending outbound requests are left to time out.
func (b *Bridge) Serve(ctx context.Context) error {
	sub, err := b.ps.Subscribe(ctx, b.InboundChannel())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, b.cfg.MaxInFlight)
	defer wg.Wait()
	defer sub.Close()

	b.logger.Info().Str("channel", b.InboundChannel()).Msg("RPC bridge serving")

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				cause := sub.Err()
				if cause == nil {
					cause = transport.ErrClosed
				}
				return fmt.Errorf("%w: %w", ErrConnectionLost, cause)
			}
			b.handle(ctx, payload, sem, &wg)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, payload []byte, sem chan struct{}, wg *sync.WaitGroup) {
	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.drop("malformed", err, payload)
		return
	}
	env.ReceivedAt = time.Now()

	switch env.Type {
	case models.KindResponse:
		b.resolve(env)
		return
	case models.KindRequest:
	default:
		b.drop("invalid_type", nil, payload)
		return
	}

	if env.Source == b.cfg.ClientName {
		metrics.RPCDropped.WithLabelValues("self").Inc()
		return
	}
	if env.Source == "" {
		b.drop("missing_source", nil, payload)
		return
	}
	if env.UUID == "" {
		b.drop("missing_uuid", nil, payload)
		return
	}

	if b.bus != nil {
		ev := models.NewEvent(models.EventRemoteRequest, string(payload))
		ev.Body = env.Endpoint
		ev.Actor = env.Source
		ev.Text = string(env.Data)
		b.bus.Publish(ev)
	}

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { <-sem }()
		b.serveRequest(ctx, env)
	}()
}

func (b *Bridge) serveRequest(ctx context.Context, env models.Envelope) {
	log := b.logger.With().
		Str("uuid", env.UUID).
		Str("source", env.Source).
		Str("endpoint", env.Endpoint).
		Logger()
	log.Debug().Msg("Request received")

	res := b.registry.Dispatch(ctx, env.Endpoint, env.Data)
	result := "ok"
	if !res.Success {
		result = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(env.Endpoint, result).Inc()

	data, err := json.Marshal(res)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode result")
		data, _ = json.Marshal(models.Failure(err.Error()))
	}

	resp := models.Envelope{
		UUID:   env.UUID,
		Type:   models.KindResponse,
		Source: b.cfg.ClientName,
		Data:   data,
	}

	// Respond even when Serve is shutting down.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), responseTimeout)
	defer cancel()
	if err := b.publish(pubCtx, resp); err != nil {
		log.Warn().Err(err).Msg("Failed to publish response")
		return
	}
	log.Debug().Bool("success", res.Success).Msg("Response sent")
}

func (b *Bridge) resolve(env models.Envelope) {
	b.mu.Lock()
	ch, ok := b.pending[env.UUID]
	b.mu.Unlock()
	if !ok {
		metrics.RPCDropped.WithLabelValues("unmatched").Inc()
		b.logger.Debug().Str("uuid", env.UUID).Msg("Dropping unmatched response")
		return
	}
	select {
	case ch <- env.Data:
	default:
	}
}

func (b *Bridge) drop(reason string, err error, payload []byte) {
	metrics.RPCDropped.WithLabelValues(reason).Inc()
	ev := b.logger.Warn().Str("reason", reason).Bytes("payload", payload)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("Dropping invalid envelope")
}

func (b *Bridge) publish(ctx context.Context, env models.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.ps.Publish(ctx, b.cfg.SendChannel, payload)
}

// Request sends a request to peers and waits for the matching response.
func (b *Bridge) Request(ctx context.Context, endpoint string, data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode request data: %w", err)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	ch := make(chan json.RawMessage, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	metrics.RPCPending.Inc()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		metrics.RPCPending.Dec()
	}()

	env := models.Envelope{
		UUID:     id,
		Type:     models.KindRequest,
		Source:   b.cfg.ClientName,
		Endpoint: endpoint,
		Data:     raw,
	}
	if err := b.publish(ctx, env); err != nil {
		metrics.RPCOutboundTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("publish request: %w", err)
	}

	timer := time.NewTimer(b.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		metrics.RPCOutboundTotal.WithLabelValues(endpoint, "ok").Inc()
		return resp, nil
	case <-timer.C:
		metrics.RPCOutboundTotal.WithLabelValues(endpoint, "timeout").Inc()
		b.logger.Warn().Str("uuid", id).Str("endpoint", endpoint).Msg("Request timed out")
		return nil, ErrTimeout
	case <-ctx.Done():
		metrics.RPCOutboundTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, ctx.Err()
	}
}

// PendingCount reports outbound requests awaiting a response.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
