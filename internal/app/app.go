// Package app wires the bridge together and runs its long-lived loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/api"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/api/middleware"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/classifier"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/config"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/correlator"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/handlers"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/listeners"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/rpc"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/transport"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/upstream"
)

const shutdownTimeout = 30 * time.Second

// App owns every component of a running bridge.
type App struct {
	cfg    *config.Config
	base   zerolog.Logger
	logger zerolog.Logger

	ps    transport.PubSub
	redis *redis.Client
	dial  upstream.DialFunc

	bus        *eventbus.Bus
	classifier *classifier.Classifier
	link       *upstream.Link
	corr       *correlator.Correlator
	invites    *correlator.InviteQueue
	registry   *rpc.Registry
	bridge     *rpc.Bridge
	handler    *handlers.Handler
	router     http.Handler
	supervisor rpc.Supervisor
}

// Option overrides a component New would otherwise build from config.
type Option func(*App)

// WithTransport uses ps instead of connecting to the configured backend.
func WithTransport(ps transport.PubSub) Option {
	return func(a *App) { a.ps = ps }
}

// WithDialer uses dial to reach the game client.
func WithDialer(dial upstream.DialFunc) Option {
	return func(a *App) { a.dial = dial }
}

// WithSupervisor replaces the restart policy of the upstream and RPC loops.
func WithSupervisor(s rpc.Supervisor) Option {
	return func(a *App) { a.supervisor = s }
}

// New builds the bridge from cfg. It connects to the transport but does not
// start any loop.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		base:       logger,
		logger:     logger.With().Str("component", "app").Logger(),
		supervisor: rpc.DefaultSupervisor(logger),
	}
	a.supervisor.AutoRestart = cfg.Bridge.AutoRestart
	a.supervisor.MaxRestarts = cfg.Bridge.MaxRestarts
	for _, opt := range opts {
		opt(a)
	}

	if a.ps == nil {
		ps, err := newTransport(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.ps = ps
	}
	if r, ok := a.ps.(*transport.Redis); ok {
		a.redis = r.Client()
	}
	if a.dial == nil {
		dial, err := newDialer(cfg.Upstream, logger)
		if err != nil {
			return nil, err
		}
		a.dial = dial
	}

	a.bus = eventbus.New(logger)
	a.classifier = classifier.New(
		classifier.WithSelf(cfg.Upstream.Username),
		classifier.WithMaxBufferedLines(cfg.Upstream.MaxBufferedLines),
	)
	a.link = &upstream.Link{}
	a.corr = correlator.New(a.bus, a.link, logger, correlator.WithTimeout(cfg.Bridge.CommandTimeout),
		correlator.WithMaxLength(cfg.Upstream.MaxLength))
	a.invites = correlator.NewInviteQueue(a.corr, cfg.Bridge.InviteQueueSize, cfg.Bridge.CommandTimeout, logger)
	a.registry = rpc.NewRegistry(logger)
	a.bridge = rpc.NewBridge(rpc.Config{
		ClientName:     cfg.Redis.ClientName,
		ReceivePrefix:  cfg.Redis.ReceiveChannel,
		SendChannel:    cfg.Redis.SendChannel,
		RequestTimeout: cfg.Bridge.RequestTimeout,
		MaxInFlight:    cfg.Bridge.MaxInFlight,
	}, a.ps, a.registry, a.bus, logger)

	a.handler = handlers.NewHandler(handlers.Deps{
		Correlator: a.corr,
		Invites:    a.invites,
		Upstream:   a.link,
		Registry:   a.registry,
		Remote:     a.bridge,
		Transport:  a.ps,
		Bus:        a.bus,
		Timeout:    cfg.Bridge.CommandTimeout,
		Logger:     logger,
	})
	a.handler.Register(a.registry)

	a.router = api.NewRouter(logger, a.handler, api.Options{
		Token:       cfg.API.Token,
		CORSOrigins: cfg.API.CORSOrigins,
		Redis:       a.redis,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.API.RateLimitWhitelist,
			AutoBlockEnabled: cfg.API.AutoBlockEnabled,
		},
	})

	return a, nil
}

func newTransport(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (transport.PubSub, error) {
	switch cfg.Transport {
	case "redis":
		return transport.NewRedis(ctx, transport.RedisOptions{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr(),
			Password:   cfg.Redis.Password,
			ClientName: cfg.Redis.ClientName,
		}, logger)
	case "nats":
		return transport.NewNATS(transport.NATSOptions{
			URL:           cfg.NATS.URL,
			Name:          cfg.Redis.ClientName,
			Token:         cfg.NATS.Token,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, logger)
	case "memory":
		return transport.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func newDialer(cfg config.UpstreamConfig, logger zerolog.Logger) (upstream.DialFunc, error) {
	switch cfg.Mode {
	case "tcp":
		return upstream.DialTCP(cfg.Addr, cfg.MaxLength, logger), nil
	case "websocket":
		return upstream.DialWebSocket(cfg.URL, nil, cfg.MaxLength, logger), nil
	case "stdio":
		return func(context.Context) (upstream.Conn, error) {
			return upstream.NewLineConn(stdio{}, cfg.MaxLength, logger), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown upstream mode %q", cfg.Mode)
}

// stdio joins the process's standard streams.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return os.Stdin.Close() }

var _ io.ReadWriteCloser = stdio{}

// Handler returns the admin HTTP handler.
func (a *App) Handler() http.Handler { return a.router }

// Bus returns the event bus, for in-process listeners.
func (a *App) Bus() *eventbus.Bus { return a.bus }

// Registry returns the endpoint table.
func (a *App) Registry() *rpc.Registry { return a.registry }

// Bridge returns the RPC bridge, for outbound requests.
func (a *App) Bridge() *rpc.Bridge { return a.bridge }

// Ready reports whether the upstream is connected.
func (a *App) Ready() bool { return a.link.Ready() }

// Run starts every loop and blocks until ctx is done or a loop fails for good.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Settings.AutoAccept {
		accept := listeners.NewAutoAccept(ctx, a.bus, a.link, a.base)
		defer accept.Stop()
	}
	if a.cfg.Settings.PrintChat {
		chat := listeners.NewChatLog(a.bus, a.base)
		defer chat.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	upstreamSup := a.supervisor
	if a.cfg.Upstream.Mode == "stdio" {
		upstreamSup.AutoRestart = false
	}
	g.Go(func() error {
		return upstreamSup.Run(gctx, a.runUpstream)
	})
	g.Go(func() error {
		return a.supervisor.Run(gctx, a.bridge.Serve)
	})
	g.Go(func() error {
		return a.invites.Run(gctx)
	})
	if a.cfg.Port != "" {
		g.Go(func() error {
			return a.serveHTTP(gctx)
		})
	}

	a.logger.Info().
		Str("client", a.cfg.Redis.ClientName).
		Str("transport", a.cfg.Transport).
		Str("upstream", a.cfg.Upstream.Mode).
		Msg("Bridge started")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return a.stopped(ctx, err)
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down")
	select {
	case err := <-done:
		return a.stopped(ctx, err)
	case <-time.After(shutdownTimeout):
		return errors.New("shutdown timed out")
	}
}

// stopped drops the cancellation errors loops report during a requested
// shutdown.
func (a *App) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runUpstream holds one upstream session. The classifier starts fresh on
// every session.
func (a *App) runUpstream(ctx context.Context) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.classifier.Reset()
	a.link.Set(conn)
	defer a.link.Set(nil)

	err = conn.Run(ctx, a.handleLine)
	if err == nil && ctx.Err() == nil {
		return upstream.ErrClosed
	}
	return err
}

// handleLine classifies one upstream line and publishes what it produced.
// Lines arrive from a single goroutine so the classifier needs no lock.
func (a *App) handleLine(line string) {
	ev, ok := a.classifier.Classify(line)
	metrics.LinesClassified.WithLabelValues(string(a.classifier.LastOutcome())).Inc()
	if !ok {
		return
	}
	metrics.EventsPublished.WithLabelValues(ev.Type.String()).Inc()
	a.bus.Publish(ev)
}

func (a *App) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info().Str("port", a.cfg.Port).Msg("Admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("admin api: %w", err)
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	return nil
}

// Close releases the transport.
func (a *App) Close() error {
	return a.ps.Close()
}
