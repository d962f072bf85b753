package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/app"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/config"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("BRIDGE_CONFIG"), "path to a YAML config file")
	check := pflag.Bool("check", false, "validate configuration and exit")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := zerolog.New(logWriter(cfg)).
		With().
		Timestamp().
		Logger()
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *check {
		logger.Info().Msg("configuration ok")
		return
	}

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer bridge.Close()

	logger.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Env).
		Msg("starting guild bridge")

	if err := bridge.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("bridge stopped")
		bridge.Close()
		os.Exit(1)
	}

	logger.Info().Msg("bridge stopped")
}

// logWriter picks the log destination. In stdio mode stdout carries upstream
// commands, so logs go to stderr.
func logWriter(cfg *config.Config) io.Writer {
	out := os.Stdout
	if cfg.Upstream.Mode == "stdio" {
		out = os.Stderr
	}
	if cfg.IsDevelopment() {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}
