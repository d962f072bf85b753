package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Env      string `yaml:"env"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Transport selects the pub/sub backbone: redis, nats or memory.
	Transport string `yaml:"transport"`

	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Settings SettingsConfig `yaml:"settings"`
	API      APIConfig      `yaml:"api"`
}

// RedisConfig mirrors the "redis" section: connection plus channel names.
type RedisConfig struct {
	URL            string `yaml:"url"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Password       string `yaml:"password"`
	ClientName     string `yaml:"client_name"`
	ReceiveChannel string `yaml:"receive_channel"`
	SendChannel    string `yaml:"send_channel"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// UpstreamConfig selects how the game client is reached.
type UpstreamConfig struct {
	// Mode is tcp, websocket or stdio.
	Mode string `yaml:"mode"`
	Addr string `yaml:"addr"`
	URL  string `yaml:"url"`
	// Username is the bot's own account name; its chat lines are ignored.
	Username         string `yaml:"username"`
	MaxLength        int    `yaml:"max_length"`
	MaxBufferedLines int    `yaml:"max_buffered_lines"`
}

// BridgeConfig holds correlation and RPC limits.
type BridgeConfig struct {
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxInFlight     int           `yaml:"max_in_flight"`
	InviteQueueSize int           `yaml:"invite_queue_size"`
	AutoRestart     bool          `yaml:"auto_restart"`
	MaxRestarts     int           `yaml:"max_restarts"`
}

// SettingsConfig mirrors the "settings" section.
type SettingsConfig struct {
	AutoAccept bool `yaml:"autoaccept"`
	PrintChat  bool `yaml:"print_chat"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Token              string   `yaml:"token"`
	RateLimitWhitelist []string `yaml:"rate_limit_whitelist"`
	CORSOrigins        []string `yaml:"cors_origins"`
	AutoBlockEnabled   bool     `yaml:"auto_block_enabled"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Env:       "development",
		Port:      "8080",
		LogLevel:  "info",
		Transport: "redis",
		Redis: RedisConfig{
			Host:           "localhost",
			Port:           6379,
			ReceiveChannel: "bridge",
			SendChannel:    "bridge:hub",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: 60,
			ReconnectWait: 2 * time.Second,
		},
		Upstream: UpstreamConfig{
			Mode:             "tcp",
			Addr:             "localhost:25566",
			MaxLength:        256,
			MaxBufferedLines: 500,
		},
		Bridge: BridgeConfig{
			CommandTimeout:  10 * time.Second,
			RequestTimeout:  10 * time.Second,
			MaxInFlight:     16,
			InviteQueueSize: 64,
			AutoRestart:     true,
			MaxRestarts:     10,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (when path is not empty), then environment variables. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	e := &envReader{}
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("BRIDGE_LOG_LEVEL", cfg.LogLevel)
	cfg.Transport = getEnv("BRIDGE_TRANSPORT", cfg.Transport)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Host = getEnv("BRIDGE_REDIS_HOST", cfg.Redis.Host)
	e.int(&cfg.Redis.Port, "BRIDGE_REDIS_PORT")
	cfg.Redis.Password = getEnv("BRIDGE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.ClientName = getEnv("BRIDGE_REDIS_CLIENTNAME", cfg.Redis.ClientName)
	// The misspelled key is what existing deployments set.
	cfg.Redis.ReceiveChannel = getEnv("BRIDGE_REDIS_RECIEVECHANNEL", cfg.Redis.ReceiveChannel)
	cfg.Redis.ReceiveChannel = getEnv("BRIDGE_REDIS_RECEIVECHANNEL", cfg.Redis.ReceiveChannel)
	cfg.Redis.SendChannel = getEnv("BRIDGE_REDIS_SENDCHANNEL", cfg.Redis.SendChannel)

	cfg.NATS.URL = getEnv("BRIDGE_NATS_URL", cfg.NATS.URL)
	cfg.NATS.Token = getEnv("BRIDGE_NATS_TOKEN", cfg.NATS.Token)
	e.int(&cfg.NATS.MaxReconnects, "BRIDGE_NATS_MAXRECONNECTS")

	cfg.Upstream.Mode = getEnv("BRIDGE_UPSTREAM_MODE", cfg.Upstream.Mode)
	cfg.Upstream.Addr = getEnv("BRIDGE_UPSTREAM_ADDR", cfg.Upstream.Addr)
	cfg.Upstream.URL = getEnv("BRIDGE_UPSTREAM_URL", cfg.Upstream.URL)
	cfg.Upstream.Username = getEnv("BRIDGE_UPSTREAM_USERNAME", cfg.Upstream.Username)
	e.int(&cfg.Upstream.MaxLength, "BRIDGE_UPSTREAM_MAXLENGTH")
	e.int(&cfg.Upstream.MaxBufferedLines, "BRIDGE_UPSTREAM_MAXBUFFEREDLINES")

	e.duration(&cfg.Bridge.CommandTimeout, "BRIDGE_BRIDGE_COMMANDTIMEOUT")
	e.duration(&cfg.Bridge.RequestTimeout, "BRIDGE_BRIDGE_REQUESTTIMEOUT")
	e.int(&cfg.Bridge.MaxInFlight, "BRIDGE_BRIDGE_MAXINFLIGHT")
	e.int(&cfg.Bridge.InviteQueueSize, "BRIDGE_BRIDGE_INVITEQUEUESIZE")
	e.bool(&cfg.Bridge.AutoRestart, "BRIDGE_BRIDGE_AUTORESTART")
	e.int(&cfg.Bridge.MaxRestarts, "BRIDGE_BRIDGE_MAXRESTARTS")

	e.bool(&cfg.Settings.AutoAccept, "BRIDGE_SETTINGS_AUTOACCEPT")
	e.bool(&cfg.Settings.PrintChat, "BRIDGE_SETTINGS_PRINTCHAT")

	cfg.API.Token = getEnv("BRIDGE_API_TOKEN", cfg.API.Token)
	e.list(&cfg.API.RateLimitWhitelist, "RATE_LIMIT_WHITELIST")
	e.list(&cfg.API.CORSOrigins, "BRIDGE_API_CORSORIGINS")
	e.bool(&cfg.API.AutoBlockEnabled, "AUTO_BLOCK_ENABLED")

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case "redis":
		if c.Redis.URL == "" && c.Redis.Host == "" {
			errs = append(errs, errors.New("redis host or REDIS_URL is required"))
		}
	case "nats":
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats url is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.Redis.ClientName == "" {
		errs = append(errs, errors.New("BRIDGE_REDIS_CLIENTNAME is required"))
	}
	if c.Redis.ReceiveChannel == "" || c.Redis.SendChannel == "" {
		errs = append(errs, errors.New("receive and send channels are required"))
	}

	switch c.Upstream.Mode {
	case "tcp":
		if c.Upstream.Addr == "" {
			errs = append(errs, errors.New("upstream addr is required for tcp mode"))
		}
	case "websocket":
		if c.Upstream.URL == "" {
			errs = append(errs, errors.New("upstream url is required for websocket mode"))
		}
	case "stdio":
	default:
		errs = append(errs, fmt.Errorf("unknown upstream mode %q", c.Upstream.Mode))
	}
	if c.Upstream.Username == "" {
		errs = append(errs, errors.New("BRIDGE_UPSTREAM_USERNAME is required"))
	}

	if c.Bridge.CommandTimeout <= 0 || c.Bridge.RequestTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Env == "production" && c.API.Token == "" {
		errs = append(errs, errors.New("BRIDGE_API_TOKEN is required in production"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader applies typed environment overrides and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) int(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) bool(dst *bool, key string) {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return
	}
	*dst = v == "1" || v == "true" || v == "yes"
}

// duration accepts Go durations ("10s") or a bare number of seconds.
func (e *envReader) duration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

// list parses a comma-separated list.
func (e *envReader) list(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	*dst = out
}
