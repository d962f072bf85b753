package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "redis", cfg.Transport)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 10*time.Second, cfg.Bridge.RequestTimeout)
	assert.False(t, cfg.Settings.AutoAccept)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: nats
redis:
  client_name: yaml-bot
  send_channel: hub
upstream:
  mode: websocket
  url: ws://localhost:9000
  username: BridgeBot
settings:
  autoaccept: true
bridge:
  command_timeout: 3s
`), 0o600))

	t.Setenv("BRIDGE_REDIS_CLIENTNAME", "env-bot")
	t.Setenv("BRIDGE_REDIS_RECIEVECHANNEL", "bridge-in")
	t.Setenv("BRIDGE_SETTINGS_PRINTCHAT", "yes")
	t.Setenv("BRIDGE_BRIDGE_REQUESTTIMEOUT", "5")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 10.0.0.2,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.Transport)
	assert.Equal(t, "env-bot", cfg.Redis.ClientName)
	assert.Equal(t, "bridge-in", cfg.Redis.ReceiveChannel)
	assert.Equal(t, "hub", cfg.Redis.SendChannel)
	assert.Equal(t, "websocket", cfg.Upstream.Mode)
	assert.True(t, cfg.Settings.AutoAccept)
	assert.True(t, cfg.Settings.PrintChat)
	assert.Equal(t, 3*time.Second, cfg.Bridge.CommandTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bridge.RequestTimeout)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.API.RateLimitWhitelist)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BoolValues(t *testing.T) {
	t.Chdir(t.TempDir())
	for value, want := range map[string]bool{"1": true, "TRUE": true, "yes": true, "0": false, "off": false} {
		t.Setenv("BRIDGE_SETTINGS_AUTOACCEPT", value)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Settings.AutoAccept, value)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BRIDGE_REDIS_PORT", "sixty")
	t.Setenv("BRIDGE_BRIDGE_COMMANDTIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BRIDGE_REDIS_PORT")
	assert.Contains(t, err.Error(), "BRIDGE_BRIDGE_COMMANDTIMEOUT")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BRIDGE_REDIS_CLIENTNAME")
	assert.Contains(t, err.Error(), "BRIDGE_UPSTREAM_USERNAME")

	cfg.Redis.ClientName = "bot"
	cfg.Upstream.Username = "BridgeBot"
	assert.NoError(t, cfg.Validate())

	cfg.Transport = "kafka"
	cfg.Upstream.Mode = "carrier-pigeon"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport "kafka"`)
	assert.Contains(t, err.Error(), `unknown upstream mode "carrier-pigeon"`)

	cfg = Defaults()
	cfg.Redis.ClientName = "bot"
	cfg.Upstream.Username = "BridgeBot"
	cfg.Env = "production"
	assert.ErrorContains(t, cfg.Validate(), "BRIDGE_API_TOKEN")
}
