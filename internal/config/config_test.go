package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "UnifiedMCP-Client/internal/errors"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Server.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout())
	assert.True(t, cfg.Server.RealtimeEnabled())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Relay.Drivers)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://mcp.example.com
  api_key_env: MCP_TOKEN
  timeout_seconds: 5
  realtime: false
  realtime_url: https://push.example.com
log:
  level: debug
  format: json
metrics:
  address: ":9464"
relay:
  drivers: [redis, mysql]
  redis:
    address: localhost:6379
    list: events
    max_len: 100
  mysql:
    dsn: user:pass@tcp(localhost:3306)/mcp
`)
	cfg, err := load(path, env(map[string]string{"MCP_TOKEN": "from-env"}))
	require.NoError(t, err)

	assert.Equal(t, "https://mcp.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout())
	assert.False(t, cfg.Server.RealtimeEnabled())
	assert.Equal(t, "https://push.example.com", cfg.Server.RealtimeURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9464", cfg.Metrics.Address)
	assert.Equal(t, []string{"redis", "mysql"}, cfg.Relay.Drivers)
	assert.Equal(t, "events", cfg.Relay.Redis.List)
	assert.EqualValues(t, 100, cfg.Relay.Redis.MaxLen)
	assert.Equal(t, "user:pass@tcp(localhost:3306)/mcp", cfg.Relay.MySQL.DSN)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://mcp.example.com
  api_key: file-key
  realtime: true
`)
	cfg, err := load(path, env(map[string]string{
		EnvURL:      "http://127.0.0.1:4000",
		EnvAPIKey:   "env-key",
		EnvRealtime: "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4000", cfg.Server.BaseURL)
	assert.Equal(t, "env-key", cfg.Server.APIKey)
	assert.False(t, cfg.Server.RealtimeEnabled())
}

func TestInvalidRealtimeEnv(t *testing.T) {
	_, err := load("", env(map[string]string{EnvRealtime: "sometimes"}))
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := load(writeConfig(t, "server:\n  base_url: ftp://example.com\n"), env(nil))
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = load(writeConfig(t, "relay:\n  drivers: [kafka]\n"), env(nil))
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := load(writeConfig(t, "server: [unclosed"), env(nil))
	assert.Error(t, err)
}
