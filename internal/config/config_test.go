package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	yaml := `
engine:
  http_url: https://engine.example.com
  ws_url: wss://engine.example.com/ws
  token: abc
connection:
  request_timeout: 45s
  heartbeat_interval: 10s
  max_reconnect_attempts: 5
health:
  interval: 15s
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://engine.example.com", cfg.Engine.HTTPURL)
	assert.Equal(t, "wss://engine.example.com/ws", cfg.Engine.WSURL)
	assert.Equal(t, "abc", cfg.Engine.Token)
	assert.Equal(t, 45*time.Second, cfg.Connection.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Connection.HeartbeatInterval)
	assert.Equal(t, 5, cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, 15*time.Second, cfg.Health.Interval)
}

func TestLoadTOML(t *testing.T) {
	content := `
[engine]
http_url = "https://engine.example.com"
ws_url = "wss://engine.example.com/ws"
timeout = "12s"

[connection]
reconnect_base_delay = "500ms"
`
	path := writeTempFile(t, "config.toml", content)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://engine.example.com", cfg.Engine.HTTPURL)
	assert.Equal(t, 12*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Connection.ReconnectBaseDelay)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_ENGINE_SECRET", "secret123")

	yaml := `
engine:
  jwt_secret: ${TEST_ENGINE_SECRET}
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.Engine.JWTSecret)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_HTTP_URL", "https://override.example.com")
	t.Setenv("ENGINE_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("ENGINE_HEALTH_TIMEOUT", "2s")

	yaml := `
engine:
  http_url: https://file.example.com
connection:
  max_reconnect_attempts: 8
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.com", cfg.Engine.HTTPURL)
	assert.Equal(t, 3, cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.Health.Timeout)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("ENGINE_WS_URL", "ws://10.0.0.1:9000/ws")

	cfg, err := LoadAndValidate("")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.1:9000/ws", cfg.Engine.WSURL)
	assert.Equal(t, DefaultHTTPURL, cfg.Engine.HTTPURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "engine:\n  token: abc\n")

	cfg, err := LoadWithDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPURL, cfg.Engine.HTTPURL)
	assert.Equal(t, DefaultWSURL, cfg.Engine.WSURL)
	assert.Equal(t, DefaultEngineTimeout, cfg.Engine.Timeout)
	assert.Equal(t, DefaultRequestTimeout, cfg.Connection.RequestTimeout)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Connection.HeartbeatInterval)
	assert.Equal(t, time.Duration(0), cfg.Connection.HeartbeatTimeout, "stale detection stays off by default")
	assert.Equal(t, DefaultReconnectBaseDelay, cfg.Connection.ReconnectBaseDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, DefaultHealthInterval, cfg.Health.Interval)
	assert.Equal(t, DefaultHealthTimeout, cfg.Health.Timeout)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	assert.Equal(t, 0, cfg.Database.Port, "database defaults only apply when enabled")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing http url",
			mutate:  func(c *Config) { c.Engine.HTTPURL = "" },
			wantErr: "engine.http_url is required",
		},
		{
			name:    "wrong ws scheme",
			mutate:  func(c *Config) { c.Engine.WSURL = "http://engine/ws" },
			wantErr: `engine.ws_url must use scheme [ws wss], got "http"`,
		},
		{
			name:    "zero max reconnect attempts",
			mutate:  func(c *Config) { c.Connection.MaxReconnectAttempts = -1 },
			wantErr: "connection.max_reconnect_attempts must be >= 1",
		},
		{
			name: "heartbeat timeout shorter than interval",
			mutate: func(c *Config) {
				c.Connection.HeartbeatInterval = 30 * time.Second
				c.Connection.HeartbeatTimeout = 10 * time.Second
			},
			wantErr: "connection.heartbeat_timeout (10s) must exceed heartbeat_interval (30s)",
		},
		{
			name: "database min conns exceeds max",
			mutate: func(c *Config) {
				c.Database = DBConfig{Host: "localhost", Name: "engine", User: "bridge", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "valid database",
			mutate: func(c *Config) {
				c.Database = DBConfig{Host: "localhost", Name: "engine", User: "bridge", MaxConns: 2}
			},
			wantErr: "",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
