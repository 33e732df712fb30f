package config

import "time"

// Config is the root configuration for a bridge instance.
type Config struct {
	Engine     EngineConfig     `yaml:"engine" toml:"engine"`
	Connection ConnectionConfig `yaml:"connection" toml:"connection"`
	Health     HealthConfig     `yaml:"health" toml:"health"`
	Database   DBConfig         `yaml:"database" toml:"database"`
	Redis      RedisConfig      `yaml:"redis" toml:"redis"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// EngineConfig holds remote engine endpoints and credentials.
type EngineConfig struct {
	HTTPURL    string        `yaml:"http_url" toml:"http_url" env:"ENGINE_HTTP_URL"`
	WSURL      string        `yaml:"ws_url" toml:"ws_url" env:"ENGINE_WS_URL"`
	Token      string        `yaml:"token" toml:"token" env:"ENGINE_TOKEN"`
	JWTSecret  string        `yaml:"jwt_secret" toml:"jwt_secret" env:"ENGINE_JWT_SECRET"`
	JWTSubject string        `yaml:"jwt_subject" toml:"jwt_subject" env:"ENGINE_JWT_SUBJECT"`
	JWTTTL     time.Duration `yaml:"jwt_ttl" toml:"jwt_ttl" env:"ENGINE_JWT_TTL"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout" env:"ENGINE_TIMEOUT"`     // Fallback per-call timeout
	RateLimit  float64       `yaml:"rate_limit" toml:"rate_limit" env:"ENGINE_RATE_LIMIT"` // Fallback requests/sec, 0 = unlimited
	RateBurst  int           `yaml:"rate_burst" toml:"rate_burst" env:"ENGINE_RATE_BURST"`
}

// ConnectionConfig holds duplex channel settings.
type ConnectionConfig struct {
	RequestTimeout       time.Duration `yaml:"request_timeout" toml:"request_timeout" env:"ENGINE_REQUEST_TIMEOUT"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval" env:"ENGINE_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout" toml:"heartbeat_timeout" env:"ENGINE_HEARTBEAT_TIMEOUT"` // 0 = never force-close on silence
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" toml:"reconnect_base_delay" env:"ENGINE_RECONNECT_BASE_DELAY"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts" env:"ENGINE_MAX_RECONNECT_ATTEMPTS"`
	WriteTimeout         time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size" toml:"buffer_size"`
}

// HealthConfig holds health monitor settings.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval" toml:"interval" env:"ENGINE_HEALTH_INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout" env:"ENGINE_HEALTH_TIMEOUT"`
}

// DBConfig holds the optional PostgreSQL dependency probed by the health
// monitor. An empty host disables the probe.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host" env:"ENGINE_DB_HOST"`
	Port     int    `yaml:"port" toml:"port" env:"ENGINE_DB_PORT"`
	Name     string `yaml:"name" toml:"name" env:"ENGINE_DB_NAME"`
	User     string `yaml:"user" toml:"user" env:"ENGINE_DB_USER"`
	Password string `yaml:"password" toml:"password" env:"ENGINE_DB_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}

// Enabled reports whether a database probe is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// RedisConfig holds the optional cache dependency probed by the health
// monitor. An empty address disables the probe.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" env:"ENGINE_REDIS_ADDR"`
	Password string `yaml:"password" toml:"password" env:"ENGINE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" toml:"db"`
}

// Enabled reports whether a cache probe is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level" env:"ENGINE_LOG_LEVEL"`
	Format     string `yaml:"format" toml:"format" env:"ENGINE_LOG_FORMAT"` // "text" or "json"
	File       string `yaml:"file" toml:"file" env:"ENGINE_LOG_FILE"`       // Empty = stdout
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port" toml:"port" env:"ENGINE_METRICS_PORT"`
	Path string `yaml:"path" toml:"path"`
}
