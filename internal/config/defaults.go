package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHTTPURL              = "http://localhost:8000"
	DefaultWSURL                = "ws://localhost:8000/ws"
	DefaultJWTSubject           = "engine-bridge"
	DefaultJWTTTL               = 15 * time.Minute
	DefaultEngineTimeout        = 30 * time.Second
	DefaultRateBurst            = 10
	DefaultRequestTimeout       = 60 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultHealthInterval       = 30 * time.Second
	DefaultHealthTimeout        = 5 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 0
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultLogMaxSizeMB         = 100
	DefaultLogMaxBackups        = 3
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *Config) applyDefaults() {
	// Engine defaults
	if c.Engine.HTTPURL == "" {
		c.Engine.HTTPURL = DefaultHTTPURL
	}
	if c.Engine.WSURL == "" {
		c.Engine.WSURL = DefaultWSURL
	}
	if c.Engine.JWTSubject == "" {
		c.Engine.JWTSubject = DefaultJWTSubject
	}
	if c.Engine.JWTTTL == 0 {
		c.Engine.JWTTTL = DefaultJWTTTL
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = DefaultEngineTimeout
	}
	if c.Engine.RateBurst == 0 {
		c.Engine.RateBurst = DefaultRateBurst
	}

	// Connection defaults
	if c.Connection.RequestTimeout == 0 {
		c.Connection.RequestTimeout = DefaultRequestTimeout
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Health defaults
	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = DefaultHealthTimeout
	}

	if c.Database.Enabled() {
		applyDBDefaults(&c.Database)
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
