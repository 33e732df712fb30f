package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("engine.http_url", c.Engine.HTTPURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("engine.ws_url", c.Engine.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Engine.Timeout <= 0 {
		return errors.New("engine.timeout must be > 0")
	}
	if c.Engine.RateLimit < 0 {
		return errors.New("engine.rate_limit must be >= 0")
	}

	if c.Connection.RequestTimeout <= 0 {
		return errors.New("connection.request_timeout must be > 0")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if c.Connection.HeartbeatTimeout < 0 {
		return errors.New("connection.heartbeat_timeout must be >= 0")
	}
	if c.Connection.HeartbeatTimeout > 0 && c.Connection.HeartbeatTimeout <= c.Connection.HeartbeatInterval {
		return fmt.Errorf("connection.heartbeat_timeout (%v) must exceed heartbeat_interval (%v)",
			c.Connection.HeartbeatTimeout, c.Connection.HeartbeatInterval)
	}
	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}

	if c.Health.Interval <= 0 {
		return errors.New("health.interval must be > 0")
	}
	if c.Health.Timeout <= 0 {
		return errors.New("health.timeout must be > 0")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %v, got %q", field, schemes, u.Scheme)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
