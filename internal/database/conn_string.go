package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/engine-bridge/internal/config"
)

const (
	defaultPort    = 5432
	defaultSSLMode = "prefer"
	appName        = "engine-bridge"
)

// BuildConnString builds a PostgreSQL connection URL from config.
// User and password are escaped, so special characters are safe.
func BuildConnString(cfg config.DBConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", appName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
