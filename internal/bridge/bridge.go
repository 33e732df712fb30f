package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/engine-bridge/internal/api"
	"github.com/rickgao/engine-bridge/internal/auth"
	"github.com/rickgao/engine-bridge/internal/config"
	"github.com/rickgao/engine-bridge/internal/connection"
	"github.com/rickgao/engine-bridge/internal/correlator"
	"github.com/rickgao/engine-bridge/internal/database"
	"github.com/rickgao/engine-bridge/internal/health"
	"github.com/rickgao/engine-bridge/internal/metrics"
	"github.com/rickgao/engine-bridge/internal/model"
	"github.com/rickgao/engine-bridge/internal/router"
)

// Client bridges callers to the engine.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time

	creds      *auth.Credentials
	rest       *api.Client
	conn       *connection.Manager
	correlator *correlator.Correlator
	router     *router.Router
	monitor    *health.Monitor
	counters   *metrics.Accumulator
	registry   *metrics.Registry

	pool  *pgxpool.Pool
	cache *redis.Client

	cancelWatch context.CancelFunc
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	now        func() time.Time
	registry   *metrics.Registry
}

// WithHTTPClient sets the HTTP client used by the REST fallback.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithClock injects the clock used for timestamps and metrics.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRegistry shares a Prometheus registry instead of creating one.
func WithRegistry(r *metrics.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New wires every component from cfg. Nothing connects until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = metrics.NewRegistry()
	}

	creds, err := auth.LoadCredentials(auth.Options{
		Token:     cfg.Engine.Token,
		JWTSecret: cfg.Engine.JWTSecret,
		Subject:   cfg.Engine.JWTSubject,
		TTL:       cfg.Engine.JWTTTL,
		Now:       o.now,
	})
	switch {
	case errors.Is(err, auth.ErrNoCredentials):
		logger.Warn("no engine credentials configured, connecting anonymously")
		creds = nil
	case err != nil:
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		now:      o.now,
		creds:    creds,
		counters: metrics.NewAccumulator(o.now),
		registry: o.registry,
	}

	restOpts := []api.ClientOption{
		api.WithTimeout(cfg.Engine.Timeout),
		api.WithRateLimit(cfg.Engine.RateLimit, cfg.Engine.RateBurst),
		api.WithLogger(logger),
	}
	if o.httpClient != nil {
		restOpts = append([]api.ClientOption{api.WithHTTPClient(o.httpClient)}, restOpts...)
	}
	c.rest = api.NewClient(cfg.Engine.HTTPURL, creds, restOpts...)

	// The correlator sends through the manager and the manager delivers
	// inbound frames to the router, which resolves through the correlator.
	duplex := &duplexSender{}
	c.correlator = correlator.New(correlator.Config{
		Timeout: cfg.Connection.RequestTimeout,
		Late:    c.registry,
		Now:     o.now,
	}, duplex, c.rest, logger)
	c.router = router.NewRouter(c.correlator, logger)
	c.conn = connection.NewManager(connection.ManagerConfig{
		WSURL:                cfg.Engine.WSURL,
		Credentials:          creds,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		HeartbeatTimeout:     cfg.Connection.HeartbeatTimeout,
		ReconnectBaseDelay:   cfg.Connection.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		BufferSize:           cfg.Connection.BufferSize,
		Now:                  o.now,
	}, c.router, logger)
	duplex.manager = c.conn

	probes := []health.Probe{
		health.NewConnectionProbe(c.conn),
		health.NewEngineProbe(c.rest),
	}
	if cfg.Database.Enabled() {
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		c.pool = pool
		probes = append(probes, health.NewDatabaseProbe(pool))
	}
	if cfg.Redis.Enabled() {
		c.cache = database.NewCache(cfg.Redis)
		probes = append(probes, health.NewCacheProbe(c.cache))
	}

	c.monitor = health.New(health.Config{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
		Now:      o.now,
		Settings: c.settings(),
	}, probes, c.counters, logger,
		health.WithRegistry(c.registry),
		health.WithConnectionStats(c.conn),
		health.WithPendingCounter(c.correlator),
	)

	return c, nil
}

// duplexSender forwards to the manager once it exists.
type duplexSender struct {
	manager *connection.Manager
}

func (d *duplexSender) Send(env model.Envelope) error {
	return d.manager.Send(env)
}

func (d *duplexSender) IsConnected() bool {
	return d.manager.IsConnected()
}

// Start connects the duplex channel and starts the health monitor. A
// failed first dial is not fatal: reconnection continues in the
// background and requests use the REST fallback meanwhile.
func (c *Client) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	c.cancelWatch = cancel
	c.watchConnection(watchCtx)

	if err := c.conn.Connect(ctx); err != nil {
		if errors.Is(err, connection.ErrAlreadyClosed) {
			return err
		}
		c.logger.Warn("initial connection failed, using REST fallback until reconnected",
			"error", err,
		)
	}

	if err := c.monitor.Start(ctx); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	return nil
}

// Stop shuts everything down. Pending requests fail with CONNECTION_CLOSED.
func (c *Client) Stop(ctx context.Context) error {
	var errs []error

	if err := c.monitor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop health monitor: %w", err))
	}
	if err := c.conn.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	c.correlator.Close()
	c.router.Close()
	c.monitor.Close()

	if c.cancelWatch != nil {
		c.cancelWatch()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}

	return errors.Join(errs...)
}

// watchConnection mirrors connection events into metrics.
func (c *Client) watchConnection(ctx context.Context) {
	states, _ := c.conn.Events().StateChanges.Subscribe(ctx)
	exhausted, _ := c.conn.Events().MaxReconnectAttemptsReached.Subscribe(ctx)
	transportErrs, _ := c.conn.Events().Errors.Subscribe(ctx)

	c.registry.SetConnectionState(int(c.conn.State()))

	go func() {
		for {
			select {
			case ev, ok := <-states:
				if !ok {
					return
				}
				c.registry.SetConnectionState(int(ev.To))
			case ev, ok := <-transportErrs:
				if !ok {
					return
				}
				c.counters.IncrementErrorCount()
				c.logger.Debug("transport error counted", "error", ev.Err)
			case ev, ok := <-exhausted:
				if !ok {
					return
				}
				c.registry.ReconnectExhausted()
				c.logger.Error("engine unreachable, reconnection stopped",
					"attempts", ev.Attempts,
				)
			}
		}
	}()
}

// settings is the redacted configuration reported by diagnostics.
func (c *Client) settings() map[string]string {
	cfg := c.cfg
	s := map[string]string{
		"engine.http_url":                   cfg.Engine.HTTPURL,
		"engine.ws_url":                     cfg.Engine.WSURL,
		"engine.credentials":                c.creds.Redacted(),
		"engine.timeout":                    cfg.Engine.Timeout.String(),
		"connection.request_timeout":        cfg.Connection.RequestTimeout.String(),
		"connection.heartbeat_interval":     cfg.Connection.HeartbeatInterval.String(),
		"connection.heartbeat_timeout":      cfg.Connection.HeartbeatTimeout.String(),
		"connection.reconnect_base_delay":   cfg.Connection.ReconnectBaseDelay.String(),
		"connection.max_reconnect_attempts": strconv.Itoa(cfg.Connection.MaxReconnectAttempts),
		"health.interval":                   cfg.Health.Interval.String(),
		"health.timeout":                    cfg.Health.Timeout.String(),
	}
	if cfg.Database.Enabled() {
		s["database.host"] = cfg.Database.Host
	}
	if cfg.Redis.Enabled() {
		s["redis.addr"] = cfg.Redis.Addr
	}
	return s
}

// Updates returns the broadcast update topics.
func (c *Client) Updates() *router.Topics {
	return c.router.Topics()
}

// ConnectionEvents returns the connection lifecycle topics.
func (c *Client) ConnectionEvents() *connection.Events {
	return c.conn.Events()
}

// Connection returns the Connection Manager.
func (c *Client) Connection() *connection.Manager {
	return c.conn
}

// Health returns the Health Monitor.
func (c *Client) Health() *health.Monitor {
	return c.monitor
}

// Registry returns the Prometheus registry.
func (c *Client) Registry() *metrics.Registry {
	return c.registry
}

// RouterStats returns inbound routing statistics.
func (c *Client) RouterStats() router.RouterStats {
	return c.router.Stats()
}
