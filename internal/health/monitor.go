package health

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/engine-bridge/internal/events"
	"github.com/rickgao/engine-bridge/internal/metrics"
	"github.com/rickgao/engine-bridge/internal/model"
)

// AlertLevel is the severity of a health alert.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
)

// Alert is published when a check is not healthy.
type Alert struct {
	Level  AlertLevel
	Status model.HealthStatus
}

// ServiceStatusChange is published when a service's status differs from
// the previous check. Previous is empty on the first check.
type ServiceStatusChange struct {
	Service  string
	Previous model.ServiceStatus
	Current  model.ServiceStatus
	At       time.Time
}

// Events holds the topics published by the Monitor.
type Events struct {
	HealthCheck          *events.Topic[model.HealthStatus]
	HealthAlert          *events.Topic[Alert]
	ServiceStatusChanged *events.Topic[ServiceStatusChange]
}

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration // Check interval (default: 30s)
	Timeout  time.Duration // Per-probe timeout (default: 5s)
	Now      func() time.Time

	// Settings are reported verbatim by RunDiagnostics. Callers redact secrets.
	Settings map[string]string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Monitor periodically probes services and publishes health snapshots.
type Monitor struct {
	cfg      Config
	probes   []Probe
	counters *metrics.Accumulator
	registry *metrics.Registry // Optional
	logger   *slog.Logger
	events   *Events
	now      func() time.Time

	// Optional sources for diagnostics.
	conn    ConnectionStats
	pending PendingCounter

	mu       sync.RWMutex
	latest   *model.HealthStatus
	previous map[string]model.ServiceStatus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRegistry mirrors probe results into Prometheus gauges.
func WithRegistry(r *metrics.Registry) Option {
	return func(m *Monitor) {
		m.registry = r
	}
}

// WithConnectionStats supplies connection details for diagnostics.
func WithConnectionStats(c ConnectionStats) Option {
	return func(m *Monitor) {
		m.conn = c
	}
}

// WithPendingCounter supplies the pending request count for diagnostics.
func WithPendingCounter(p PendingCounter) Option {
	return func(m *Monitor) {
		m.pending = p
	}
}

// New creates a new Monitor. counters may be nil.
func New(cfg Config, probes []Probe, counters *metrics.Accumulator, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if counters == nil {
		counters = metrics.NewAccumulator(now)
	}

	logger = logger.With("component", "health")
	m := &Monitor{
		cfg:      cfg,
		probes:   probes,
		counters: counters,
		logger:   logger,
		now:      now,
		events: &Events{
			HealthCheck:          events.NewTopic[model.HealthStatus]("healthCheck", logger),
			HealthAlert:          events.NewTopic[Alert]("healthAlert", logger),
			ServiceStatusChanged: events.NewTopic[ServiceStatusChange]("serviceStatusChanged", logger),
		},
		previous: make(map[string]model.ServiceStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the monitor's event topics.
func (m *Monitor) Events() *Events {
	return m.events
}

// Metrics returns the request counters.
func (m *Monitor) Metrics() *metrics.Accumulator {
	return m.counters
}

// IncrementRequestCount counts one request.
func (m *Monitor) IncrementRequestCount() { m.counters.IncrementRequestCount() }

// IncrementErrorCount counts one failed request.
func (m *Monitor) IncrementErrorCount() { m.counters.IncrementErrorCount() }

// RecordResponseTime adds one response time.
func (m *Monitor) RecordResponseTime(d time.Duration) { m.counters.RecordResponseTime(d) }

// ResetMetrics zeroes the counters and restarts the uptime clock.
func (m *Monitor) ResetMetrics() { m.counters.Reset() }

// Start begins the check loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("health monitor started",
		"interval", m.cfg.Interval,
		"probes", len(m.probes),
	)

	return nil
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("health monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the event topics. Call after Stop.
func (m *Monitor) Close() {
	m.events.HealthCheck.Close()
	m.events.HealthAlert.Close()
	m.events.ServiceStatusChanged.Close()
}

// run is the main check loop.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Check immediately on start.
	m.Check(m.ctx)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Check(m.ctx)
		}
	}
}

// Latest returns the most recent snapshot, or false before the first check.
func (m *Monitor) Latest() (model.HealthStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.latest == nil {
		return model.HealthStatus{}, false
	}
	return copyStatus(*m.latest), true
}

// Check probes every service concurrently and publishes a new snapshot.
func (m *Monitor) Check(ctx context.Context) model.HealthStatus {
	start := m.now()

	results := make([]model.ServiceStatus, len(m.probes))
	var g errgroup.Group
	for i, probe := range m.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()

			status, err := probe.Probe(pctx)
			if err != nil {
				m.logger.Debug("probe failed",
					"service", probe.Name(),
					"status", status,
					"error", err,
				)
			}
			results[i] = status
			return nil
		})
	}
	g.Wait()

	services := make(map[string]model.ServiceStatus, len(m.probes))
	for i, probe := range m.probes {
		services[probe.Name()] = results[i]
		m.registry.SetServiceStatus(probe.Name(), statusValue(results[i]))
	}

	snap := m.counters.Snapshot()
	status := model.HealthStatus{
		Status:    model.Aggregate(services),
		Timestamp: start,
		UptimeMs:  snap.Uptime.Milliseconds(),
		Services:  services,
		Metrics: model.HealthMetrics{
			RequestCount:          snap.RequestCount,
			ErrorCount:            snap.ErrorCount,
			AverageResponseTimeMs: snap.AverageResponseTimeMs,
			MemoryUsage:           memoryUsage(),
		},
	}

	changes := m.record(status)
	for _, c := range changes {
		m.logger.Info("service status changed",
			"service", c.Service,
			"previous", c.Previous,
			"current", c.Current,
		)
		m.events.ServiceStatusChanged.Publish(c)
	}

	m.events.HealthCheck.Publish(copyStatus(status))

	switch status.Status {
	case model.Unhealthy:
		m.logger.Error("health check unhealthy", "services", services)
		m.events.HealthAlert.Publish(Alert{Level: AlertCritical, Status: copyStatus(status)})
	case model.Degraded:
		m.logger.Warn("health check degraded", "services", services)
		m.events.HealthAlert.Publish(Alert{Level: AlertWarning, Status: copyStatus(status)})
	default:
		m.logger.Debug("health check healthy", "duration", m.now().Sub(start))
	}

	return status
}

// record stores status as latest and returns per-service changes.
func (m *Monitor) record(status model.HealthStatus) []ServiceStatusChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changes []ServiceStatusChange
	for name, current := range status.Services {
		previous := m.previous[name]
		if previous != current {
			changes = append(changes, ServiceStatusChange{
				Service:  name,
				Previous: previous,
				Current:  current,
				At:       status.Timestamp,
			})
		}
		m.previous[name] = current
	}

	latest := copyStatus(status)
	m.latest = &latest
	return changes
}

func copyStatus(s model.HealthStatus) model.HealthStatus {
	services := make(map[string]model.ServiceStatus, len(s.Services))
	for k, v := range s.Services {
		services[k] = v
	}
	s.Services = services
	return s
}

func statusValue(s model.ServiceStatus) float64 {
	switch s {
	case model.ServiceConnected:
		return 1
	case model.ServiceError:
		return -1
	}
	return 0
}

// memoryUsage reports Go heap statistics and, where available, process RSS.
func memoryUsage() model.Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	mem := model.Memory{
		HeapAlloc: ms.HeapAlloc,
		HeapSys:   ms.HeapSys,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			mem.RSS = info.RSS
		}
	}
	return mem
}
