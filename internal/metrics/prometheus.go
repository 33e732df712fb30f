package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engine_bridge"

// Transport labels.
const (
	TransportDuplex   = "duplex"
	TransportFallback = "fallback"
)

// Registry owns the Prometheus collectors. A nil *Registry is valid and
// records nothing.
type Registry struct {
	reg *prometheus.Registry

	requests        *prometheus.CounterVec
	errors          *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	lateResponses   *prometheus.CounterVec
	connectionState prometheus.Gauge
	reconnects      prometheus.Counter
	serviceStatus   *prometheus.GaugeVec
}

// NewRegistry creates a registry with the bridge collectors and the
// standard Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests issued to the engine.",
		}, []string{"operation", "transport"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Failed requests by error kind.",
		}, []string{"operation", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"operation", "transport"}),
		lateResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_responses_total",
			Help:      "Responses received after the local wait ended.",
		}, []string{"reason"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Duplex channel state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 closed).",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Times the reconnect budget was exhausted.",
		}),
		serviceStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_status",
			Help:      "Last probed service status (1 connected, 0 disconnected, -1 error).",
		}, []string{"service"}),
	}

	r.reg.MustRegister(
		r.requests,
		r.errors,
		r.duration,
		r.lateResponses,
		r.connectionState,
		r.reconnects,
		r.serviceStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed request. kind is empty on success.
func (r *Registry) ObserveRequest(operation, transport, kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, transport).Inc()
	r.duration.WithLabelValues(operation, transport).Observe(d.Seconds())
	if kind != "" {
		r.errors.WithLabelValues(operation, kind).Inc()
	}
}

// LateResponse counts a response that arrived after its wait ended.
func (r *Registry) LateResponse(reason string) {
	if r == nil {
		return
	}
	r.lateResponses.WithLabelValues(reason).Inc()
}

// SetConnectionState records the numeric connection state.
func (r *Registry) SetConnectionState(state int) {
	if r == nil {
		return
	}
	r.connectionState.Set(float64(state))
}

// ReconnectExhausted counts one exhaustion of the reconnect budget.
func (r *Registry) ReconnectExhausted() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

// SetServiceStatus records a probe outcome: 1 connected, 0 disconnected, -1 error.
func (r *Registry) SetServiceStatus(service string, value float64) {
	if r == nil {
		return
	}
	r.serviceStatus.WithLabelValues(service).Set(value)
}
