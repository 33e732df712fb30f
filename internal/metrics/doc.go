// Package metrics tracks request counters for the bridge.
//
// Accumulator holds the process-lifetime counters reported in health
// snapshots. Registry exposes the same activity, plus connection and
// health gauges, in Prometheus format.
//
// Key metrics:
//   - engine_bridge_requests_total{operation,transport}
//   - engine_bridge_request_errors_total{operation,kind}
//   - engine_bridge_request_duration_seconds{operation,transport}
//   - engine_bridge_late_responses_total{reason}
//   - engine_bridge_connection_state
//   - engine_bridge_service_status{service}
package metrics
