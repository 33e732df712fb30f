// Package health implements the Health Monitor.
//
// The monitor:
//   - Runs every probe concurrently on a fixed interval (first check immediately)
//   - Aggregates probe results into healthy, degraded or unhealthy
//   - Publishes every snapshot, alerts for degraded/unhealthy, and per-service changes
//   - Reports request counters and process memory with each snapshot
//   - Produces read-only diagnostics on demand
package health
