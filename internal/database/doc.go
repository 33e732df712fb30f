// Package database opens the optional secondary stores the health monitor
// probes alongside the engine:
//   - PostgreSQL via a pgx connection pool
//   - Redis via go-redis
//
// Both constructors are lazy, so the bridge starts even when a store is
// down; the health probe reports the failure instead.
package database
