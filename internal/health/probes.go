package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/engine-bridge/internal/model"
)

// Service names reported in snapshots.
const (
	ServiceWebSocket = "websocket"
	ServiceEngine    = "engine"
	ServiceDatabase  = "database"
	ServiceCache     = "cache"
)

// Probe checks one service.
type Probe interface {
	Name() string

	// Probe returns the service status and, when not connected, the cause.
	Probe(ctx context.Context) (model.ServiceStatus, error)
}

// ConnectionState reports the duplex channel state without network I/O.
type ConnectionState interface {
	IsConnected() bool
}

// LivenessChecker calls the engine's liveness endpoint.
type LivenessChecker interface {
	Health(ctx context.Context) (*model.LivenessProbe, error)
}

type connectionProbe struct {
	conn ConnectionState
}

// NewConnectionProbe reports the duplex channel state.
func NewConnectionProbe(conn ConnectionState) Probe {
	return connectionProbe{conn: conn}
}

func (p connectionProbe) Name() string { return ServiceWebSocket }

func (p connectionProbe) Probe(context.Context) (model.ServiceStatus, error) {
	if p.conn.IsConnected() {
		return model.ServiceConnected, nil
	}
	return model.ServiceDisconnected, nil
}

type engineProbe struct {
	client LivenessChecker
}

// NewEngineProbe calls the engine liveness endpoint. A transport failure
// means disconnected; an HTTP error or a non-ok status means error.
func NewEngineProbe(client LivenessChecker) Probe {
	return engineProbe{client: client}
}

func (p engineProbe) Name() string { return ServiceEngine }

func (p engineProbe) Probe(ctx context.Context) (model.ServiceStatus, error) {
	probe, err := p.client.Health(ctx)
	if err != nil {
		var e *model.Error
		if errors.As(err, &e) && e.Kind == model.KindHTTP && e.StatusCode == 0 {
			return model.ServiceDisconnected, err
		}
		return model.ServiceError, err
	}
	if !probe.Healthy() {
		return model.ServiceError, fmt.Errorf("engine reported status %q", probe.Status)
	}
	return model.ServiceConnected, nil
}

type pingProbe struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingProbe reports connected when ping succeeds and error otherwise.
func NewPingProbe(name string, ping func(ctx context.Context) error) Probe {
	return pingProbe{name: name, ping: ping}
}

// NewDatabaseProbe pings a PostgreSQL pool.
func NewDatabaseProbe(pool *pgxpool.Pool) Probe {
	return NewPingProbe(ServiceDatabase, pool.Ping)
}

// NewCacheProbe sends PING to Redis.
func NewCacheProbe(client *redis.Client) Probe {
	return NewPingProbe(ServiceCache, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func (p pingProbe) Name() string { return p.name }

func (p pingProbe) Probe(ctx context.Context) (model.ServiceStatus, error) {
	if err := p.ping(ctx); err != nil {
		return model.ServiceError, err
	}
	return model.ServiceConnected, nil
}
