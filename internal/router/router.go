package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/engine-bridge/internal/connection"
	"github.com/rickgao/engine-bridge/internal/model"
)

var _ connection.Handler = (*Router)(nil)

// Router demultiplexes inbound envelopes by type. It is the Connection
// Manager's handler, so every call arrives from the single dispatch loop
// in arrival order.
type Router struct {
	resolver Resolver
	logger   *slog.Logger
	topics   *Topics

	mu                 sync.RWMutex
	received           int64
	resolved           int64
	unmatched          int64
	broadcast          int64
	unknownMessages    int64
	teardowns          int64
	rejectedOnTeardown int64
}

// NewRouter creates a new Message Router.
func NewRouter(resolver Resolver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "router")

	return &Router{
		resolver: resolver,
		logger:   logger,
		topics:   newTopics(logger),
	}
}

// Topics returns the broadcast update topics.
func (r *Router) Topics() *Topics {
	return r.topics
}

// HandleEnvelope routes one inbound envelope.
func (r *Router) HandleEnvelope(env model.Envelope, receivedAt time.Time) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	switch {
	case env.Type == model.TypeAgentResponse:
		if r.resolver.Resolve(env) {
			r.mu.Lock()
			r.resolved++
			r.mu.Unlock()
			return
		}
		r.mu.Lock()
		r.unmatched++
		r.mu.Unlock()

	case env.Type.IsBroadcast():
		update := model.Update{
			Type:       env.Type,
			ID:         env.ID,
			Payload:    env.Payload,
			Timestamp:  env.Timestamp,
			ReceivedAt: receivedAt,
		}
		r.topics.forType(env.Type).Publish(update)
		r.topics.All.Publish(update)

		r.mu.Lock()
		r.broadcast++
		r.mu.Unlock()

	default:
		// agent_request from the engine, or a type this client does not know.
		r.logger.Debug("skipping message type", "type", env.Type, "id", env.ID)
		r.mu.Lock()
		r.unknownMessages++
		r.mu.Unlock()
	}
}

// HandleTeardown rejects every pending request.
func (r *Router) HandleTeardown(err error) {
	n := r.resolver.RejectAll(err)

	r.mu.Lock()
	r.teardowns++
	r.rejectedOnTeardown += int64(n)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Warn("rejected pending requests on teardown",
			"count", n,
			"error", err,
		)
	}
}

// Close closes the update topics.
func (r *Router) Close() {
	r.topics.close()
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived:   r.received,
		ResponsesResolved:  r.resolved,
		ResponsesUnmatched: r.unmatched,
		UpdatesBroadcast:   r.broadcast,
		UnknownMessages:    r.unknownMessages,
		Teardowns:          r.teardowns,
		RejectedOnTeardown: r.rejectedOnTeardown,
	}
}
