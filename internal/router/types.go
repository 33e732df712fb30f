package router

import (
	"log/slog"

	"github.com/rickgao/engine-bridge/internal/events"
	"github.com/rickgao/engine-bridge/internal/model"
)

// Resolver settles correlated responses. Implemented by the Request Correlator.
type Resolver interface {
	// Resolve settles the pending request matching env.ID and reports
	// whether one was found.
	Resolve(env model.Envelope) bool

	// RejectAll fails every pending request with err.
	RejectAll(err error) int
}

// Topics holds the broadcast update streams.
type Topics struct {
	// All carries every broadcast update regardless of type.
	All        *events.Topic[model.Update]
	Approval   *events.Topic[model.Update]
	Validation *events.Topic[model.Update]
	Graph      *events.Topic[model.Update]
}

func newTopics(logger *slog.Logger) *Topics {
	return &Topics{
		All:        events.NewTopic[model.Update]("update", logger),
		Approval:   events.NewTopic[model.Update](string(model.TypeApprovalUpdate), logger),
		Validation: events.NewTopic[model.Update](string(model.TypeValidationUpdate), logger),
		Graph:      events.NewTopic[model.Update](string(model.TypeGraphUpdate), logger),
	}
}

func (t *Topics) forType(typ model.MessageType) *events.Topic[model.Update] {
	switch typ {
	case model.TypeApprovalUpdate:
		return t.Approval
	case model.TypeValidationUpdate:
		return t.Validation
	case model.TypeGraphUpdate:
		return t.Graph
	}
	return nil
}

func (t *Topics) close() {
	t.All.Close()
	t.Approval.Close()
	t.Validation.Close()
	t.Graph.Close()
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived   int64
	ResponsesResolved  int64
	ResponsesUnmatched int64
	UpdatesBroadcast   int64
	UnknownMessages    int64
	Teardowns          int64
	RejectedOnTeardown int64
}
