package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Envelope
// -----------------------------------------------------------------------------

// MessageType identifies the kind of envelope on the duplex channel.
type MessageType string

const (
	TypeAgentRequest     MessageType = "agent_request"
	TypeAgentResponse    MessageType = "agent_response"
	TypeApprovalUpdate   MessageType = "approval_update"
	TypeValidationUpdate MessageType = "validation_update"
	TypeGraphUpdate      MessageType = "graph_update"
	TypeHeartbeat        MessageType = "heartbeat"
)

// IsBroadcast reports whether the type is an uncorrelated update event.
func (t MessageType) IsBroadcast() bool {
	switch t {
	case TypeApprovalUpdate, TypeValidationUpdate, TypeGraphUpdate:
		return true
	}
	return false
}

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeAgentRequest, TypeAgentResponse, TypeHeartbeat:
		return true
	}
	return t.IsBroadcast()
}

// TimestampLayout is the ISO-8601 layout used for envelope timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the unit of communication on the duplex channel.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope marshals payload and stamps the envelope with now.
// An empty id is replaced with a fresh UUID.
func NewEnvelope(typ MessageType, id string, payload any, now time.Time) (Envelope, error) {
	if id == "" {
		id = uuid.NewString()
	}

	env := Envelope{
		Type:      typ,
		ID:        id,
		Timestamp: FormatTimestamp(now),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		env.Payload = raw
	}

	return env, nil
}

// FormatTimestamp renders t as an envelope timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DecodeEnvelope parses a raw frame into an Envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// -----------------------------------------------------------------------------
// Request/Response payloads
// -----------------------------------------------------------------------------

// Operation names a logical engine operation, independent of transport.
type Operation string

const (
	OpGetGraph            Operation = "graph.get"
	OpGetNode             Operation = "node.get"
	OpCreateNode          Operation = "node.create"
	OpUpdateNode          Operation = "node.update"
	OpDeleteNode          Operation = "node.delete"
	OpGetEdge             Operation = "edge.get"
	OpCreateEdge          Operation = "edge.create"
	OpUpdateEdge          Operation = "edge.update"
	OpDeleteEdge          Operation = "edge.delete"
	OpOrchestrate         Operation = "agent.orchestrate"
	OpListPendingApproval Operation = "approval.list_pending"
	OpGetApproval         Operation = "approval.get"
	OpApprove             Operation = "approval.approve"
	OpReject              Operation = "approval.reject"
	OpValidateGraph       Operation = "validation.graph"
	OpValidateNode        Operation = "validation.node"
	OpValidateEdge        Operation = "validation.edge"
	OpHealth              Operation = "health"
)

// RequestPayload is the payload of an agent_request envelope.
type RequestPayload struct {
	Operation Operation       `json:"operation"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// ResponseStatus is the terminal status of a correlated request.
type ResponseStatus string

const (
	StatusCompleted ResponseStatus = "completed"
	StatusFailed    ResponseStatus = "failed"
)

// ResponsePayload is the payload of an agent_response envelope.
type ResponsePayload struct {
	Status ResponseStatus  `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Failure returns an AGENT_ERROR when the orchestration reports failure.
func (r *OrchestrationResult) Failure() error {
	if r.Status != StatusFailed {
		return nil
	}
	return NewAgentError(r.ID, r.Error)
}

// IDParams addresses a single node, edge or approval.
type IDParams struct {
	ID string `json:"id"`
}

// ApproveParams are the parameters of an approve operation.
type ApproveParams struct {
	ID      string `json:"id"`
	Comment string `json:"comment,omitempty"`
}

// RejectParams are the parameters of a reject operation.
type RejectParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// -----------------------------------------------------------------------------
// Domain payloads (routed, not interpreted)
// -----------------------------------------------------------------------------

// Graph is the full engine graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a vertex of the engine graph.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// OrchestrationRequest submits work to the engine's agents.
type OrchestrationRequest struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// OrchestrationResult is the outcome of an orchestration request.
type OrchestrationResult struct {
	ID     string          `json:"id"`
	Status ResponseStatus  `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Approval is a pending or decided approval item.
type Approval struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"` // "pending", "approved", "rejected"
	Payload     json.RawMessage `json:"payload,omitempty"`
	RequestedAt string          `json:"requestedAt,omitempty"`
	Comment     string          `json:"comment,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// ValidationIssue is a single validation error or warning.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
}

// ValidationResult is the outcome of a validation operation.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// LivenessProbe is the engine's health endpoint response.
type LivenessProbe struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Healthy reports whether the engine considers itself alive.
func (p LivenessProbe) Healthy() bool {
	return p.Status == "ok" || p.Status == "healthy"
}

// Update is a broadcast update event re-emitted to subscribers.
type Update struct {
	Type       MessageType
	ID         string
	Payload    json.RawMessage
	Timestamp  string    // Remote timestamp from the envelope
	ReceivedAt time.Time // Local receive time
}
