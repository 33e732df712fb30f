package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/engine-bridge/internal/correlator"
	"github.com/rickgao/engine-bridge/internal/model"
)

var (
	ErrReasonRequired = errors.New("reject: reason is required")
	ErrIDRequired     = errors.New("id is required")
)

// resultFailure is implemented by results that can report failure in a
// completed response.
type resultFailure interface {
	Failure() error
}

// call runs one logical operation and decodes its result into out.
// out may be nil. A result is decoded whenever the transport returned
// one, even alongside an error.
func (c *Client) call(ctx context.Context, op model.Operation, params any, out any) error {
	start := c.now()
	c.counters.IncrementRequestCount()

	resp, err := c.correlator.Send(ctx, correlator.Request{Operation: op, Params: params})

	elapsed := c.now().Sub(start)
	c.counters.RecordResponseTime(elapsed)

	transport := correlator.TransportFallback
	if resp != nil {
		transport = resp.Transport
	} else if c.conn.IsConnected() {
		transport = correlator.TransportDuplex
	}

	if resp != nil && out != nil && len(resp.Result) > 0 {
		if uerr := json.Unmarshal(resp.Result, out); uerr != nil && err == nil {
			err = fmt.Errorf("%s: decode result: %w", op, uerr)
		}
	}
	if err == nil {
		if f, ok := out.(resultFailure); ok {
			err = f.Failure()
		}
	}

	if err != nil {
		c.counters.IncrementErrorCount()
		c.registry.ObserveRequest(string(op), transport, errorKind(err), elapsed)
		c.logger.Debug("request failed",
			"operation", op,
			"transport", transport,
			"duration", elapsed,
			"error", err,
		)
		return err
	}
	c.registry.ObserveRequest(string(op), transport, "", elapsed)
	return nil
}

func errorKind(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	return "INTERNAL"
}

func requireID(op model.Operation, id string) error {
	if id == "" {
		return fmt.Errorf("%s: %w", op, ErrIDRequired)
	}
	return nil
}

// Graph returns the full engine graph.
func (c *Client) Graph(ctx context.Context) (*model.Graph, error) {
	var g model.Graph
	if err := c.call(ctx, model.OpGetGraph, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Node returns a node by id.
func (c *Client) Node(ctx context.Context, id string) (*model.Node, error) {
	if err := requireID(model.OpGetNode, id); err != nil {
		return nil, err
	}
	var n model.Node
	if err := c.call(ctx, model.OpGetNode, model.IDParams{ID: id}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNode creates a node and returns it as stored by the engine.
func (c *Client) CreateNode(ctx context.Context, node model.Node) (*model.Node, error) {
	var n model.Node
	if err := c.call(ctx, model.OpCreateNode, node, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNode replaces a node. node.ID selects the target.
func (c *Client) UpdateNode(ctx context.Context, node model.Node) (*model.Node, error) {
	if err := requireID(model.OpUpdateNode, node.ID); err != nil {
		return nil, err
	}
	var n model.Node
	if err := c.call(ctx, model.OpUpdateNode, node, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNode deletes a node.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	if err := requireID(model.OpDeleteNode, id); err != nil {
		return err
	}
	return c.call(ctx, model.OpDeleteNode, model.IDParams{ID: id}, nil)
}

// Edge returns an edge by id.
func (c *Client) Edge(ctx context.Context, id string) (*model.Edge, error) {
	if err := requireID(model.OpGetEdge, id); err != nil {
		return nil, err
	}
	var e model.Edge
	if err := c.call(ctx, model.OpGetEdge, model.IDParams{ID: id}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEdge creates an edge.
func (c *Client) CreateEdge(ctx context.Context, edge model.Edge) (*model.Edge, error) {
	var e model.Edge
	if err := c.call(ctx, model.OpCreateEdge, edge, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEdge replaces an edge. edge.ID selects the target.
func (c *Client) UpdateEdge(ctx context.Context, edge model.Edge) (*model.Edge, error) {
	if err := requireID(model.OpUpdateEdge, edge.ID); err != nil {
		return nil, err
	}
	var e model.Edge
	if err := c.call(ctx, model.OpUpdateEdge, edge, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEdge deletes an edge.
func (c *Client) DeleteEdge(ctx context.Context, id string) error {
	if err := requireID(model.OpDeleteEdge, id); err != nil {
		return err
	}
	return c.call(ctx, model.OpDeleteEdge, model.IDParams{ID: id}, nil)
}

// Orchestrate submits an orchestration request. A result reporting
// failure is returned together with an AGENT_ERROR.
func (c *Client) Orchestrate(ctx context.Context, req model.OrchestrationRequest) (*model.OrchestrationResult, error) {
	var res model.OrchestrationResult
	err := c.call(ctx, model.OpOrchestrate, req, &res)
	if err != nil && res.Status != model.StatusFailed {
		return nil, err
	}
	return &res, err
}

// PendingApprovals lists approvals awaiting a decision.
func (c *Client) PendingApprovals(ctx context.Context) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := c.call(ctx, model.OpListPendingApproval, nil, &approvals); err != nil {
		return nil, err
	}
	return approvals, nil
}

// Approval returns one approval.
func (c *Client) Approval(ctx context.Context, id string) (*model.Approval, error) {
	if err := requireID(model.OpGetApproval, id); err != nil {
		return nil, err
	}
	var a model.Approval
	if err := c.call(ctx, model.OpGetApproval, model.IDParams{ID: id}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Approve approves an item. comment is optional.
func (c *Client) Approve(ctx context.Context, id, comment string) (*model.Approval, error) {
	if err := requireID(model.OpApprove, id); err != nil {
		return nil, err
	}
	var a model.Approval
	if err := c.call(ctx, model.OpApprove, model.ApproveParams{ID: id, Comment: comment}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Reject rejects an item. reason must not be empty.
func (c *Client) Reject(ctx context.Context, id, reason string) (*model.Approval, error) {
	if err := requireID(model.OpReject, id); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, ErrReasonRequired
	}
	var a model.Approval
	if err := c.call(ctx, model.OpReject, model.RejectParams{ID: id, Reason: reason}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ValidateGraph validates the whole graph.
func (c *Client) ValidateGraph(ctx context.Context) (*model.ValidationResult, error) {
	return c.validate(ctx, model.OpValidateGraph, nil)
}

// ValidateNode validates a single node.
func (c *Client) ValidateNode(ctx context.Context, id string) (*model.ValidationResult, error) {
	if err := requireID(model.OpValidateNode, id); err != nil {
		return nil, err
	}
	return c.validate(ctx, model.OpValidateNode, model.IDParams{ID: id})
}

// ValidateEdge validates a single edge.
func (c *Client) ValidateEdge(ctx context.Context, id string) (*model.ValidationResult, error) {
	if err := requireID(model.OpValidateEdge, id); err != nil {
		return nil, err
	}
	return c.validate(ctx, model.OpValidateEdge, model.IDParams{ID: id})
}

func (c *Client) validate(ctx context.Context, op model.Operation, params any) (*model.ValidationResult, error) {
	var res model.ValidationResult
	if err := c.call(ctx, op, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping performs a liveness round trip and returns its latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := c.now()
	var probe model.LivenessProbe
	if err := c.call(ctx, model.OpHealth, nil, &probe); err != nil {
		return 0, err
	}
	return c.now().Sub(start), nil
}
