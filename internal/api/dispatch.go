package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/engine-bridge/internal/model"
)

// ErrUnknownOperation is returned by Do for operations with no REST route.
var ErrUnknownOperation = errors.New("unknown operation")

// route is the REST rendition of a logical operation.
type route struct {
	method string
	path   string
	body   any
}

// Do executes a logical operation over REST and returns the raw result.
// params carries the same JSON the duplex channel would.
func (c *Client) Do(ctx context.Context, op model.Operation, params json.RawMessage) (json.RawMessage, error) {
	r, err := resolveRoute(op, params)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if r.method == http.MethodGet {
		err = c.get(ctx, r.path, &raw)
	} else {
		err = c.send(ctx, r.method, r.path, r.body, &raw)
	}
	if err != nil {
		return nil, err
	}

	if op == model.OpOrchestrate {
		var res model.OrchestrationResult
		if json.Unmarshal(raw, &res) == nil {
			if ferr := res.Failure(); ferr != nil {
				return raw, ferr
			}
		}
	}
	return raw, nil
}

func resolveRoute(op model.Operation, params json.RawMessage) (route, error) {
	id := func() (string, error) {
		var p model.IDParams
		if err := decodeParams(op, params, &p); err != nil {
			return "", err
		}
		if p.ID == "" {
			return "", fmt.Errorf("%s: missing id", op)
		}
		return url.PathEscape(p.ID), nil
	}

	switch op {
	case model.OpGetGraph:
		return route{http.MethodGet, "/api/graph", nil}, nil
	case model.OpHealth:
		return route{http.MethodGet, "/health", nil}, nil
	case model.OpListPendingApproval:
		return route{http.MethodGet, "/api/approvals/pending", nil}, nil
	case model.OpOrchestrate:
		return route{http.MethodPost, "/api/agents/orchestrate", params}, nil
	case model.OpValidateGraph:
		return route{http.MethodPost, "/api/validation/graph", nil}, nil
	case model.OpCreateNode:
		return route{http.MethodPost, "/api/graph/nodes", params}, nil
	case model.OpCreateEdge:
		return route{http.MethodPost, "/api/graph/edges", params}, nil
	}

	switch op {
	case model.OpGetNode, model.OpDeleteNode, model.OpUpdateNode,
		model.OpGetEdge, model.OpDeleteEdge, model.OpUpdateEdge,
		model.OpGetApproval, model.OpApprove, model.OpReject,
		model.OpValidateNode, model.OpValidateEdge:
	default:
		return route{}, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	ident, err := id()
	if err != nil {
		return route{}, err
	}

	switch op {
	case model.OpGetNode:
		return route{http.MethodGet, "/api/graph/nodes/" + ident, nil}, nil
	case model.OpUpdateNode:
		return route{http.MethodPut, "/api/graph/nodes/" + ident, params}, nil
	case model.OpDeleteNode:
		return route{http.MethodDelete, "/api/graph/nodes/" + ident, nil}, nil
	case model.OpGetEdge:
		return route{http.MethodGet, "/api/graph/edges/" + ident, nil}, nil
	case model.OpUpdateEdge:
		return route{http.MethodPut, "/api/graph/edges/" + ident, params}, nil
	case model.OpDeleteEdge:
		return route{http.MethodDelete, "/api/graph/edges/" + ident, nil}, nil
	case model.OpGetApproval:
		return route{http.MethodGet, "/api/approvals/" + ident, nil}, nil
	case model.OpApprove:
		var p model.ApproveParams
		if err := decodeParams(op, params, &p); err != nil {
			return route{}, err
		}
		body := struct {
			Comment string `json:"comment,omitempty"`
		}{p.Comment}
		return route{http.MethodPost, "/api/approvals/" + ident + "/approve", body}, nil
	case model.OpReject:
		var p model.RejectParams
		if err := decodeParams(op, params, &p); err != nil {
			return route{}, err
		}
		body := struct {
			Reason string `json:"reason"`
		}{p.Reason}
		return route{http.MethodPost, "/api/approvals/" + ident + "/reject", body}, nil
	case model.OpValidateNode:
		return route{http.MethodPost, "/api/validation/nodes/" + ident, nil}, nil
	default: // model.OpValidateEdge
		return route{http.MethodPost, "/api/validation/edges/" + ident, nil}, nil
	}
}

func decodeParams(op model.Operation, params json.RawMessage, out any) error {
	if len(params) == 0 {
		return fmt.Errorf("%s: missing params", op)
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("%s: decode params: %w", op, err)
	}
	return nil
}
