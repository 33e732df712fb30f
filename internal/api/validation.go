package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rickgao/engine-bridge/internal/model"
)

// ValidateGraph validates the whole graph.
func (c *Client) ValidateGraph(ctx context.Context) (*model.ValidationResult, error) {
	return c.validate(ctx, "/api/validation/graph")
}

// ValidateNode validates a single node.
func (c *Client) ValidateNode(ctx context.Context, id string) (*model.ValidationResult, error) {
	return c.validate(ctx, "/api/validation/nodes/"+url.PathEscape(id))
}

// ValidateEdge validates a single edge.
func (c *Client) ValidateEdge(ctx context.Context, id string) (*model.ValidationResult, error) {
	return c.validate(ctx, "/api/validation/edges/"+url.PathEscape(id))
}

func (c *Client) validate(ctx context.Context, path string) (*model.ValidationResult, error) {
	var res model.ValidationResult
	if err := c.send(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
