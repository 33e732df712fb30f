package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rickgao/engine-bridge/internal/model"
)

// GetGraph returns the full graph.
func (c *Client) GetGraph(ctx context.Context) (*model.Graph, error) {
	var g model.Graph
	if err := c.get(ctx, "/api/graph", &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetNode returns a single node.
func (c *Client) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var n model.Node
	if err := c.get(ctx, nodePath(id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNode creates a node and returns it as stored by the engine.
func (c *Client) CreateNode(ctx context.Context, node model.Node) (*model.Node, error) {
	var n model.Node
	if err := c.send(ctx, http.MethodPost, "/api/graph/nodes", node, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNode replaces the node with node.ID.
func (c *Client) UpdateNode(ctx context.Context, node model.Node) (*model.Node, error) {
	var n model.Node
	if err := c.send(ctx, http.MethodPut, nodePath(node.ID), node, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNode removes a node.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, nodePath(id), nil, nil)
}

// GetEdge returns a single edge.
func (c *Client) GetEdge(ctx context.Context, id string) (*model.Edge, error) {
	var e model.Edge
	if err := c.get(ctx, edgePath(id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEdge creates an edge.
func (c *Client) CreateEdge(ctx context.Context, edge model.Edge) (*model.Edge, error) {
	var e model.Edge
	if err := c.send(ctx, http.MethodPost, "/api/graph/edges", edge, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEdge replaces the edge with edge.ID.
func (c *Client) UpdateEdge(ctx context.Context, edge model.Edge) (*model.Edge, error) {
	var e model.Edge
	if err := c.send(ctx, http.MethodPut, edgePath(edge.ID), edge, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEdge removes an edge.
func (c *Client) DeleteEdge(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, edgePath(id), nil, nil)
}

func nodePath(id string) string {
	return "/api/graph/nodes/" + url.PathEscape(id)
}

func edgePath(id string) string {
	return "/api/graph/edges/" + url.PathEscape(id)
}
