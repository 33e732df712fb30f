package api

import (
	"context"

	"github.com/rickgao/engine-bridge/internal/model"
)

// Health calls the engine liveness endpoint.
func (c *Client) Health(ctx context.Context) (*model.LivenessProbe, error) {
	var p model.LivenessProbe
	if err := c.get(ctx, "/health", &p); err != nil {
		return nil, err
	}
	return &p, nil
}
