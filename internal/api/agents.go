package api

import (
	"context"
	"net/http"

	"github.com/rickgao/engine-bridge/internal/model"
)

// Orchestrate submits an orchestration request. A result reported as
// failed is returned alongside an AGENT_ERROR.
func (c *Client) Orchestrate(ctx context.Context, req model.OrchestrationRequest) (*model.OrchestrationResult, error) {
	var res model.OrchestrationResult
	if err := c.send(ctx, http.MethodPost, "/api/agents/orchestrate", req, &res); err != nil {
		return nil, err
	}
	return &res, res.Failure()
}
