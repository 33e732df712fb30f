// Package api is the engine's REST client and the bridge's fallback
// transport when the duplex channel is unavailable.
//
// Endpoints (relative to engine.http_url):
//   - /api/graph, /api/graph/nodes/{id}, /api/graph/edges/{id}
//   - /api/agents/orchestrate
//   - /api/approvals/pending, /api/approvals/{id}[/approve|/reject]
//   - /api/validation/graph, /api/validation/nodes/{id}, /api/validation/edges/{id}
//   - /health
//
// Every failure is returned as a *model.Error of kind HTTP_ERROR, or
// AGENT_ERROR for orchestration results reported as failed.
package api
