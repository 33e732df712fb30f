package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rickgao/engine-bridge/internal/model"
)

// PendingApprovals lists approvals awaiting a decision.
func (c *Client) PendingApprovals(ctx context.Context) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := c.get(ctx, "/api/approvals/pending", &approvals); err != nil {
		return nil, err
	}
	return approvals, nil
}

// GetApproval returns a single approval.
func (c *Client) GetApproval(ctx context.Context, id string) (*model.Approval, error) {
	var a model.Approval
	if err := c.get(ctx, approvalPath(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Approve approves an item with an optional comment.
func (c *Client) Approve(ctx context.Context, id, comment string) (*model.Approval, error) {
	body := struct {
		Comment string `json:"comment,omitempty"`
	}{comment}

	var a model.Approval
	if err := c.send(ctx, http.MethodPost, approvalPath(id)+"/approve", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Reject rejects an item with a reason.
func (c *Client) Reject(ctx context.Context, id, reason string) (*model.Approval, error) {
	body := struct {
		Reason string `json:"reason"`
	}{reason}

	var a model.Approval
	if err := c.send(ctx, http.MethodPost, approvalPath(id)+"/reject", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func approvalPath(id string) string {
	return "/api/approvals/" + url.PathEscape(id)
}
