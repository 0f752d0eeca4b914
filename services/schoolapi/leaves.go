package schoolapi

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/sendgrid/rest"

	"github.com/trezcool/registrar/core/leave"
)

var _ leave.API = (*Client)(nil)

func (c *Client) ListPendingStudentLeaves(ctx context.Context) ([]leave.StudentLeave, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, rest.Get, "/leaves/students/pending", nil, &raw); err != nil {
		return nil, err
	}
	var leaves []leave.StudentLeave
	if err := decodeList(raw, &leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (c *Client) ListPendingTeacherLeaves(ctx context.Context, schoolID string) ([]leave.TeacherLeave, error) {
	req := c.newRequest(rest.Get, "/leaves/teachers/pending")
	if schoolID != "" {
		req.QueryParams = map[string]string{"school_id": schoolID}
	}
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	var leaves []leave.TeacherLeave
	if err := decodeList(raw, &leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (c *Client) ApproveLeave(ctx context.Context, kind leave.Kind, id, note string) error {
	body := map[string]string{"note": note}
	return c.doJSON(ctx, rest.Post, leavePath(kind, id, "approve"), body, nil)
}

func (c *Client) RejectLeave(ctx context.Context, kind leave.Kind, id, reason string) error {
	body := map[string]string{"reason": reason}
	return c.doJSON(ctx, rest.Post, leavePath(kind, id, "reject"), body, nil)
}

func leavePath(kind leave.Kind, id, action string) string {
	return "/leaves/" + kind.Path() + "/" + url.PathEscape(id) + "/" + action
}
