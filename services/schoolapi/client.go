// Package schoolapi is the thin client of the remote school REST API.
package schoolapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/registrar/core"
)

const (
	HeaderRequestID = "X-Request-ID"
	maxErrBodyLen   = 200
)

// Client calls the school API on behalf of one bearer token. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	rest    *rest.Client
	logger  core.Logger
}

func NewClient(conf core.APIConfig, logger core.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(conf.BaseURL, "/"),
		token:   conf.Token,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Timeout}},
		logger:  logger,
	}
}

// WithToken returns a copy of the client that authenticates with the given token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	return &cp
}

func (c *Client) newRequest(method rest.Method, path string) rest.Request {
	headers := map[string]string{
		"Accept":        "application/json",
		HeaderRequestID: uuid.New().String(),
	}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}
	return rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: headers,
	}
}

// do sends the request and decodes a 2xx body into out (when non-nil).
// Any other status becomes a *core.RequestError carrying the server's message.
func (c *Client) do(ctx context.Context, req rest.Request, out interface{}) error {
	resp, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		c.logger.Warn("school API unreachable", err, map[string]interface{}{
			"method":     req.Method,
			"url":        req.BaseURL,
			"request_id": req.Headers[HeaderRequestID],
		})
		return &core.RequestError{Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("school API error", map[string]interface{}{
			"method":     req.Method,
			"url":        req.BaseURL,
			"status":     resp.StatusCode,
			"request_id": req.Headers[HeaderRequestID],
		})
		return core.NewRequestError(resp.StatusCode, errorMessage(resp.Body))
	}

	if out == nil || strings.TrimSpace(resp.Body) == "" {
		return nil
	}
	if err = json.Unmarshal([]byte(resp.Body), out); err != nil {
		return errors.Wrapf(err, "decoding %s %s", req.Method, req.BaseURL)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method rest.Method, path string, body, out interface{}) error {
	req := c.newRequest(method, path)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Body = b
		req.Headers["Content-Type"] = "application/json"
	}
	return c.do(ctx, req, out)
}

// errorMessage extracts the message of an error body: {"error": ...}, {"message": ...} or {"detail": ...}.
func errorMessage(body string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			if msg, ok := payload[key].(string); ok && msg != "" {
				return msg
			}
		}
	}

	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "<") || len(body) > maxErrBodyLen {
		return ""
	}
	return body
}

// decodeList accepts a bare JSON array or an envelope with a "data" or "results" array.
func decodeList(raw json.RawMessage, out interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(raw, out)
	}

	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	if len(envelope.Data) > 0 {
		return decodeList(envelope.Data, out)
	}
	return decodeList(envelope.Results, out)
}
