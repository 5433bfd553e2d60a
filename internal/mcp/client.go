package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single tool call.
const DefaultTimeout = 30 * time.Second

const (
	maxResponseBytes = 8 << 20
	maxErrorMessage  = 512
)

// HTTPClient interface for HTTP requests (enables testing)
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verify http.Client implements HTTPClient
var _ HTTPClient = (*http.Client)(nil)

// Caller invokes a named tool on a backend. Client is the production
// implementation; context sources and the gateway depend on this interface.
type Caller interface {
	CallTool(ctx context.Context, base *url.URL, name string, args map[string]any) (json.RawMessage, error)
}

// Client calls tools over HTTP.
type Client struct {
	http    HTTPClient
	timeout time.Duration
	tracer  trace.Tracer
}

// Verify Client implements Caller
var _ Caller = (*Client)(nil)

// NewClient creates a client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	return NewClientWithHTTP(timeout, &http.Client{})
}

// NewClientWithHTTP creates a client around a custom HTTP client.
func NewClientWithHTTP(timeout time.Duration, hc HTTPClient) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    hc,
		timeout: timeout,
		tracer:  otel.Tracer("github.com/joss/aiden/internal/mcp"),
	}
}

// CallTool posts a tools/call request to base and returns the backend's
// result member verbatim, or the whole body when there is none.
func (c *Client) CallTool(ctx context.Context, base *url.URL, name string, args map[string]any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "mcp.CallTool", trace.WithAttributes(
		attribute.String("mcp.tool", name),
		attribute.String("mcp.backend", base.Host),
	))
	defer span.End()

	raw, err := c.call(ctx, base, name, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return raw, nil
}

func (c *Client) call(ctx context.Context, base *url.URL, name string, args map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	upstream := func(status int, msg string, err error) *UpstreamError {
		return &UpstreamError{Backend: base.Host, Tool: name, Status: status, Message: msg, Err: err}
	}

	body, err := json.Marshal(NewRequest(name, args))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := base.JoinPath(CallPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, upstream(0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, upstream(0, "", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstream(resp.StatusCode, errorMessage(data), nil)
	}

	return extractResult(data, upstream)
}

func extractResult(data []byte, upstream func(int, string, error) *UpstreamError) (json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, upstream(0, "malformed response body", nil)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		// Not an object: the body is the result.
		return json.RawMessage(data), nil
	}
	if rpcErr, ok := envelope["error"]; ok && len(envelope) == 1 {
		var e RPCError
		if json.Unmarshal(rpcErr, &e) == nil && e.Message != "" {
			return nil, upstream(0, e.Message, &e)
		}
	}
	if result, ok := envelope["result"]; ok {
		return result, nil
	}
	return json.RawMessage(data), nil
}

// errorMessage pulls a readable message out of a failed response body.
func errorMessage(data []byte) string {
	var body struct {
		Error  *RPCError `json:"error"`
		Detail string    `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != nil && body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Detail != "" {
			return body.Detail
		}
	}

	msg := strings.TrimSpace(string(data))
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	if msg == "" {
		msg = "empty response"
	}
	return msg
}
