package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 16 << 20

// Client wraps net/http.Client for JSON GET APIs.
type Client struct {
	http *http.Client
}

// Response holds the status, headers and body of a completed request. The
// underlying body is already closed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	JSONErr    error
}

// New creates a Client with a 30-second timeout.
func New() *Client {
	return NewWithTimeout(30 * time.Second)
}

// NewWithTimeout creates a Client with the given timeout. A non-positive
// timeout falls back to 30s.
func NewWithTimeout(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewWithHTTPClient wraps an existing client, e.g. one from httptest.
func NewWithHTTPClient(c *http.Client) *Client {
	return &Client{http: c}
}

// RequestOption configures an http.Request before it is sent.
type RequestOption func(*http.Request)

// DoCtx sends a request, reads the full body and returns a Response. A
// non-nil error means a network-level failure (DNS, connect, timeout) or
// context cancellation; HTTP error statuses are returned in StatusCode.
func (c *Client) DoCtx(ctx context.Context, method, rawURL string, body io.Reader, opts ...RequestOption) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// GetJSONCtx sends a GET request and decodes the body into out. If out is
// nil the body is captured but not decoded. Decode errors land in
// Response.JSONErr rather than the returned error.
func (c *Client) GetJSONCtx(ctx context.Context, rawURL string, out any, opts ...RequestOption) (*Response, error) {
	resp, err := c.DoCtx(ctx, http.MethodGet, rawURL, nil, opts...)
	if err != nil {
		return nil, err
	}
	if out != nil {
		resp.JSONErr = json.Unmarshal(resp.Body, out)
	}
	return resp, nil
}
