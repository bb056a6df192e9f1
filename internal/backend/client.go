package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kdd-platform/kdd-gateway/pkg/logger"
)

// TokenSource supplies the bearer token attached to outbound calls and is
// asked for exactly one refresh when a call comes back 401. It is injected so
// the client carries no global token state and concurrent sessions can use
// independent clients.
type TokenSource interface {
	// AccessToken returns the current bearer token, or "" for anonymous calls.
	AccessToken(ctx context.Context) (string, error)
	// Refresh exchanges the refresh token for a new pair and returns the new
	// access token. Implementations decide what a failed refresh means for
	// the session (the gateway's session manager forces a logout).
	Refresh(ctx context.Context) (string, error)
}

// RequestOptions tweak a single call.
type RequestOptions struct {
	TenantID string
	Header   http.Header
}

// Response is a parsed backend reply for 2xx statuses.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsJSON reports whether the backend replied with a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// Decode unmarshals a JSON body into v. Non-JSON bodies are an error; use
// Text for those.
func (r *Response) Decode(v interface{}) error {
	if !r.IsJSON() {
		return fmt.Errorf("response is not JSON (Content-Type %q)", r.Header.Get("Content-Type"))
	}
	return json.Unmarshal(r.Body, v)
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Client centralizes outbound calls to the platform backend. All business
// endpoints live behind it; the gateway itself holds no business logic.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (timeouts, transport).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource attaches a token source for authenticated calls.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithTokens returns a shallow copy bound to the given token source. Used to
// scope one shared client to a request's session.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

func (c *Client) Post(ctx context.Context, path string, body interface{}, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts)
}

func (c *Client) Put(ctx context.Context, path string, body interface{}, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts)
}

// do performs the request, attaching bearer token and tenant header, and
// retries exactly once after a refresh when the backend answers 401.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, opts *RequestOptions) (*Response, error) {
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	token := ""
	if c.tokens != nil {
		token, err = c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.send(ctx, method, path, payload, contentType, token, opts)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && c.tokens != nil {
		logger.Debugf("backend %s %s returned 401, attempting token refresh", method, path)
		newToken, rerr := c.tokens.Refresh(ctx)
		if rerr != nil {
			return nil, fmt.Errorf("token refresh after 401: %w", rerr)
		}
		resp, err = c.send(ctx, method, path, payload, contentType, newToken, opts)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status < 200 || resp.Status > 299 {
		return nil, newAPIError(resp.Status, resp.Body)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, contentType, token string, opts *RequestOptions) (*Response, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if opts != nil {
		if opts.TenantID != "" {
			req.Header.Set("X-Tenant-ID", opts.TenantID)
		}
		for k, vv := range opts.Header {
			for _, v := range vv {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// encodeBody normalizes a request body. Byte slices and readers pass through
// untouched; everything else is serialized as JSON.
func encodeBody(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case io.Reader:
		raw, err := io.ReadAll(b)
		if err != nil {
			return nil, "", err
		}
		return raw, "", nil
	case string:
		return []byte(b), "", nil
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return raw, "application/json", nil
	}
}
