package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kvview/pkg/clock"
	"kvview/pkg/protocol"
)

const (
	contentTypeJSON = "application/json"
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 64 << 20
)

var ErrIDMismatch = errors.New("response id does not match request")

// Client posts protocol requests to a proxy endpoint.
type Client struct {
	url    string
	client *http.Client
	token  func() string
	ids    *clock.AtomicClock
}

type Option func(*Client)

// WithTimeout bounds every HTTP exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithToken sends a bearer token, read again for every request.
func WithToken(token func() string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		token:  func() string { return "" },
		ids:    clock.NewAtomic(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL is the endpoint requests are posted to.
func (c *Client) URL() string {
	return c.url
}

// Do sends req and decodes the answer. A zero ID is replaced by one of the
// client's own. Failure responses come back with a *protocol.RemoteError.
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if req.ID == 0 {
		req.ID = c.ids.Next()
	}

	body, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("encode %s request: %w", req.Kind, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("create %s request: %w", req.Kind, err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	if token := c.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s do: %w", req.Kind, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read %s body: %w", req.Kind, err)
	}

	out, err := protocol.DecodeResponse(b)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return protocol.Response{}, fmt.Errorf("%s failed: %d: %s", req.Kind, resp.StatusCode, strings.TrimSpace(string(b)))
		}
		return protocol.Response{}, fmt.Errorf("decode %s body: %w", req.Kind, err)
	}
	if out.ID != req.ID {
		return protocol.Response{}, fmt.Errorf("%w: sent %d, got %d", ErrIDMismatch, req.ID, out.ID)
	}
	return out, out.Err()
}

// Health checks the endpoint's health route.
func (c *Client) Health(ctx context.Context) error {
	u := strings.TrimRight(c.url, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health failed: %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
