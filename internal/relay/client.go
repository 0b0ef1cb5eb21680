package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single round trip to the relay.
const DefaultTimeout = 5 * time.Second

// maxReplySize caps how much of a reply body is read.
const maxReplySize = 16 << 20

// Client issues request/reply commands against the relay's REST endpoint.
// Each call is exactly one HTTP round trip; retries are left to callers that
// know whether the validator is supposed to be up.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. nil keeps the default.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client, so
// a shared client such as http.DefaultClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New creates a client for the relay at baseURL. An empty baseURL selects DefaultURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the relay root URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the route for cmd.
func (c *Client) URL(cmd Command) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, restPath, cmd)
}

// Reply is the envelope every relay response uses. The relay writes the error
// under "err"; "error" is accepted as well.
type Reply[T any] struct {
	Result *T      `json:"result"`
	Err    *string `json:"err"`
	Error  *string `json:"error,omitempty"`
}

// message returns the error string of the reply. Empty strings count as absent.
func (r *Reply[T]) message() (string, bool) {
	if r.Err != nil && *r.Err != "" {
		return *r.Err, true
	}
	if r.Error != nil && *r.Error != "" {
		return *r.Error, true
	}
	return "", false
}

// Query sends cmd and decodes the result payload into T.
func Query[T any](ctx context.Context, c *Client, cmd Command, args ...any) (T, error) {
	var zero T

	var reply Reply[T]
	status, err := c.roundTrip(ctx, cmd, args, &reply)
	if err != nil {
		return zero, &RequestError{Command: cmd, Err: err}
	}

	msg, hasErr := reply.message()
	switch {
	case hasErr && reply.Result != nil:
		return zero, &RequestError{Command: cmd, Err: fmt.Errorf("%w: both result and err set", ErrMalformedReply)}
	case hasErr:
		return zero, &RequestError{Command: cmd, Err: &RemoteError{Message: msg, StatusCode: status}}
	case reply.Result == nil:
		return zero, &RequestError{Command: cmd, Err: fmt.Errorf("%w: neither result nor err set", ErrMalformedReply)}
	}
	return *reply.Result, nil
}

// Command sends cmd and only checks the reply for an error.
func (c *Client) Command(ctx context.Context, cmd Command, args ...any) error {
	var reply Reply[json.RawMessage]
	status, err := c.roundTrip(ctx, cmd, args, &reply)
	if err != nil {
		return &RequestError{Command: cmd, Err: err}
	}

	msg, hasErr := reply.message()
	hasResult := reply.Result != nil && string(*reply.Result) != "null"
	switch {
	case hasErr && hasResult:
		return &RequestError{Command: cmd, Err: fmt.Errorf("%w: both result and err set", ErrMalformedReply)}
	case hasErr:
		return &RequestError{Command: cmd, Err: &RemoteError{Message: msg, StatusCode: status}}
	}
	return nil
}

// roundTrip performs the HTTP exchange and decodes the body into out.
// Transport failures map to ErrUnreachable, undecodable bodies to ErrMalformedReply.
func (c *Client) roundTrip(ctx context.Context, cmd Command, args []any, out any) (int, error) {
	var body io.Reader
	method := cmd.Method()
	if method == http.MethodPost && len(args) > 0 {
		payload, err := json.Marshal(args)
		if err != nil {
			return 0, fmt.Errorf("failed to encode arguments: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(cmd), body)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("Relay request", "command", cmd, "method", method)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, &RemoteError{
				Message:    fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
				StatusCode: resp.StatusCode,
			}
		}
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	return resp.StatusCode, nil
}
