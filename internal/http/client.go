package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/handiism/photo-mirror/internal/errors"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "photo-mirror"

// Client wraps HTTP operations shared by the remote adapters.
//
// Client provides:
//   - Configured User-Agent header
//   - Request pacing with a token bucket
//   - Timeout handling
//   - Classification of failures into error kinds
//
// Example usage:
//
//	client := NewClient(WithRateLimit(3, 1))
//
//	// Decode a JSON API response
//	var resp struct{ Response []User }
//	err := client.GetJSON(ctx, "https://api.vk.com/method/users.get?...", &resp)
//
//	// Stream a photo
//	body, size, err := client.Open(ctx, photoURL)
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit paces requests to rps per second with the given burst. A
// non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying client, e.g. with httptest's.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new HTTP client.
//
// The client is configured with:
//   - 60 second timeout
//   - "photo-mirror" User-Agent header
//   - no pacing
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned when a server answers with an unexpected status.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.Code, e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// KindForStatus maps an HTTP status code to an error kind.
//
//	401, 403      → AUTH
//	404           → NOT_FOUND
//	408, 429, 5xx → REMOTE_TRANSIENT
//	other         → REMOTE
func KindForStatus(code int) errors.Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return errors.KindAuth
	case code == http.StatusNotFound:
		return errors.KindNotFound
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return errors.KindRemoteTransient
	}
	return errors.KindRemote
}

// NewStatusError reads up to 512 bytes of resp's body and returns a kinded
// error for its status.
func NewStatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	se := &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode), Body: string(body)}
	return errors.Wrap(KindForStatus(resp.StatusCode), op, se)
}

// Do sends req after waiting for the rate limiter. The User-Agent header is
// set unless req already has one.
//
// Transport failures are returned as REMOTE_TRANSIENT; a cancelled or
// expired ctx is returned unwrapped. The status code is not checked.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.KindRemoteTransient, req.Method+" "+req.URL.Path, err)
	}
	return resp, nil
}

// Get performs a GET request and returns the response body as bytes.
//
// Returns an error if:
//   - The request fails
//   - The response status is not 200 OK
//   - Reading the body fails
//
// Example:
//
//	data, err := client.Get(ctx, "https://example.com/photo.jpg")
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError("GET", resp)
	}

	return io.ReadAll(resp.Body)
}

// GetJSON performs a GET request and decodes the JSON body into v.
//
// Example:
//
//	var out struct{ Response []Album `json:"response"` }
//	err := client.GetJSON(ctx, methodURL, &out)
func (c *Client) GetJSON(ctx context.Context, url string, v interface{}) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(errors.KindRemote, "decode", err)
	}
	return nil
}

// Open starts a GET request and returns the body for streaming along with
// its Content-Length (-1 if unknown). The caller must close the body.
//
// Example:
//
//	body, size, err := client.Open(ctx, photoURL)
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, 0, NewStatusError("GET", resp)
	}

	return resp.Body, resp.ContentLength, nil
}
