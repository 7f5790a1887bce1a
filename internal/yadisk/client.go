// Package yadisk mirrors photos into Yandex Disk through its REST API.
//
// Client implements model.Store:
//
//   - EnsureFolder issues PUT /v1/disk/resources, creating missing parents
//     one segment at a time
//   - Exists issues GET /v1/disk/resources and treats 404 as absent
//   - TransferFromURL issues POST /v1/disk/resources/upload?url=..., which
//     makes the disk download the photo itself; 202 means the download was
//     queued, not finished
package yadisk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/http"
	"github.com/handiism/photo-mirror/internal/model"
)

// DefaultAPIURL is the Yandex Disk REST API host.
const DefaultAPIURL = "https://cloud-api.yandex.net"

// Error codes from the "error" field of API error bodies.
const (
	errPathDoesntExist = "DiskPathDoesntExistsError"
	errResourceExists  = "DiskResourceAlreadyExistsError"
)

// Config configures a Client.
type Config struct {
	Token             string
	APIURL            string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is a Yandex Disk model.Store.
type Client struct {
	http   *http.Client
	apiURL string
	token  string
	log    logrus.FieldLogger
}

// apiError is the body of a non-2xx response.
type apiError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	Code        string `json:"error"`
}

// NewClient creates a Client. Zero values in cfg take the defaults.
func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := []http.Option{http.WithRateLimit(cfg.RequestsPerSecond, 1)}
	if cfg.Timeout > 0 {
		opts = append(opts, http.WithTimeout(cfg.Timeout))
	}

	return &Client{
		http:   http.NewClient(opts...),
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		token:  cfg.Token,
		log:    log.WithField("component", "yadisk"),
	}
}

// diskPath turns a store path into an absolute disk path.
func diskPath(p string) string {
	return "disk:/" + strings.TrimLeft(p, "/")
}

// do sends a request and returns the status code and, for non-2xx
// responses, the decoded error body.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values) (int, *apiError, error) {
	if c.token == "" {
		return 0, nil, errors.Errorf(errors.KindAuth, endpoint, "no Yandex Disk token configured")
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.apiURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}

	var apiErr apiError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, &apiErr)
	return resp.StatusCode, &apiErr, nil
}

// statusError builds a kinded error for an unexpected status.
func statusError(op string, code int, apiErr *apiError) error {
	msg := nethttp.StatusText(code)
	if apiErr != nil && apiErr.Code != "" {
		msg = fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return errors.Wrap(http.KindForStatus(code), op, &http.StatusError{Code: code, Status: nethttp.StatusText(code), Body: msg})
}

// mkdir creates a single folder.
func (c *Client) mkdir(ctx context.Context, p string) (model.FolderState, *apiError, error) {
	code, apiErr, err := c.do(ctx, nethttp.MethodPut, "/v1/disk/resources", url.Values{"path": {diskPath(p)}})
	if err != nil {
		return 0, nil, err
	}
	switch code {
	case nethttp.StatusCreated:
		return model.FolderCreated, nil, nil
	case nethttp.StatusConflict:
		if apiErr != nil && apiErr.Code == errPathDoesntExist {
			return 0, apiErr, nil
		}
		return model.FolderExists, nil, nil
	}
	return 0, nil, statusError("mkdir "+p, code, apiErr)
}

// EnsureFolder creates p and any missing parents.
func (c *Client) EnsureFolder(ctx context.Context, p string) (model.FolderState, error) {
	state, missingParent, err := c.mkdir(ctx, p)
	if err != nil || missingParent == nil {
		return state, err
	}

	c.log.WithField("path", p).Debug("parent folder missing, creating path segment by segment")

	var current string
	for _, segment := range strings.Split(strings.Trim(p, "/"), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment
		state, missing, err := c.mkdir(ctx, current)
		if err != nil {
			return 0, err
		}
		if missing != nil {
			return 0, statusError("mkdir "+current, nethttp.StatusConflict, missing)
		}
		if current == "/"+strings.Trim(p, "/") {
			return state, nil
		}
	}
	return model.FolderCreated, nil
}

// Exists reports whether a resource exists at p.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	q := url.Values{"path": {diskPath(p)}, "fields": {"path,type"}}
	code, apiErr, err := c.do(ctx, nethttp.MethodGet, "/v1/disk/resources", q)
	if err != nil {
		return false, err
	}
	switch code {
	case nethttp.StatusOK:
		return true, nil
	case nethttp.StatusNotFound:
		return false, nil
	}
	return false, statusError("stat "+p, code, apiErr)
}

// TransferFromURL asks the disk to download sourceURL into p.
func (c *Client) TransferFromURL(ctx context.Context, p, sourceURL string) (model.TransferState, error) {
	q := url.Values{"path": {diskPath(p)}, "url": {sourceURL}}
	code, apiErr, err := c.do(ctx, nethttp.MethodPost, "/v1/disk/resources/upload", q)
	if err != nil {
		return model.TransferRejected, err
	}
	switch code {
	case nethttp.StatusAccepted, nethttp.StatusOK, nethttp.StatusCreated:
		c.log.WithField("path", p).Debug("upload queued")
		return model.TransferAccepted, nil
	case nethttp.StatusConflict:
		if apiErr != nil && apiErr.Code == errResourceExists {
			// Raced with another run; the file is there either way.
			return model.TransferAccepted, nil
		}
	}
	return model.TransferRejected, statusError("upload "+p, code, apiErr)
}
