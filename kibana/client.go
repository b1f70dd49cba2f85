// Package kibana is a small client for the endpoint response action,
// metadata, licensing and machine learning capability APIs.
package kibana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Route paths.
const (
	killProcessRoute    = "/api/endpoint/action/kill_process"
	suspendProcessRoute = "/api/endpoint/action/suspend_process"
	isolateRoute        = "/api/endpoint/isolate"
	releaseRoute        = "/api/endpoint/unisolate"
	actionDetailsRoute  = "/api/endpoint/action/%s"
	hostMetadataRoute   = "/api/endpoint/metadata/%s"
	licenseRoute        = "/api/licensing/info"
	mlCapabilitiesRoute = "/api/ml/ml_capabilities"
)

// ErrNotFound matches any 404 response.
var ErrNotFound = errors.New("not found")

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to one Kibana instance. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	username   string
	password   string
	apiKey     string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth authenticates with a username and password.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithAPIKey authenticates with an encoded API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the Kibana instance at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse kibana url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("kibana url %q must include scheme and host", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// KillProcess requests that a process on the endpoint be terminated.
func (c *Client) KillProcess(ctx context.Context, req ActionRequest) (ActionDetails, error) {
	return c.sendAction(ctx, killProcessRoute, req)
}

// SuspendProcess requests that a process on the endpoint be suspended.
func (c *Client) SuspendProcess(ctx context.Context, req ActionRequest) (ActionDetails, error) {
	return c.sendAction(ctx, suspendProcessRoute, req)
}

// Isolate requests network isolation of the endpoint.
func (c *Client) Isolate(ctx context.Context, req ActionRequest) (ActionDetails, error) {
	return c.sendAction(ctx, isolateRoute, req)
}

// Release lifts network isolation of the endpoint.
func (c *Client) Release(ctx context.Context, req ActionRequest) (ActionDetails, error) {
	return c.sendAction(ctx, releaseRoute, req)
}

func (c *Client) sendAction(ctx context.Context, route string, req ActionRequest) (ActionDetails, error) {
	if len(req.EndpointIDs) == 0 {
		return ActionDetails{}, errors.New("at least one endpoint id is required")
	}
	var resp actionResponse
	if err := c.do(ctx, http.MethodPost, route, req, &resp); err != nil {
		return ActionDetails{}, err
	}
	return resp.Data, nil
}

// ActionDetails fetches the current state of a response action.
func (c *Client) ActionDetails(ctx context.Context, actionID string) (ActionDetails, error) {
	var resp actionResponse
	path := fmt.Sprintf(actionDetailsRoute, url.PathEscape(actionID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return ActionDetails{}, err
	}
	return resp.Data, nil
}

// EndpointMetadata fetches host information for an agent.
func (c *Client) EndpointMetadata(ctx context.Context, agentID string) (HostInfo, error) {
	var info HostInfo
	path := fmt.Sprintf(hostMetadataRoute, url.PathEscape(agentID))
	if err := c.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return HostInfo{}, err
	}
	return info, nil
}

// License fetches the active license.
func (c *Client) License(ctx context.Context) (LicenseInfo, error) {
	var resp licenseResponse
	if err := c.do(ctx, http.MethodGet, licenseRoute, nil, &resp); err != nil {
		return LicenseInfo{}, err
	}
	return resp.License, nil
}

// MLCapabilities fetches the machine learning capabilities of the current user.
func (c *Client) MLCapabilities(ctx context.Context) (MLCapabilities, error) {
	var caps MLCapabilities
	if err := c.do(ctx, http.MethodGet, mlCapabilitiesRoute, nil, &caps); err != nil {
		return MLCapabilities{}, err
	}
	return caps, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("kbn-xsrf", "planeconsole")
	req.Header.Set("Elastic-Api-Version", "2023-10-31")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.apiKey != "":
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("kibana request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path}
		var kerr errorResponse
		if json.Unmarshal(data, &kerr) == nil {
			herr.Message = kerr.Message
		}
		return herr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
