package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"relaydesk/relay/pkg/history"
	"relaydesk/relay/pkg/proxy/types"
)

// DefaultClientTimeout bounds each control API call.
const DefaultClientTimeout = 30 * time.Second

// Client calls a relay control API.
type Client struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a client for address, either "host:port" or a full
// http URL.
func NewClient(address string, opts ...ClientOption) *Client {
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: DefaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EventsQuery filters Events.
type EventsQuery struct {
	Limit     int
	Offset    int
	Operation types.Operation
	Success   *bool
	Since     time.Time
	Until     time.Time
}

// Status returns the proxy state.
func (c *Client) Status(ctx context.Context) (types.Status, error) {
	var st types.Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &st)
	return st, err
}

// Start starts the proxy. A nil cfg starts the saved route.
func (c *Client) Start(ctx context.Context, cfg *types.ProxyConfig) (types.OperationResult, error) {
	var body any
	if cfg != nil {
		body = cfg
	}
	return c.lifecycle(ctx, "/v1/proxy/start", http.MethodPost, body)
}

// Stop stops the proxy.
func (c *Client) Stop(ctx context.Context) (types.OperationResult, error) {
	return c.lifecycle(ctx, "/v1/proxy/stop", http.MethodPost, nil)
}

// Reconfigure restarts a running proxy on cfg without saving it.
func (c *Client) Reconfigure(ctx context.Context, cfg types.ProxyConfig) (types.OperationResult, error) {
	return c.lifecycle(ctx, "/v1/proxy/reconfigure", http.MethodPost, cfg)
}

// Config returns the saved route.
func (c *Client) Config(ctx context.Context) (types.ProxyConfig, error) {
	var cfg types.ProxyConfig
	err := c.do(ctx, http.MethodGet, "/v1/config", nil, &cfg)
	return cfg, err
}

// SaveConfig saves cfg as the route and reconfigures a running proxy.
func (c *Client) SaveConfig(ctx context.Context, cfg types.ProxyConfig) (types.OperationResult, error) {
	return c.lifecycle(ctx, "/v1/config", http.MethodPut, cfg)
}

// Events lists recorded lifecycle events, newest first.
func (c *Client) Events(ctx context.Context, q EventsQuery) (*EventsResponse, error) {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Operation != "" {
		values.Set("operation", string(q.Operation))
	}
	if q.Success != nil {
		values.Set("success", strconv.FormatBool(*q.Success))
	}
	if !q.Since.IsZero() {
		values.Set("since", q.Since.Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		values.Set("until", q.Until.Format(time.RFC3339))
	}

	path := "/v1/events"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var resp EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Events == nil {
		resp.Events = []*history.Event{}
	}
	return &resp, nil
}

// lifecycle calls an endpoint that answers with an OperationResult. A
// failed operation is returned as a result, not an error.
func (c *Client) lifecycle(ctx context.Context, path, method string, body any) (types.OperationResult, error) {
	var res types.OperationResult
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, &res); err != nil || (!res.Success && res.Error == "" && res.Message == "") {
		return res, apiError(resp.StatusCode, data)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UnreachableError{Address: c.baseURL, Cause: err}
	}
	return resp, nil
}

func apiError(status int, body []byte) *APIError {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return &APIError{StatusCode: status, Message: er.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
