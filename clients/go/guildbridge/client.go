// Package guildbridge provides a client for the bridge admin API.
package guildbridge

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
)

// Client is an admin API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client. token may be empty when the bridge runs
// without auth.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for responses the bridge rejected.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Status, e.Message)
}

// Result is the outcome of a guild command.
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Check is one health check.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// doRequest performs an HTTP request. Statuses in ok are returned without
// error.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, ok ...int) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode >= 400 {
		for _, s := range ok {
			if s == resp.StatusCode {
				return respBody, resp.StatusCode, nil
			}
		}
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, resp.StatusCode, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, resp.StatusCode, nil
}

// Health checks bridge health. A degraded bridge is not an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	respBody, _, err := c.doRequest(ctx, http.MethodGet, "/health", nil, http.StatusServiceUnavailable)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Call runs a guild endpoint on the bridge itself. An unknown endpoint is
// reported as a failed Result.
func (c *Client) Call(ctx context.Context, endpoint string, data any) (*Result, error) {
	if data == nil {
		data = map[string]any{}
	}
	respBody, _, err := c.doRequest(ctx, http.MethodPost, "/rpc/"+url.PathEscape(endpoint), data, http.StatusNotFound)
	if err != nil {
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Remote asks the bridge to forward a request to its peers and returns the
// peer's response data as is.
func (c *Client) Remote(ctx context.Context, endpoint string, data any) (json.RawMessage, error) {
	if data == nil {
		data = map[string]any{}
	}
	respBody, _, err := c.doRequest(ctx, http.MethodPost, "/remote/"+url.PathEscape(endpoint), data)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(respBody), nil
}
