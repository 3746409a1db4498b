// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"submission-workflow/internal/common/config"
)

// Client talks to one HTTP collaborator (renderer, e-sign provider, payment
// capture). Requests carry the configured API key as a bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewServiceClient builds a client for a configured collaborator endpoint.
func NewServiceClient(endpoint config.ServiceEndpoint) *Client {
	timeout := config.GetDuration(endpoint.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := NewClient(timeout)
	c.baseURL = strings.TrimSuffix(endpoint.BaseURL, "/")
	c.apiKey = endpoint.APIKey
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// PostJSON sends in as JSON to path and decodes the response into out when
// out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.send(ctx, http.MethodPost, path, "application/json", headers, payload)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostRaw sends a JSON body and returns the raw response bytes.
func (c *Client) PostRaw(ctx context.Context, path string, in interface{}) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, "application/json", nil, payload)
}

func (c *Client) send(ctx context.Context, method, path, contentType string, headers map[string]string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
