package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Defaults for the execution service client.
const (
	DefaultBaseURL = "https://emkc.org/api/v2/piston"
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 1 << 20 // 1 MiB cap on relayed result bodies
)

// ExecuteRequest is the body of the execution service's execute call.
type ExecuteRequest struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Files    []File `json:"files"`
	Stdin    string `json:"stdin"`
}

// File is one source file submitted for execution.
type File struct {
	Content string `json:"content"`
}

// executeProbe validates that a response body carries a run result before
// it is relayed to clients.
type executeProbe struct {
	Run *struct {
		Output string `json:"output"`
	} `json:"run"`
}

// Client calls the external code-execution service (Piston). The HTTP
// client carries an explicit timeout; a hung execution call must never
// leave a room waiting indefinitely.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the execution service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured execution service endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Execute submits code for execution and returns the service's JSON
// response verbatim. Any transport error, non-2xx status, or body without a
// run result is returned as an error; the caller synthesizes the failure
// payload that clients see.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read execute response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("execution service returned status %d", resp.StatusCode)
	}

	var probe executeProbe
	if err := json.Unmarshal(data, &probe); err != nil || probe.Run == nil {
		return nil, fmt.Errorf("execution service returned a malformed response")
	}

	return json.RawMessage(data), nil
}

// Runtimes returns the execution service's runtime catalog verbatim.
func (c *Client) Runtimes(ctx context.Context) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runtimes", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build runtimes request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("runtimes call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read runtimes response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("execution service returned status %d", resp.StatusCode)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("execution service returned a malformed runtime catalog")
	}

	return json.RawMessage(data), nil
}

// FailureResult synthesizes the payload clients receive when an execution
// attempt fails for any reason. It mirrors the success shape so clients
// read run.output either way.
func FailureResult(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"run": map[string]any{
			"output": message,
		},
	})
	return data
}
