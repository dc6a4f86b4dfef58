package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rimuru/agentctl/internal/config"
)

// daemonClient is the HTTP client every CLI subcommand uses to talk to a
// running agentctl serve process, grounded on the teacher's single
// request-per-call HTTPClient with a fixed timeout.
type daemonClient struct {
	baseURL string
	client  *http.Client
}

func newDaemonClient(timeout time.Duration) *daemonClient {
	base := daemonURL
	if base == "" {
		base = config.GetDaemonURL("", "")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &daemonClient{baseURL: base, client: &http.Client{Timeout: timeout}}
}

func (c *daemonClient) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *daemonClient) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		buf = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, path, buf)
}

func (c *daemonClient) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", fmt.Sprintf("agentctl/%s", Version))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}
