// Command agentctl-hook is a thin CLI trigger meant to be wired into a
// git/process hook point: it POSTs a hook name to a running agentctl serve
// process and exits 0/1 based on the dispatch outcome.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rimuru/agentctl/internal/config"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 500 * time.Millisecond
)

type hookConfig struct {
	DaemonURL           string
	Hook                string
	Timeout             time.Duration
	RetryAttempts       int
	SkipOnDaemonFailure bool
	Debug               bool
}

type dispatchRequest struct {
	Hook string `json:"hook"`
}

type dispatchResponse struct {
	Result      string `json:"result"`
	AbortReason string `json:"abort_reason,omitempty"`
}

func parseArgs() (*hookConfig, error) {
	cfg := &hookConfig{
		DaemonURL:     config.GetDaemonURL("", ""),
		Timeout:       defaultRequestTimeout,
		RetryAttempts: defaultRetryAttempts,
	}

	flag.StringVar(&cfg.DaemonURL, "daemon-url", cfg.DaemonURL, "agentctl daemon base URL")
	flag.StringVar(&cfg.Hook, "hook", "", "hook name to dispatch (e.g. pre_session_start, post_session_end)")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")
	flag.IntVar(&cfg.RetryAttempts, "retry", cfg.RetryAttempts, "number of retry attempts")
	flag.BoolVar(&cfg.SkipOnDaemonFailure, "skip-on-failure", false, "exit 0 even if the daemon cannot be reached")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug output")
	flag.Parse()

	if cfg.Hook == "" && flag.NArg() > 0 {
		cfg.Hook = flag.Arg(0)
	}
	if cfg.Hook == "" {
		return nil, fmt.Errorf("hook name is required (--hook or positional arg)")
	}

	if envURL := os.Getenv("AGENTCTL_DAEMON_URL"); envURL != "" {
		cfg.DaemonURL = envURL
	}

	return cfg, nil
}

func main() {
	cfg, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := dispatchWithRetry(cfg)
	if err != nil {
		handleFailure(cfg, err.Error())
		return
	}

	if cfg.Debug {
		fmt.Printf("hook %q dispatched: result=%s abort_reason=%s\n", cfg.Hook, resp.Result, resp.AbortReason)
	}
	if resp.Result == "abort" {
		fmt.Fprintf(os.Stderr, "hook %q aborted: %s\n", cfg.Hook, resp.AbortReason)
		os.Exit(1)
	}
}

func dispatchWithRetry(cfg *hookConfig) (*dispatchResponse, error) {
	payload, err := json.Marshal(dispatchRequest{Hook: cfg.Hook})
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch request: %w", err)
	}
	endpoint := cfg.DaemonURL + "/api/hooks/dispatch"

	var lastErr error
	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(defaultRetryDelay * time.Duration(attempt))
			if cfg.Debug {
				fmt.Printf("retrying dispatch (attempt %d/%d)\n", attempt+1, cfg.RetryAttempts)
			}
		}

		resp, err := postJSON(cfg, endpoint, payload)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func postJSON(cfg *hookConfig, endpoint string, payload []byte) (*dispatchResponse, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "agentctl-hook/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}

	var out dispatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse dispatch response: %w", err)
	}
	return &out, nil
}

func handleFailure(cfg *hookConfig, message string) {
	if cfg.SkipOnDaemonFailure {
		if cfg.Debug {
			fmt.Printf("warning (skipped): %s\n", message)
		}
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", message)
	os.Exit(1)
}
