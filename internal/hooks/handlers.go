package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rimuru/agentctl/pkg/logger"
)

// CostAlertConfig tunes the CostAlertHandler's thresholds.
type CostAlertConfig struct {
	ThresholdUSD        float64
	AlertIntervalSecs   int64
	DailyBudgetUSD      *float64
	WeeklyBudgetUSD     *float64
	MonthlyBudgetUSD    *float64
}

func DefaultCostAlertConfig() CostAlertConfig {
	return CostAlertConfig{ThresholdUSD: 1.0, AlertIntervalSecs: 3600}
}

// CostAlertHandler accumulates daily/weekly/monthly running totals from
// OnCostRecorded events and logs a warning once spending crosses the
// configured per-request threshold or budget, rate-limited by
// AlertIntervalSecs.
type CostAlertHandler struct {
	mu          sync.Mutex
	cfg         CostAlertConfig
	lastAlert   *time.Time
	dailyTotal  float64
	weeklyTotal float64
	monthlyTotal float64
	log         logger.Logger
}

func NewCostAlertHandler(cfg CostAlertConfig, log logger.Logger) *CostAlertHandler {
	return &CostAlertHandler{cfg: cfg, log: log}
}

func (h *CostAlertHandler) Name() string       { return "cost_alert" }
func (h *CostAlertHandler) Hook() Hook         { return OnCostRecorded }
func (h *CostAlertHandler) Priority() int      { return 100 }
func (h *CostAlertHandler) Description() string {
	return "Alerts when cost exceeds configured thresholds"
}

func (h *CostAlertHandler) ResetDaily()   { h.mu.Lock(); h.dailyTotal = 0; h.mu.Unlock() }
func (h *CostAlertHandler) ResetWeekly()  { h.mu.Lock(); h.weeklyTotal = 0; h.mu.Unlock() }
func (h *CostAlertHandler) ResetMonthly() { h.mu.Lock(); h.monthlyTotal = 0; h.mu.Unlock() }

func (h *CostAlertHandler) shouldAlertLocked() bool {
	if h.lastAlert == nil {
		return true
	}
	return time.Since(*h.lastAlert) >= time.Duration(h.cfg.AlertIntervalSecs)*time.Second
}

func (h *CostAlertHandler) Handle(ctx context.Context, hctx HookContext) (HookResult, error) {
	if hctx.Data.Cost == nil {
		return OK(), nil
	}
	cost := hctx.Data.Cost.CostUSD()
	costF, _ := cost.Float64()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.dailyTotal += costF
	h.weeklyTotal += costF
	h.monthlyTotal += costF

	if costF >= h.cfg.ThresholdUSD && h.shouldAlertLocked() {
		now := time.Now()
		h.lastAlert = &now
		h.log.Warn("high cost alert", "cost_usd", costF, "threshold_usd", h.cfg.ThresholdUSD)
	}

	if h.cfg.DailyBudgetUSD != nil && h.dailyTotal >= *h.cfg.DailyBudgetUSD && h.shouldAlertLocked() {
		now := time.Now()
		h.lastAlert = &now
		h.log.Error("daily budget exceeded", "daily_total_usd", h.dailyTotal, "budget_usd", *h.cfg.DailyBudgetUSD)
	}
	if h.cfg.WeeklyBudgetUSD != nil && h.weeklyTotal >= *h.cfg.WeeklyBudgetUSD && h.shouldAlertLocked() {
		now := time.Now()
		h.lastAlert = &now
		h.log.Error("weekly budget exceeded", "weekly_total_usd", h.weeklyTotal, "budget_usd", *h.cfg.WeeklyBudgetUSD)
	}
	if h.cfg.MonthlyBudgetUSD != nil && h.monthlyTotal >= *h.cfg.MonthlyBudgetUSD && h.shouldAlertLocked() {
		now := time.Now()
		h.lastAlert = &now
		h.log.Error("monthly budget exceeded", "monthly_total_usd", h.monthlyTotal, "budget_usd", *h.cfg.MonthlyBudgetUSD)
	}

	return OK(), nil
}

// SessionLogFormat selects the on-disk encoding SessionLogHandler appends.
type SessionLogFormat int

const (
	SessionLogJSON SessionLogFormat = iota
	SessionLogCSV
	SessionLogPlain
)

type SessionLogConfig struct {
	LogPath          string
	Format           SessionLogFormat
	IncludeMetadata  bool
}

func DefaultSessionLogConfig() SessionLogConfig {
	return SessionLogConfig{LogPath: "sessions.log", Format: SessionLogJSON, IncludeMetadata: true}
}

// SessionLogHandler appends one line per session lifecycle event to a log
// file, in the configured format.
type SessionLogHandler struct {
	mu  sync.Mutex
	cfg SessionLogConfig
	log logger.Logger
}

func NewSessionLogHandler(cfg SessionLogConfig, log logger.Logger) *SessionLogHandler {
	return &SessionLogHandler{cfg: cfg, log: log}
}

func (h *SessionLogHandler) Name() string        { return "session_log" }
func (h *SessionLogHandler) Hook() Hook          { return PostSessionEnd }
func (h *SessionLogHandler) Priority() int       { return 50 }
func (h *SessionLogHandler) Description() string { return "Logs session events to a file" }

func (h *SessionLogHandler) formatEntry(hctx HookContext, eventType string) string {
	s := hctx.Data.Session
	switch h.cfg.Format {
	case SessionLogCSV:
		return fmt.Sprintf("%s,%s,%s,%s,%s\n", time.Now().Format(time.RFC3339), eventType, s.ID(), s.AgentID(), s.Status())
	case SessionLogPlain:
		return fmt.Sprintf("[%s] %s session %s (agent: %s, status: %s)\n",
			time.Now().Format("2006-01-02 15:04:05"), eventType, s.ID(), s.AgentID(), s.Status())
	default:
		entry := map[string]any{
			"timestamp":  time.Now().Format(time.RFC3339),
			"event":      eventType,
			"session_id": s.ID().String(),
			"agent_id":   s.AgentID().String(),
			"status":     string(s.Status()),
			"started_at": s.StartedAt().Format(time.RFC3339),
		}
		if h.cfg.IncludeMetadata {
			entry["metadata"] = json.RawMessage(s.Metadata())
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return ""
		}
		return string(raw) + "\n"
	}
}

func (h *SessionLogHandler) writeEntry(entry string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.OpenFile(h.cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry)
	return err
}

func (h *SessionLogHandler) Handle(ctx context.Context, hctx HookContext) (HookResult, error) {
	if hctx.Data.Session == nil {
		return OK(), nil
	}
	eventType := "EVENT"
	switch hctx.Hook {
	case PreSessionStart:
		eventType = "START"
	case PostSessionEnd:
		eventType = "END"
	}

	entry := h.formatEntry(hctx, eventType)
	if err := h.writeEntry(entry); err != nil {
		h.log.Error("failed to write session log entry", "error", err)
	}
	return OK(), nil
}

// SessionStartLogHandler is SessionLogHandler registered against
// PreSessionStart instead of PostSessionEnd, sharing the same formatting and
// file-append logic.
type SessionStartLogHandler struct {
	inner *SessionLogHandler
}

func NewSessionStartLogHandler(cfg SessionLogConfig, log logger.Logger) *SessionStartLogHandler {
	return &SessionStartLogHandler{inner: NewSessionLogHandler(cfg, log)}
}

func (h *SessionStartLogHandler) Name() string        { return "session_start_log" }
func (h *SessionStartLogHandler) Hook() Hook          { return PreSessionStart }
func (h *SessionStartLogHandler) Priority() int       { return 50 }
func (h *SessionStartLogHandler) Description() string { return "Logs session start events to a file" }

func (h *SessionStartLogHandler) Handle(ctx context.Context, hctx HookContext) (HookResult, error) {
	return h.inner.Handle(ctx, hctx)
}

// MetricsExportConfig tunes where and how often MetricsExportHandler flushes
// its buffered metrics samples.
type MetricsExportConfig struct {
	Endpoint              string
	APIKey                *string
	BatchSize             int
	FlushIntervalSecs     int64
	IncludeSystemMetrics  bool
	Tags                  map[string]string
}

func DefaultMetricsExportConfig() MetricsExportConfig {
	return MetricsExportConfig{BatchSize: 100, FlushIntervalSecs: 60, IncludeSystemMetrics: true, Tags: map[string]string{}}
}

// MetricsExportHandler buffers MetricsSnapshot samples and periodically POSTs
// a batch to an external collector.
type MetricsExportHandler struct {
	mu         sync.Mutex
	cfg        MetricsExportConfig
	buffer     []map[string]any
	lastFlush  time.Time
	client     *http.Client
	log        logger.Logger
}

func NewMetricsExportHandler(cfg MetricsExportConfig, log logger.Logger) *MetricsExportHandler {
	return &MetricsExportHandler{cfg: cfg, lastFlush: time.Now(), client: &http.Client{Timeout: 10 * time.Second}, log: log}
}

func (h *MetricsExportHandler) Name() string        { return "metrics_export" }
func (h *MetricsExportHandler) Hook() Hook          { return OnMetricsCollected }
func (h *MetricsExportHandler) Priority() int       { return 25 }
func (h *MetricsExportHandler) Description() string { return "Exports metrics to an external service" }

// Flush POSTs and clears the buffered batch, returning the count sent. A
// blank endpoint discards the buffer without sending.
func (h *MetricsExportHandler) Flush(ctx context.Context) (int, error) {
	h.mu.Lock()
	if len(h.buffer) == 0 {
		h.mu.Unlock()
		return 0, nil
	}
	if h.cfg.Endpoint == "" {
		h.buffer = nil
		h.mu.Unlock()
		return 0, nil
	}
	metrics := h.buffer
	h.buffer = nil
	tags := h.cfg.Tags
	endpoint := h.cfg.Endpoint
	apiKey := h.cfg.APIKey
	h.mu.Unlock()

	payload := map[string]any{
		"metrics":   metrics,
		"timestamp": time.Now().Format(time.RFC3339),
		"tags":      tags,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != nil {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Error("failed to send metrics", "error", err)
		return 0, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.mu.Lock()
		h.lastFlush = time.Now()
		h.mu.Unlock()
		return len(metrics), nil
	}
	h.log.Error("failed to export metrics", "status", resp.StatusCode)
	return 0, nil
}

func (h *MetricsExportHandler) shouldFlush() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) >= h.cfg.BatchSize {
		return true
	}
	return time.Since(h.lastFlush) >= time.Duration(h.cfg.FlushIntervalSecs)*time.Second && len(h.buffer) > 0
}

func (h *MetricsExportHandler) Handle(ctx context.Context, hctx HookContext) (HookResult, error) {
	if hctx.Data.Metrics == nil {
		return OK(), nil
	}
	h.mu.Lock()
	if !h.cfg.IncludeSystemMetrics {
		h.mu.Unlock()
		return OK(), nil
	}
	m := hctx.Data.Metrics
	h.buffer = append(h.buffer, map[string]any{
		"type":             "system_metrics",
		"timestamp":        time.Now().Format(time.RFC3339),
		"cpu_percent":      m.CPUPercent,
		"memory_used_mb":   m.MemoryUsedMB,
		"memory_total_mb":  m.MemoryTotalMB,
		"memory_percent":   m.MemoryPercent,
		"active_sessions":  m.ActiveSessions,
	})
	h.mu.Unlock()

	if h.shouldFlush() {
		if _, err := h.Flush(ctx); err != nil {
			return OK(), err
		}
	}
	return OK(), nil
}

// WebhookConfig points WebhookHandler at an external URL and, optionally,
// restricts it to a subset of hooks.
type WebhookConfig struct {
	URL            string
	Headers        map[string]string
	Events         []Hook
	TimeoutSecs    int64
}

func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{Headers: map[string]string{}, TimeoutSecs: 10}
}

// WebhookHandler is registered against the open-ended Custom("webhook_all")
// hook, so the manager runs it only for contexts dispatched under that hook
// name; the supervisor does not forward other hooks to it. A non-empty
// Events allow-list further restricts which contexts it posts.
type WebhookHandler struct {
	mu     sync.RWMutex
	cfg    WebhookConfig
	client *http.Client
	log    logger.Logger
}

func NewWebhookHandler(cfg WebhookConfig, log logger.Logger) *WebhookHandler {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookHandler{cfg: cfg, client: &http.Client{Timeout: timeout}, log: log}
}

func (h *WebhookHandler) Name() string        { return "webhook" }
func (h *WebhookHandler) Hook() Hook          { return Custom("webhook_all") }
func (h *WebhookHandler) Priority() int       { return 10 }
func (h *WebhookHandler) Description() string { return "Sends hook events to a webhook URL" }

func eventsContain(events []Hook, hook Hook) bool {
	for _, h := range events {
		if h.Name() == hook.Name() {
			return true
		}
	}
	return false
}

func (h *WebhookHandler) Handle(ctx context.Context, hctx HookContext) (HookResult, error) {
	h.mu.RLock()
	cfg := h.cfg
	h.mu.RUnlock()

	if cfg.URL == "" {
		return OK(), nil
	}
	if len(cfg.Events) > 0 && !eventsContain(cfg.Events, hctx.Hook) {
		return OK(), nil
	}

	payload := map[string]any{
		"hook":           hctx.Hook.Name(),
		"timestamp":      hctx.Timestamp.Format(time.RFC3339),
		"source":         hctx.Source,
		"correlation_id": hctx.CorrelationID.String(),
		"metadata":       hctx.Metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return OK(), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return OK(), err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Error("webhook request failed", "error", err, "url", cfg.URL)
		return OK(), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.log.Warn("webhook request failed", "status", resp.StatusCode, "url", cfg.URL)
	}
	return OK(), nil
}
