// Package hooks implements the lifecycle hook pipeline (spec §4.D): a closed
// set of named lifecycle points plus an open "custom" tail, a priority-
// ordered dispatch pipeline, and a handful of built-in handlers (cost
// alerting, session logging, metrics export, webhook delivery).
package hooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rimuru/agentctl/internal/models"
)

// Hook identifies a lifecycle point. The standard set is closed; Custom
// carries an arbitrary caller-defined name for plugin-specific hooks.
type Hook struct {
	standard string
	custom   string
}

var (
	PreSessionStart    = Hook{standard: "pre_session_start"}
	PostSessionEnd     = Hook{standard: "post_session_end"}
	OnCostRecorded     = Hook{standard: "on_cost_recorded"}
	OnMetricsCollected = Hook{standard: "on_metrics_collected"}
	OnAgentConnect     = Hook{standard: "on_agent_connect"}
	OnAgentDisconnect  = Hook{standard: "on_agent_disconnect"}
	OnSyncComplete     = Hook{standard: "on_sync_complete"}
	OnPluginLoaded     = Hook{standard: "on_plugin_loaded"}
	OnPluginUnloaded   = Hook{standard: "on_plugin_unloaded"}
	OnConfigChanged    = Hook{standard: "on_config_changed"}
	OnError            = Hook{standard: "on_error"}
)

// Custom constructs an open-ended hook identified by name.
func Custom(name string) Hook { return Hook{custom: name} }

// AllStandard returns the 11 standard lifecycle hooks, in declaration order.
func AllStandard() []Hook {
	return []Hook{
		PreSessionStart, PostSessionEnd, OnCostRecorded, OnMetricsCollected,
		OnAgentConnect, OnAgentDisconnect, OnSyncComplete, OnPluginLoaded,
		OnPluginUnloaded, OnConfigChanged, OnError,
	}
}

// Name returns the hook's wire name.
func (h Hook) Name() string {
	if h.custom != "" {
		return h.custom
	}
	return h.standard
}

func (h Hook) String() string { return h.Name() }

// FromName resolves a wire name back to a Hook, falling back to Custom for
// anything outside the standard set.
func FromName(name string) Hook {
	for _, h := range AllStandard() {
		if h.standard == name {
			return h
		}
	}
	return Custom(name)
}

// HookData is the closed union of payload shapes a HookContext may carry.
type HookData struct {
	kind string

	Session *models.Session
	Cost    *models.CostRecord
	Metrics *MetricsSnapshot

	AgentID   uuid.UUID
	AgentName string
	AgentKind string

	SyncProvider     string
	SyncModelsSynced int
	SyncDurationMS   int64

	PluginID   string
	PluginName string

	ConfigChangedKeys []string

	ErrorCode    string
	ErrorMessage string
	ErrorSource  string

	Custom json.RawMessage
}

const (
	dataNone    = ""
	dataSession = "session"
	dataCost    = "cost"
	dataMetrics = "metrics"
	dataAgent   = "agent"
	dataSync    = "sync"
	dataPlugin  = "plugin"
	dataConfig  = "config"
	dataError   = "error"
	dataCustom  = "custom"
)

// NoData is the zero-value, no-payload HookData.
func NoData() HookData { return HookData{kind: dataNone} }

func SessionData(s *models.Session) HookData { return HookData{kind: dataSession, Session: s} }
func CostData(c *models.CostRecord) HookData  { return HookData{kind: dataCost, Cost: c} }
func MetricsData(m MetricsSnapshot) HookData  { return HookData{kind: dataMetrics, Metrics: &m} }

func AgentData(id uuid.UUID, name, kind string) HookData {
	return HookData{kind: dataAgent, AgentID: id, AgentName: name, AgentKind: kind}
}

func SyncData(provider string, modelsSynced int, durationMS int64) HookData {
	return HookData{kind: dataSync, SyncProvider: provider, SyncModelsSynced: modelsSynced, SyncDurationMS: durationMS}
}

func PluginData(id, name string) HookData {
	return HookData{kind: dataPlugin, PluginID: id, PluginName: name}
}

func ConfigData(changedKeys []string) HookData {
	return HookData{kind: dataConfig, ConfigChangedKeys: changedKeys}
}

func ErrorData(code, message, source string) HookData {
	return HookData{kind: dataError, ErrorCode: code, ErrorMessage: message, ErrorSource: source}
}

func CustomData(payload json.RawMessage) HookData { return HookData{kind: dataCustom, Custom: payload} }

func (d HookData) IsNone() bool { return d.kind == dataNone }

// MetricsSnapshot is the system-resource payload OnMetricsCollected carries.
type MetricsSnapshot struct {
	CPUPercent      float64
	MemoryUsedMB    uint64
	MemoryTotalMB   uint64
	MemoryPercent   float64
	ActiveSessions  int
}

// HookContext is the envelope dispatched to every handler registered against
// a hook.
type HookContext struct {
	Hook          Hook
	Data          HookData
	Source        string
	CorrelationID uuid.UUID
	Timestamp     time.Time
	Metadata      map[string]json.RawMessage
}

// NewHookContext builds a bare context with a fresh correlation ID and the
// current timestamp; no source, no metadata.
func NewHookContext(hook Hook, data HookData) HookContext {
	return HookContext{
		Hook:          hook,
		Data:          data,
		CorrelationID: uuid.New(),
		Timestamp:     time.Now(),
		Metadata:      map[string]json.RawMessage{},
	}
}

func (c HookContext) WithSource(source string) HookContext {
	c.Source = source
	return c
}

func (c HookContext) WithCorrelationID(id uuid.UUID) HookContext {
	c.CorrelationID = id
	return c
}

// WithMetadata marshals value to JSON and attaches it under key. Marshal
// failures are swallowed — metadata is best-effort, never load-bearing.
func (c HookContext) WithMetadata(key string, value any) HookContext {
	if c.Metadata == nil {
		c.Metadata = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return c
	}
	c.Metadata[key] = raw
	return c
}

// GetMetadata unmarshals the metadata value stored under key into T, or
// returns ok=false if absent or the wrong shape.
func GetMetadata[T any](c HookContext, key string) (T, bool) {
	var zero T
	raw, ok := c.Metadata[key]
	if !ok {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false
	}
	return out, true
}

// SessionStartContext builds the PreSessionStart context the session manager
// fires when a session is created.
func SessionStartContext(s *models.Session) HookContext {
	return NewHookContext(PreSessionStart, SessionData(s)).WithSource("session_manager")
}

// SessionEndContext builds the PostSessionEnd context the session manager
// fires when a session ends.
func SessionEndContext(s *models.Session) HookContext {
	return NewHookContext(PostSessionEnd, SessionData(s)).WithSource("session_manager")
}

// CostRecordedContext builds the OnCostRecorded context the cost tracker
// fires after persisting a cost record.
func CostRecordedContext(c *models.CostRecord) HookContext {
	return NewHookContext(OnCostRecorded, CostData(c)).WithSource("cost_tracker")
}

// MetricsCollectedContext builds the OnMetricsCollected context the metrics
// collector fires on each sampling tick.
func MetricsCollectedContext(m MetricsSnapshot) HookContext {
	return NewHookContext(OnMetricsCollected, MetricsData(m)).WithSource("metrics_collector")
}

// AgentConnectContext builds the OnAgentConnect context the supervisor fires
// after a successful adapter connect.
func AgentConnectContext(agentID uuid.UUID, name, kind string) HookContext {
	return NewHookContext(OnAgentConnect, AgentData(agentID, name, kind)).WithSource("adapter_manager")
}

// AgentDisconnectContext builds the OnAgentDisconnect context the supervisor
// fires after a disconnect.
func AgentDisconnectContext(agentID uuid.UUID, name, kind string) HookContext {
	return NewHookContext(OnAgentDisconnect, AgentData(agentID, name, kind)).WithSource("adapter_manager")
}

// SyncCompleteContext builds the OnSyncComplete context the model-catalog
// sync scheduler fires after a sync run.
func SyncCompleteContext(provider string, modelsSynced int, durationMS int64) HookContext {
	return NewHookContext(OnSyncComplete, SyncData(provider, modelsSynced, durationMS)).WithSource("sync_scheduler")
}

// ErrorContext builds the OnError context any component may fire to surface
// an operational error to hook handlers.
func ErrorContext(code, message, source string) HookContext {
	return NewHookContext(OnError, ErrorData(code, message, source)).WithSource("error_handler")
}

// HookResult is the closed set of outcomes a handler may return.
type HookResult struct {
	kind     string
	reason   string
	data     HookData
	message  string
}

func OK() HookResult   { return HookResult{kind: "continue"} }
func Skip() HookResult { return HookResult{kind: "skip"} }

func Abort(reason string) HookResult { return HookResult{kind: "abort", reason: reason} }

func Modified(data HookData) HookResult { return HookResult{kind: "modified", data: data} }

func ModifiedWithMessage(data HookData, message string) HookResult {
	return HookResult{kind: "modified", data: data, message: message}
}

func (r HookResult) IsContinue() bool { return r.kind == "" || r.kind == "continue" }
func (r HookResult) IsAbort() bool    { return r.kind == "abort" }
func (r HookResult) IsModified() bool { return r.kind == "modified" }
func (r HookResult) IsSkip() bool     { return r.kind == "skip" }

func (r HookResult) AbortReason() string { return r.reason }

func (r HookResult) GetModifiedData() (HookData, bool) {
	if r.kind != "modified" {
		return HookData{}, false
	}
	return r.data, true
}

// HookExecution is a single handler invocation's audit record, appended to
// the bounded execution history ring buffer.
type HookExecution struct {
	Hook        Hook
	HandlerName string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *HookResult
	Error       *string
	DurationMS  *int64
}

// NewHookExecution starts an execution record for handlerName against hook.
func NewHookExecution(hook Hook, handlerName string) HookExecution {
	return HookExecution{Hook: hook, HandlerName: handlerName, StartedAt: time.Now()}
}

func (e HookExecution) complete() (time.Time, int64) {
	now := time.Now()
	return now, now.Sub(e.StartedAt).Milliseconds()
}

// Complete marks the execution successful with result.
func (e HookExecution) Complete(result HookResult) HookExecution {
	now, d := e.complete()
	e.CompletedAt = &now
	e.Result = &result
	e.DurationMS = &d
	return e
}

// Fail marks the execution failed with msg.
func (e HookExecution) Fail(msg string) HookExecution {
	now, d := e.complete()
	e.CompletedAt = &now
	e.Error = &msg
	e.DurationMS = &d
	return e
}

// IsSuccessful reports whether the execution completed with a non-error result.
func (e HookExecution) IsSuccessful() bool {
	return e.CompletedAt != nil && e.Result != nil && e.Error == nil
}

// HookHandlerInfo is a registered handler's static descriptor, surfaced via
// the HTTP API's handler-listing endpoint.
type HookHandlerInfo struct {
	Name        string
	Hook        Hook
	Priority    int
	Enabled     bool
	PluginID    *string
	Description *string
}

func NewHookHandlerInfo(name string, hook Hook) HookHandlerInfo {
	return HookHandlerInfo{Name: name, Hook: hook, Enabled: true}
}

func (i HookHandlerInfo) WithPriority(p int) HookHandlerInfo {
	i.Priority = p
	return i
}

func (i HookHandlerInfo) WithDescription(d string) HookHandlerInfo {
	i.Description = &d
	return i
}

func (i HookHandlerInfo) FromPlugin(pluginID string) HookHandlerInfo {
	i.PluginID = &pluginID
	return i
}

// HookConfig tunes pipeline-wide dispatch behavior.
type HookConfig struct {
	TimeoutMS         int64
	Enabled           bool
	MaxHandlers       int
	ParallelExecution bool
}

// DefaultHookConfig matches the original timeout_ms=5000, enabled=true,
// max_handlers=100, parallel_execution=false defaults.
func DefaultHookConfig() HookConfig {
	return HookConfig{TimeoutMS: 5000, Enabled: true, MaxHandlers: 100}
}

func NewHookConfig() HookConfig { return DefaultHookConfig() }

func (c HookConfig) WithTimeout(ms int64) HookConfig {
	c.TimeoutMS = ms
	return c
}

func (c HookConfig) Disabled() HookConfig {
	c.Enabled = false
	return c
}

func (c HookConfig) WithMaxHandlers(n int) HookConfig {
	c.MaxHandlers = n
	return c
}

func (c HookConfig) Parallel() HookConfig {
	c.ParallelExecution = true
	return c
}
