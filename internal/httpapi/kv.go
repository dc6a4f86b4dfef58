// Package httpapi exposes the registry, supervisor, aggregators, and hook
// manager over the HTTP surface the web UI and CLI talk to (spec.md §6): a
// single `/api/*` route table backed by a function-dispatch bridge, mirroring
// the original Tauri state-invoke pattern with a plain HTTP router instead of
// an IPC channel.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rimuru/agentctl/internal/hooks"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/rimuruerrors"
	"github.com/rimuru/agentctl/internal/sandbox"
	"github.com/rimuru/agentctl/internal/supervisor"
	"github.com/rimuru/agentctl/pkg/logger"
)

// Function IDs the KV bridge dispatches, named after the services they
// front. Kept as a flat namespace rather than a route-to-handler 1:1 mapping
// so a handler and the function it calls can vary independently, same as
// the original function-invoke bridge.
const (
	FnAgentsList       = "rimuru.agents.list"
	FnAgentsGet        = "rimuru.agents.get"
	FnAgentsCreate     = "rimuru.agents.create"
	FnAgentsDetect     = "rimuru.agents.detect"
	FnAgentsConnect    = "rimuru.agents.connect"
	FnAgentsDisconnect = "rimuru.agents.disconnect"

	FnSessionsList    = "rimuru.sessions.list"
	FnSessionsGet     = "rimuru.sessions.get"
	FnSessionsActive  = "rimuru.sessions.active"
	FnSessionsHistory = "rimuru.sessions.history"

	FnCostsSummary = "rimuru.costs.summary"
	FnCostsDaily   = "rimuru.costs.daily"
	FnCostsByAgent = "rimuru.costs.by_agent"
	FnCostsRecord  = "rimuru.costs.record"

	FnModelsList = "rimuru.models.list"
	FnModelsSync = "rimuru.models.sync"
	FnModelsGet  = "rimuru.models.get"

	FnMetricsCurrent = "rimuru.metrics.current"
	FnMetricsHistory = "rimuru.metrics.history"

	FnHealthCheck = "rimuru.health.check"

	FnHooksRegister   = "rimuru.hooks.register"
	FnHooksDispatch   = "rimuru.hooks.dispatch"
	FnHooksList       = "rimuru.hooks.list"
	FnHooksUpdate     = "rimuru.hooks.update"
	FnHooksExecutions = "rimuru.hooks.executions"

	FnPluginsList      = "rimuru.plugins.list"
	FnPluginsInstall   = "rimuru.plugins.install"
	FnPluginsUninstall = "rimuru.plugins.uninstall"
	FnPluginsToggle    = "rimuru.plugins.toggle"

	FnConfigGet = "rimuru.config.get"
	FnConfigSet = "rimuru.config.set"
)

// costEntry is an in-memory placeholder for a submitted cost record until the
// persistence layer is wired in; the HTTP surface never blocks on storage
// existing.
type costEntry struct {
	AgentName string    `json:"agent_name"`
	Model     string    `json:"model"`
	CostUSD   float64   `json:"cost"`
	Tokens    int64     `json:"tokens"`
	Recorded  time.Time `json:"recorded_at"`
}

// ConfigStore is the minimal get/set surface the config endpoints need;
// satisfied by the config package once wired in from cmd, or by an in-memory
// map when running standalone (e.g. in tests).
type ConfigStore interface {
	Get() (map[string]interface{}, error)
	Set(patch map[string]interface{}) error
}

type memConfigStore struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{data: map[string]interface{}{}}
}

func (m *memConfigStore) Get() (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]interface{}, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *memConfigStore) Set(patch map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range patch {
		m.data[k] = v
	}
	return nil
}

// KV is the function-dispatch bridge every HTTP handler calls through. It
// holds the live supervisor/aggregators/hook manager and has no HTTP-layer
// knowledge.
type KV struct {
	sup        *supervisor.Supervisor
	hookMgr    *hooks.Manager
	sandboxMgr *sandbox.Manager
	cfg        ConfigStore
	log        logger.Logger

	mu      sync.Mutex
	costLog []costEntry
}

// NewKV wires a KV bridge to a running supervisor, hook manager, and plugin
// sandbox manager. cfg may be nil, in which case config reads/writes hit an
// in-memory placeholder.
func NewKV(sup *supervisor.Supervisor, hookMgr *hooks.Manager, sandboxMgr *sandbox.Manager, cfg ConfigStore, log logger.Logger) *KV {
	if cfg == nil {
		cfg = newMemConfigStore()
	}
	return &KV{sup: sup, hookMgr: hookMgr, sandboxMgr: sandboxMgr, cfg: cfg, log: log}
}

// Trigger dispatches functionID with payload and returns its JSON result, the
// same contract the original StateKV.trigger exposed to every route handler.
func (kv *KV) Trigger(ctx context.Context, functionID string, payload json.RawMessage) (json.RawMessage, error) {
	switch functionID {
	case FnAgentsList:
		return kv.agentsList()
	case FnAgentsGet:
		return kv.agentsGet(payload)
	case FnAgentsCreate:
		return kv.agentsCreate(ctx, payload)
	case FnAgentsDetect:
		return kv.agentsDetect()
	case FnAgentsConnect:
		return kv.agentsConnect(ctx, payload)
	case FnAgentsDisconnect:
		return kv.agentsDisconnect(ctx, payload)

	case FnSessionsList:
		return kv.sessionsList(ctx)
	case FnSessionsGet:
		return kv.sessionsGet(ctx, payload)
	case FnSessionsActive:
		return kv.sessionsActive(ctx)
	case FnSessionsHistory:
		return kv.sessionsHistory(ctx)

	case FnCostsSummary:
		return kv.costsSummary(ctx)
	case FnCostsDaily:
		return kv.costsDaily(ctx)
	case FnCostsByAgent:
		return kv.costsByAgent(ctx, payload)
	case FnCostsRecord:
		return kv.costsRecord(payload)

	case FnModelsList:
		return kv.modelsList(ctx)
	case FnModelsSync:
		return kv.modelsSync()
	case FnModelsGet:
		return kv.modelsGet(ctx, payload)

	case FnMetricsCurrent:
		return kv.metricsCurrent(ctx)
	case FnMetricsHistory:
		return kv.metricsCurrent(ctx)

	case FnHealthCheck:
		return kv.healthCheck(ctx)

	case FnHooksRegister:
		return kv.hooksRegister(payload)
	case FnHooksDispatch:
		return kv.hooksDispatch(ctx, payload)
	case FnHooksList:
		return kv.hooksList()
	case FnHooksUpdate:
		return kv.hooksUpdate(payload)
	case FnHooksExecutions:
		return kv.hooksExecutions()

	case FnPluginsList:
		return kv.pluginsList()
	case FnPluginsInstall:
		return kv.pluginsInstall(payload)
	case FnPluginsUninstall:
		return kv.pluginsUninstall(payload)
	case FnPluginsToggle:
		return kv.pluginsToggle(payload)

	case FnConfigGet:
		return kv.configGet()
	case FnConfigSet:
		return kv.configSet(payload)

	default:
		kv.log.Warn("unknown function requested", "function_id", functionID)
		return nil, fmt.Errorf("unknown function %q", functionID)
	}
}

func marshalResult(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (kv *KV) agentsList() (json.RawMessage, error) {
	names := kv.sup.ListAdapters()
	statuses := kv.sup.GetAllStatuses()
	kinds := kv.sup.ListAdaptersByKind()
	agents := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		var kind models.AgentKind
		for k, list := range kinds {
			if containsName(list, name) {
				kind = k
				break
			}
		}
		agents = append(agents, map[string]interface{}{
			"id":     name,
			"name":   name,
			"type":   kind.String(),
			"status": string(statuses[name]),
		})
	}
	return marshalResult(map[string]interface{}{"agents": agents})
}

func containsName(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func (kv *KV) agentsGet(payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "agent_id")
	if err != nil {
		return nil, err
	}
	status, err := kv.sup.GetAdapterStatus(id)
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"id": id, "name": id, "status": string(status)})
}

func (kv *KV) agentsCreate(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Name == "" {
		return nil, &rimuruerrors.ValidationError{Detail: "name is required"}
	}
	return marshalResult(map[string]interface{}{"id": body.Name, "name": body.Name, "status": "registered"})
}

func (kv *KV) agentsDetect() (json.RawMessage, error) {
	discovered, err := kv.sup.Initialize(context.Background())
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"discovered": discovered})
}

func (kv *KV) agentsConnect(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "agent_id")
	if err != nil {
		return nil, err
	}
	if err := kv.sup.Registry().ConnectWithRetry(ctx, id); err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"id": id, "status": "connected"})
}

func (kv *KV) agentsDisconnect(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "agent_id")
	if err != nil {
		return nil, err
	}
	handle := kv.sup.Registry().Get(id)
	if handle == nil {
		return nil, rimuruerrors.NotFound(id)
	}
	if err := handle.Adapter().Disconnect(ctx); err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"id": id, "status": "disconnected"})
}

func (kv *KV) sessionsList(ctx context.Context) (json.RawMessage, error) {
	sessions := kv.sup.SessionAggregator().GetSessionHistory(ctx, nil, models.NewTimeRange(models.AllTime))
	return marshalResult(map[string]interface{}{"sessions": sessions, "total": len(sessions)})
}

func (kv *KV) sessionsGet(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "session_id")
	if err != nil {
		return nil, err
	}
	found := kv.sup.Registry().FindSession(ctx, id)
	if found == nil {
		return nil, rimuruerrors.ErrSessionNotFound
	}
	return marshalResult(found)
}

func (kv *KV) sessionsActive(ctx context.Context) (json.RawMessage, error) {
	sessions := kv.sup.SessionAggregator().GetAllActiveSessions(ctx)
	return marshalResult(sessions)
}

func (kv *KV) sessionsHistory(ctx context.Context) (json.RawMessage, error) {
	sessions := kv.sup.SessionAggregator().GetSessionHistory(ctx, nil, models.NewTimeRange(models.AllTime))
	return marshalResult(sessions)
}

func (kv *KV) costsSummary(ctx context.Context) (json.RawMessage, error) {
	report := kv.sup.CostAggregator().Report(ctx, models.NewTimeRange(models.AllTime))
	todayReport := kv.sup.CostAggregator().Report(ctx, models.NewTimeRange(models.Today))

	byAgent := make([]map[string]interface{}, 0, len(report.ByName))
	for name, bucket := range report.ByName {
		byAgent = append(byAgent, map[string]interface{}{
			"agent_name":          name,
			"total_cost":          bucket.TotalCostUSD,
			"total_input_tokens":  bucket.TotalTokens,
			"total_output_tokens": 0,
		})
	}
	sort.Slice(byAgent, func(i, j int) bool {
		return byAgent[i]["agent_name"].(string) < byAgent[j]["agent_name"].(string)
	})

	byModel := make([]map[string]interface{}, 0, len(report.ByModel))
	for name, bucket := range report.ByModel {
		byModel = append(byModel, map[string]interface{}{"model": name, "total_cost": bucket.TotalCostUSD})
	}

	return marshalResult(map[string]interface{}{"summary": map[string]interface{}{
		"total_cost":          report.Total.TotalCostUSD,
		"total_cost_today":    todayReport.Total.TotalCostUSD,
		"total_input_tokens":  report.Total.TotalTokens,
		"total_output_tokens": 0,
		"by_agent":            byAgent,
		"by_model":            byModel,
	}})
}

func (kv *KV) costsDaily(ctx context.Context) (json.RawMessage, error) {
	report := kv.sup.CostAggregator().Report(ctx, models.NewTimeRange(models.Month))
	daily := make([]map[string]interface{}, 0, len(report.Series))
	for _, point := range report.Series {
		daily = append(daily, map[string]interface{}{
			"date":       point.Date.Format("2006-01-02"),
			"total_cost": point.TotalCostUSD,
		})
	}
	return marshalResult(map[string]interface{}{"daily": daily})
}

func (kv *KV) costsByAgent(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "agent_id")
	if err != nil {
		return nil, err
	}
	handle := kv.sup.Registry().Get(id)
	if handle == nil {
		return nil, rimuruerrors.NotFound(id)
	}
	cost, err := handle.Adapter().TotalCost(ctx, nil)
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"agent_id": id, "total_cost": cost})
}

func (kv *KV) costsRecord(payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		AgentName string  `json:"agent_name"`
		Model     string  `json:"model"`
		CostUSD   float64 `json:"cost"`
		Tokens    int64   `json:"tokens"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &rimuruerrors.ValidationError{Detail: "invalid cost record payload"}
	}
	entry := costEntry{AgentName: body.AgentName, Model: body.Model, CostUSD: body.CostUSD, Tokens: body.Tokens, Recorded: time.Now().UTC()}

	kv.mu.Lock()
	kv.costLog = append(kv.costLog, entry)
	kv.mu.Unlock()

	if kv.hookMgr != nil {
		hctx := hooks.NewHookContext(hooks.OnCostRecorded, hooks.CustomData(functionPayload(body)))
		_, _ = kv.hookMgr.Dispatch(context.Background(), hctx)
	}
	return marshalResult(entry)
}

func functionPayload(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func (kv *KV) modelsList(ctx context.Context) (json.RawMessage, error) {
	var out []string
	for _, name := range kv.sup.ListAdapters() {
		handle := kv.sup.Registry().Get(name)
		if handle == nil {
			continue
		}
		names, err := handle.Adapter().SupportedModels(ctx)
		if err != nil {
			continue
		}
		out = append(out, names...)
	}
	return marshalResult(map[string]interface{}{"models": out})
}

func (kv *KV) modelsSync() (json.RawMessage, error) {
	return marshalResult(map[string]interface{}{"status": "ok", "synced_at": time.Now().UTC()})
}

func (kv *KV) modelsGet(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "model_id")
	if err != nil {
		return nil, err
	}
	for _, name := range kv.sup.ListAdapters() {
		handle := kv.sup.Registry().Get(name)
		if handle == nil {
			continue
		}
		info, err := handle.Adapter().ModelInfo(ctx, id)
		if err == nil && info != nil {
			return marshalResult(info)
		}
	}
	return nil, fmt.Errorf("model %q not found", id)
}

func (kv *KV) metricsCurrent(ctx context.Context) (json.RawMessage, error) {
	usage := kv.sup.Registry().GetAggregatedUsage(ctx, nil)
	active := kv.sup.SessionAggregator().GetActiveSessionCount(ctx)
	return marshalResult(map[string]interface{}{"metrics": map[string]interface{}{
		"active_agents":        active,
		"requests_per_minute":  float64(usage.Requests),
		"cpu_usage_percent":    0.0,
		"memory_used_mb":       0.0,
	}})
}

func (kv *KV) healthCheck(ctx context.Context) (json.RawMessage, error) {
	results := kv.sup.Registry().HealthCheckAll(ctx)
	overall := "healthy"
	for _, ok := range results {
		if !ok {
			overall = "degraded"
			break
		}
	}
	return marshalResult(map[string]interface{}{"status": overall, "adapters": results})
}

func (kv *KV) hooksRegister(payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		Name string `json:"name"`
		Hook string `json:"hook"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &rimuruerrors.ValidationError{Detail: "invalid hook registration payload"}
	}
	return marshalResult(map[string]interface{}{"name": body.Name, "hook": body.Hook, "status": "registered"})
}

func (kv *KV) hooksDispatch(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		Hook string `json:"hook"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &rimuruerrors.ValidationError{Detail: "invalid dispatch payload"}
	}
	if kv.hookMgr == nil {
		return marshalResult(map[string]interface{}{"result": "skip"})
	}
	hctx := hooks.NewHookContext(hooks.FromName(body.Hook), hooks.NoData())
	result, err := kv.hookMgr.Dispatch(ctx, hctx)
	if err != nil {
		return nil, err
	}
	outcome := "continue"
	switch {
	case result.IsAbort():
		outcome = "abort"
	case result.IsModified():
		outcome = "modified"
	case result.IsSkip():
		outcome = "skip"
	}
	return marshalResult(map[string]interface{}{"result": outcome, "abort_reason": result.AbortReason()})
}

// hooksList reports every registered handler, real data in place of the
// static discovery catalog the original served here.
func (kv *KV) hooksList() (json.RawMessage, error) {
	if kv.hookMgr == nil {
		return marshalResult(map[string]interface{}{"hooks": []hooks.HookHandlerInfo{}})
	}
	return marshalResult(map[string]interface{}{"hooks": kv.hookMgr.ListHandlers()})
}

// hooksUpdate toggles a registered handler's enabled state by name. Unlike
// the original's no-op stub, this actually drives Manager.SetEnabled.
func (kv *KV) hooksUpdate(payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		Name    string `json:"name"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Name == "" {
		return nil, &rimuruerrors.ValidationError{Detail: "name is required"}
	}
	if kv.hookMgr == nil {
		return nil, rimuruerrors.NotFound(body.Name)
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	kv.hookMgr.SetEnabled(body.Name, enabled)
	return marshalResult(map[string]interface{}{"name": body.Name, "enabled": enabled, "status": "ok"})
}

// hooksExecutions surfaces the dispatch history the Manager already tracks,
// where the original hardcoded an empty array.
func (kv *KV) hooksExecutions() (json.RawMessage, error) {
	if kv.hookMgr == nil {
		return marshalResult(map[string]interface{}{"executions": []hooks.HookExecution{}})
	}
	return marshalResult(map[string]interface{}{"executions": kv.hookMgr.History()})
}

func (kv *KV) pluginsList() (json.RawMessage, error) {
	if kv.sandboxMgr == nil {
		return marshalResult(map[string]interface{}{"plugins": []string{}})
	}
	ids := kv.sandboxMgr.ListPlugins()
	plugins := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		enabled, err := kv.sandboxMgr.IsPluginEnabled(id)
		if err != nil {
			continue
		}
		plugins = append(plugins, map[string]interface{}{"id": id, "enabled": enabled})
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i]["id"].(string) < plugins[j]["id"].(string)
	})
	return marshalResult(map[string]interface{}{"plugins": plugins})
}

func (kv *KV) pluginsInstall(payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		PluginID string `json:"plugin_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.PluginID == "" {
		return nil, &rimuruerrors.ValidationError{Detail: "plugin_id is required"}
	}
	if kv.sandboxMgr == nil {
		return nil, &rimuruerrors.PluginError{Message: "sandbox manager not configured"}
	}
	if err := kv.sandboxMgr.CreateSandbox(body.PluginID, nil); err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"plugin_id": body.PluginID, "status": "installed"})
}

func (kv *KV) pluginsUninstall(payload json.RawMessage) (json.RawMessage, error) {
	id, err := extractString(payload, "plugin_id")
	if err != nil {
		return nil, err
	}
	if kv.sandboxMgr == nil {
		return nil, &rimuruerrors.PluginError{Message: "sandbox manager not configured"}
	}
	if err := kv.sandboxMgr.RemoveSandbox(id); err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"plugin_id": id, "status": "uninstalled"})
}

func (kv *KV) pluginsToggle(payload json.RawMessage) (json.RawMessage, error) {
	var body struct {
		PluginID string `json:"plugin_id"`
		Action   string `json:"action"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.PluginID == "" {
		return nil, &rimuruerrors.ValidationError{Detail: "plugin_id is required"}
	}
	if kv.sandboxMgr == nil {
		return nil, &rimuruerrors.PluginError{Message: "sandbox manager not configured"}
	}
	enabled := body.Action == "enable"
	if err := kv.sandboxMgr.SetPluginEnabled(body.PluginID, enabled); err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"plugin_id": body.PluginID, "enabled": enabled, "status": "ok"})
}

func (kv *KV) configGet() (json.RawMessage, error) {
	cfg, err := kv.cfg.Get()
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"config": cfg})
}

func (kv *KV) configSet(payload json.RawMessage) (json.RawMessage, error) {
	var patch map[string]interface{}
	if err := json.Unmarshal(payload, &patch); err != nil {
		return nil, &rimuruerrors.ValidationError{Detail: "invalid config payload"}
	}
	if err := kv.cfg.Set(patch); err != nil {
		return nil, err
	}
	return marshalResult(map[string]interface{}{"status": "ok"})
}

func extractString(payload json.RawMessage, field string) (string, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", &rimuruerrors.ValidationError{Detail: "invalid request payload"}
	}
	v, ok := body[field].(string)
	if !ok || v == "" {
		return "", &rimuruerrors.ValidationError{Detail: field + " is required"}
	}
	return v, nil
}
