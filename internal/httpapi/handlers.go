package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Handlers is the thin HTTP-to-KV translation layer: every method here does
// request decoding, one kv.Trigger call, optional reshaping, and response
// encoding — no business logic lives here.
type Handlers struct {
	kv  *KV
	log *slog.Logger
}

func NewHandlers(kv *KV, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{kv: kv, log: log}
}

// unwrapField pulls field out of a JSON object result, same as the original
// unwrap_field: objects with the key are reduced to just that value, anything
// else (including objects without the key) passes through unchanged.
func unwrapField(raw json.RawMessage, field string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if v, ok := obj[field]; ok {
		return v
	}
	return raw
}

// renameDailyCostField turns every {"total_cost": x, ...} entry of a daily
// array into {"cost": x, ...}, matching the original api_costs_daily reshape.
func renameDailyCostField(raw json.RawMessage) json.RawMessage {
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return raw
	}
	for _, item := range items {
		if tc, ok := item["total_cost"]; ok {
			item["cost"] = tc
			delete(item, "total_cost")
		}
	}
	out, err := json.Marshal(items)
	if err != nil {
		return raw
	}
	return out
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.log.Error("failed writing response body", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, err error) {
	h.log.Error("request failed", "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"error":   http.StatusText(status),
		"message": err.Error(),
	})
}

func (h *Handlers) call(w http.ResponseWriter, r *http.Request, fn string, payload json.RawMessage, okStatus int) (json.RawMessage, bool) {
	result, err := h.kv.Trigger(r.Context(), fn, payload)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	_ = okStatus
	return result, true
}

func readBody(r *http.Request) json.RawMessage {
	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body == nil {
		body = json.RawMessage("{}")
	}
	return body
}

func pathParam(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func withField(field, value string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{field: value})
	return b
}

// mergeField folds field=value into a decoded copy of body, same shape as
// withField but preserving whatever the request body already carried (e.g. a
// path-param id alongside a JSON body on PUT/POST routes).
func mergeField(body json.RawMessage, field, value string) json.RawMessage {
	obj := map[string]interface{}{}
	_ = json.Unmarshal(body, &obj)
	obj[field] = value
	b, _ := json.Marshal(obj)
	return b
}

func (h *Handlers) AgentsList(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnAgentsList, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "agents"))
}

func (h *Handlers) AgentsRegister(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnAgentsCreate, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) AgentsDetect(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnAgentsDetect, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AgentsConnect(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnAgentsConnect, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) AgentsGet(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnAgentsGet, withField("agent_id", pathParam(r, "id")))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AgentsDisconnect(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnAgentsDisconnect, withField("agent_id", pathParam(r, "id")))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) SessionsList(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnSessionsList, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "sessions"))
}

func (h *Handlers) SessionsActive(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnSessionsActive, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) SessionsHistory(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnSessionsHistory, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) SessionsGet(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnSessionsGet, withField("session_id", pathParam(r, "id")))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) CostsSummary(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnCostsSummary, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) CostsDaily(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnCostsDaily, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, renameDailyCostField(unwrapField(result, "daily")))
}

func (h *Handlers) CostsByAgent(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnCostsByAgent, withField("agent_id", pathParam(r, "id")))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) CostsRecord(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnCostsRecord, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) ModelsList(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnModelsList, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "models"))
}

func (h *Handlers) ModelsSync(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnModelsSync, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ModelsGet(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnModelsGet, withField("model_id", pathParam(r, "id")))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) MetricsCurrent(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnMetricsCurrent, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "metrics"))
}

func (h *Handlers) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnMetricsHistory, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnHealthCheck, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) HooksRegister(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnHooksRegister, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) HooksDispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnHooksDispatch, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) HooksList(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnHooksList, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "hooks"))
}

func (h *Handlers) HooksUpdate(w http.ResponseWriter, r *http.Request) {
	payload := mergeField(readBody(r), "name", pathParam(r, "id"))
	result, err := h.kv.Trigger(r.Context(), FnHooksUpdate, payload)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) HooksExecutions(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnHooksExecutions, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "executions"))
}

// PluginsList reports every plugin currently holding a live sandbox.
func (h *Handlers) PluginsList(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnPluginsList, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "plugins"))
}

func (h *Handlers) PluginsInstall(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnPluginsInstall, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) PluginsUninstall(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnPluginsUninstall, withField("plugin_id", pathParam(r, "id")))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// PluginsToggle drives POST /plugins/{id}/{action}; action is "enable" or
// "disable", matching the original's action-in-path convention.
func (h *Handlers) PluginsToggle(w http.ResponseWriter, r *http.Request) {
	payload := mergeField(withField("plugin_id", pathParam(r, "id")), "action", pathParam(r, "action"))
	result, err := h.kv.Trigger(r.Context(), FnPluginsToggle, payload)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// MCP server discovery is out of scope: this module carries no MCP server
// substrate, so this reports an empty catalog rather than inventing one.
func (h *Handlers) MCPList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, json.RawMessage("[]"))
}

func (h *Handlers) ConfigGet(w http.ResponseWriter, r *http.Request) {
	result, ok := h.call(w, r, FnConfigGet, nil, http.StatusOK)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, unwrapField(result, "config"))
}

func (h *Handlers) ConfigSet(w http.ResponseWriter, r *http.Request) {
	result, err := h.kv.Trigger(r.Context(), FnConfigSet, readBody(r))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
