package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/hooks"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/sandbox"
	"github.com/rimuru/agentctl/internal/supervisor"
	"github.com/rimuru/agentctl/pkg/logger"
)

func newTestKV(t *testing.T) *KV {
	t.Helper()
	cfg := supervisor.DefaultConfig()
	cfg.AutoDiscover = false
	sup := supervisor.New(cfg, logger.NewDefaultLogger("test", "error"))

	stub := adapters.NewStub("claude-code", models.ClaudeCode)
	stub.SeedUsage(models.UsageStats{InputTokens: 10, OutputTokens: 5, Requests: 1}, 0.5)
	stub.SeedSessions(
		[]models.ActiveSession{{SessionID: "active-1", Kind: models.ClaudeCode, ModelName: "claude-3-opus"}},
		[]models.SessionHistory{{SessionID: "hist-1", Kind: models.ClaudeCode, ModelName: "claude-3-opus"}},
	)
	require.NoError(t, sup.RegisterAdapter("claude-code", stub))
	require.NoError(t, stub.Connect(context.Background()))

	mgr := hooks.NewManager(hooks.DefaultHookConfig())
	sandboxMgr := sandbox.NewManager()
	return NewKV(sup, mgr, sandboxMgr, nil, logger.NewDefaultLogger("test", "error"))
}

func TestKVAgentsList(t *testing.T) {
	kv := newTestKV(t)
	raw, err := kv.Trigger(context.Background(), FnAgentsList, nil)
	require.NoError(t, err)

	var body struct {
		Agents []map[string]interface{} `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Agents, 1)
	assert.Equal(t, "claude-code", body.Agents[0]["id"])
	assert.Equal(t, "connected", body.Agents[0]["status"])
}

func TestKVSessionsActive(t *testing.T) {
	kv := newTestKV(t)
	raw, err := kv.Trigger(context.Background(), FnSessionsActive, nil)
	require.NoError(t, err)

	var sessions []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "active-1", sessions[0]["SessionID"])
}

func TestKVCostsSummary(t *testing.T) {
	kv := newTestKV(t)
	raw, err := kv.Trigger(context.Background(), FnCostsSummary, nil)
	require.NoError(t, err)

	var body struct {
		Summary struct {
			TotalCost float64 `json:"total_cost"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.InDelta(t, 0.5, body.Summary.TotalCost, 0.0001)
}

func TestKVConfigGetSet(t *testing.T) {
	kv := newTestKV(t)
	patch, _ := json.Marshal(map[string]interface{}{"theme": "dark"})
	_, err := kv.Trigger(context.Background(), FnConfigSet, patch)
	require.NoError(t, err)

	raw, err := kv.Trigger(context.Background(), FnConfigGet, nil)
	require.NoError(t, err)

	var body struct {
		Config map[string]interface{} `json:"config"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "dark", body.Config["theme"])
}

func TestKVUnknownFunction(t *testing.T) {
	kv := newTestKV(t)
	_, err := kv.Trigger(context.Background(), "rimuru.nonexistent", nil)
	assert.Error(t, err)
}

func TestServerRoutesAgentsList(t *testing.T) {
	kv := newTestKV(t)
	srv := NewServer(kv, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var agents []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
}

func TestServerRoutesHealth(t *testing.T) {
	kv := newTestKV(t)
	srv := NewServer(kv, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestServerRoutesCostsDailyRenamesField(t *testing.T) {
	kv := newTestKV(t)
	srv := NewServer(kv, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/costs/daily", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "total_cost")
}

func TestServerRoutesPluginsLifecycle(t *testing.T) {
	kv := newTestKV(t)
	srv := NewServer(kv, nil)
	router := srv.Router()

	installBody, _ := json.Marshal(map[string]string{"plugin_id": "demo"})
	req := httptest.NewRequest(http.MethodPost, "/api/plugins/install", bytes.NewReader(installBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/plugins", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var plugins []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plugins))
	require.Len(t, plugins, 1)
	assert.Equal(t, "demo", plugins[0]["id"])
	assert.Equal(t, true, plugins[0]["enabled"])

	req = httptest.NewRequest(http.MethodPost, "/api/plugins/demo/disable", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	enabled, err := kv.sandboxMgr.IsPluginEnabled("demo")
	require.NoError(t, err)
	assert.False(t, enabled)

	req = httptest.NewRequest(http.MethodDelete, "/api/plugins/demo", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = kv.sandboxMgr.IsPluginEnabled("demo")
	assert.Error(t, err)
}

func TestServerRoutesHooksListAndUpdate(t *testing.T) {
	kv := newTestKV(t)
	srv := NewServer(kv, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/hooks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	body, _ := json.Marshal(map[string]interface{}{"enabled": false})
	req = httptest.NewRequest(http.MethodPut, "/api/hooks/nonexistent", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServerMetricsTimelineEmptyByDefault(t *testing.T) {
	kv := newTestKV(t)
	srv := NewServer(kv, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics/timeline", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Timestamps []string `json:"timestamps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Timestamps)
}
