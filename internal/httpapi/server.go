package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// metricSnapshot is one sample in the timeline ring buffer.
type metricSnapshot struct {
	Timestamp   string  `json:"timestamp"`
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	Requests    float64 `json:"requests"`
	Connections float64 `json:"connections"`
}

const (
	metricsBufferCap      = 120
	metricsSampleInterval = 15 * time.Second
)

// Server bundles the router, the KV bridge, and the background metrics
// sampler into one long-lived object, mirroring the original AppStateInner.
type Server struct {
	kv       *KV
	log      *slog.Logger
	mu       sync.Mutex
	buffer   []metricSnapshot
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewServer(kv *KV, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{kv: kv, log: log, stopCh: make(chan struct{})}
}

// Router builds the full `/api/*` mux, wrapped in logging/CORS/recovery
// middleware, matching the original route table one-for-one.
func (s *Server) Router() *mux.Router {
	h := NewHandlers(s.kv, s.log)
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.statsHandler).Methods(http.MethodGet)
	api.HandleFunc("/activity", h.activityHandler).Methods(http.MethodGet)
	api.HandleFunc("/activity/recent", h.activityHandler).Methods(http.MethodGet)

	api.HandleFunc("/agents", h.AgentsList).Methods(http.MethodGet)
	api.HandleFunc("/agents", h.AgentsRegister).Methods(http.MethodPost)
	api.HandleFunc("/agents/detect", h.AgentsDetect).Methods(http.MethodGet)
	api.HandleFunc("/agents/connect", h.AgentsConnect).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}", h.AgentsGet).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/disconnect", h.AgentsDisconnect).Methods(http.MethodPost)

	api.HandleFunc("/sessions", h.SessionsList).Methods(http.MethodGet)
	api.HandleFunc("/sessions/active", h.SessionsActive).Methods(http.MethodGet)
	api.HandleFunc("/sessions/history", h.SessionsHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.SessionsGet).Methods(http.MethodGet)

	api.HandleFunc("/costs/summary", h.CostsSummary).Methods(http.MethodGet)
	api.HandleFunc("/costs/daily", h.CostsDaily).Methods(http.MethodGet)
	api.HandleFunc("/costs/agent/{id}", h.CostsByAgent).Methods(http.MethodGet)
	api.HandleFunc("/costs", h.CostsSummary).Methods(http.MethodGet)
	api.HandleFunc("/costs", h.CostsRecord).Methods(http.MethodPost)

	api.HandleFunc("/models", h.ModelsList).Methods(http.MethodGet)
	api.HandleFunc("/models/sync", h.ModelsSync).Methods(http.MethodPost)
	api.HandleFunc("/models/{id}", h.ModelsGet).Methods(http.MethodGet)

	api.HandleFunc("/metrics", h.MetricsCurrent).Methods(http.MethodGet)
	api.HandleFunc("/metrics/history", h.MetricsHistory).Methods(http.MethodGet)
	api.HandleFunc("/metrics/timeline", s.metricsTimelineHandler).Methods(http.MethodGet)

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api.HandleFunc("/hooks", h.HooksList).Methods(http.MethodGet)
	api.HandleFunc("/hooks", h.HooksRegister).Methods(http.MethodPost)
	api.HandleFunc("/hooks/register", h.HooksRegister).Methods(http.MethodPost)
	api.HandleFunc("/hooks/dispatch", h.HooksDispatch).Methods(http.MethodPost)
	api.HandleFunc("/hooks/executions", h.HooksExecutions).Methods(http.MethodGet)
	api.HandleFunc("/hooks/{id}", h.HooksUpdate).Methods(http.MethodPut)

	api.HandleFunc("/plugins", h.PluginsList).Methods(http.MethodGet)
	api.HandleFunc("/plugins/install", h.PluginsInstall).Methods(http.MethodPost)
	api.HandleFunc("/plugins/{id}", h.PluginsUninstall).Methods(http.MethodDelete)
	api.HandleFunc("/plugins/{id}/{action}", h.PluginsToggle).Methods(http.MethodPost)
	api.HandleFunc("/mcp", h.MCPList).Methods(http.MethodGet)

	api.HandleFunc("/config", h.ConfigGet).Methods(http.MethodGet)
	api.HandleFunc("/config", h.ConfigSet).Methods(http.MethodPost, http.MethodPut)

	r.Use(RecoveryMiddleware(s.log))
	r.Use(LoggingMiddleware(s.log))
	r.Use(CORSMiddleware())

	return r
}

// statsHandler aggregates agents/sessions/costs into the dashboard summary
// card, same composition as the original api_stats.
func (h *Handlers) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentsRaw, err := h.kv.Trigger(ctx, FnAgentsList, nil)
	totalAgents, activeAgents := 0, 0
	if err == nil {
		var body struct {
			Agents []struct {
				Status string `json:"status"`
			} `json:"agents"`
		}
		if json.Unmarshal(agentsRaw, &body) == nil {
			totalAgents = len(body.Agents)
			for _, a := range body.Agents {
				if a.Status == "connected" {
					activeAgents++
				}
			}
		}
	}

	sessionsRaw, err := h.kv.Trigger(ctx, FnSessionsList, nil)
	totalSessions := 0
	if err == nil {
		var body struct {
			Total int `json:"total"`
		}
		if json.Unmarshal(sessionsRaw, &body) == nil {
			totalSessions = body.Total
		}
	}

	activeSessions := 0
	if activeRaw, err := h.kv.Trigger(ctx, FnSessionsActive, nil); err == nil {
		var active []struct {
			SessionID string `json:"SessionID"`
		}
		if json.Unmarshal(activeRaw, &active) == nil {
			activeSessions = len(active)
		}
	}

	costsRaw, err := h.kv.Trigger(ctx, FnCostsSummary, nil)
	var totalCost, totalCostToday float64
	var modelsUsed int
	if err == nil {
		var body struct {
			Summary struct {
				TotalCost      float64       `json:"total_cost"`
				TotalCostToday float64       `json:"total_cost_today"`
				ByModel        []interface{} `json:"by_model"`
			} `json:"summary"`
		}
		if json.Unmarshal(costsRaw, &body) == nil {
			totalCost = body.Summary.TotalCost
			totalCostToday = body.Summary.TotalCostToday
			modelsUsed = len(body.Summary.ByModel)
		}
	}

	h.writeJSON(w, http.StatusOK, mustMarshal(map[string]interface{}{
		"total_cost":        totalCost,
		"total_cost_today":  totalCostToday,
		"active_agents":     activeAgents,
		"total_agents":      totalAgents,
		"active_sessions":   activeSessions,
		"total_sessions":    totalSessions,
		"total_tokens":      0,
		"models_used":       modelsUsed,
		"plugins_installed": 0,
		"hooks_active":      0,
	}))
}

// activityHandler derives a recent-events feed from session history, most
// recent first, truncated to 20 — there is no dedicated activity log, so it
// is synthesized the same way the original api_activity does.
func (h *Handlers) activityHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := h.kv.Trigger(r.Context(), FnSessionsHistory, nil)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	var sessions []struct {
		SessionID string   `json:"SessionID"`
		Kind      string   `json:"Kind"`
		StartedAt string   `json:"StartedAt"`
		EndedAt   *string  `json:"EndedAt"`
		ModelName string   `json:"ModelName"`
		CostUSD   *float64 `json:"CostUSD"`
	}
	_ = json.Unmarshal(raw, &sessions)

	events := make([]map[string]interface{}, 0, len(sessions)*2)
	limit := 20
	if len(sessions) < limit {
		limit = len(sessions)
	}
	for _, s := range sessions[:limit] {
		cost := 0.0
		if s.CostUSD != nil {
			cost = *s.CostUSD
		}
		events = append(events, map[string]interface{}{
			"id":        "sess-start-" + s.SessionID,
			"type":      "session_started",
			"message":   "Session started on " + s.ModelName,
			"agent_id":  s.Kind,
			"timestamp": s.StartedAt,
			"metadata":  map[string]interface{}{"model": s.ModelName, "cost": cost},
		})
		if s.EndedAt != nil {
			events = append(events, map[string]interface{}{
				"id":        "sess-end-" + s.SessionID,
				"type":      "session_ended",
				"message":   "Session completed",
				"agent_id":  s.Kind,
				"timestamp": *s.EndedAt,
				"metadata":  map[string]interface{}{"model": s.ModelName, "cost": cost},
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, events[i]["timestamp"].(string))
		tj, _ := time.Parse(time.RFC3339Nano, events[j]["timestamp"].(string))
		return ti.After(tj)
	})
	if len(events) > 20 {
		events = events[:20]
	}

	h.writeJSON(w, http.StatusOK, mustMarshal(events))
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

func (s *Server) metricsTimelineHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	buf := make([]metricSnapshot, len(s.buffer))
	copy(buf, s.buffer)
	s.mu.Unlock()

	timestamps := make([]string, len(buf))
	cpu := make([]float64, len(buf))
	memory := make([]float64, len(buf))
	requests := make([]float64, len(buf))
	connections := make([]float64, len(buf))
	for i, snap := range buf {
		timestamps[i] = snap.Timestamp
		cpu[i] = snap.CPU
		memory[i] = snap.Memory
		requests[i] = snap.Requests
		connections[i] = snap.Connections
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"timestamps":  timestamps,
		"cpu":         cpu,
		"memory":      memory,
		"requests":    requests,
		"connections": connections,
	})
}

// StartMetricsSampler launches the background goroutine that samples current
// metrics every 15 seconds into a 120-sample ring buffer, replacing the
// original's tokio::spawn loop.
func (s *Server) StartMetricsSampler(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(metricsSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sampleOnce(ctx)
			}
		}
	}()
}

func (s *Server) sampleOnce(ctx context.Context) {
	raw, err := s.kv.Trigger(ctx, FnMetricsCurrent, nil)
	if err != nil {
		s.log.Warn("metrics sample failed", "error", err)
		return
	}
	var body struct {
		Metrics struct {
			ActiveAgents      float64 `json:"active_agents"`
			RequestsPerMinute float64 `json:"requests_per_minute"`
			CPUUsagePercent   float64 `json:"cpu_usage_percent"`
			MemoryUsedMB      float64 `json:"memory_used_mb"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	m := body.Metrics

	snap := metricSnapshot{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		CPU:         m.CPUUsagePercent,
		Memory:      m.MemoryUsedMB,
		Requests:    m.RequestsPerMinute / 60.0,
		Connections: m.ActiveAgents,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, snap)
	if len(s.buffer) > metricsBufferCap {
		s.buffer = s.buffer[len(s.buffer)-metricsBufferCap:]
	}
}

// StopMetricsSampler stops the background sampler; safe to call multiple
// times.
func (s *Server) StopMetricsSampler() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ListenAndServe starts the metrics sampler and blocks serving addr.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.StartMetricsSampler(ctx)
	defer s.StopMetricsSampler()

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info("HTTP API server listening", "addr", addr)
	return srv.ListenAndServe()
}
