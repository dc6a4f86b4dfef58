package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/models"
)

func testConfig() Config {
	return Config{MaxRetryAttempts: 3, RetryDelay: time.Millisecond}
}

func TestRegisterAdapter(t *testing.T) {
	r := New(testConfig())
	stub := adapters.NewStub("claude-code", models.ClaudeCode)

	require.NoError(t, r.Register("claude-code", stub))
	assert.Equal(t, 1, r.Count())
	assert.Contains(t, r.ListNames(), "claude-code")
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New(testConfig())
	stub := adapters.NewStub("claude-code", models.ClaudeCode)
	require.NoError(t, r.Register("claude-code", stub))

	err := r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode))
	assert.Error(t, err)
}

func TestUnregisterAdapter(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))

	require.NoError(t, r.Unregister("claude-code"))
	assert.Equal(t, 0, r.Count())
	assert.Nil(t, r.Get("claude-code"))

	err := r.Unregister("claude-code")
	assert.Error(t, err)
}

func TestGetByType(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))
	require.NoError(t, r.Register("codex", adapters.NewStub("codex", models.Codex)))

	handles := r.GetByKind(models.ClaudeCode)
	require.Len(t, handles, 1)
	assert.Equal(t, "claude-code", handles[0].Adapter().Name())
}

func TestGetReturnsSameHandleAcrossCalls(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))

	first := r.Get("claude-code")
	second := r.Get("claude-code")
	assert.Same(t, first, second)

	// mutate state through the first handle and confirm the second observes it
	ctx := context.Background()
	first.mu.Lock()
	_ = first.adapter.Connect(ctx)
	first.mu.Unlock()

	assert.Equal(t, models.StatusConnected, second.Adapter().Status())
}

func TestConnectDisconnectAll(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))
	require.NoError(t, r.Register("codex", adapters.NewStub("codex", models.Codex)))

	ctx := context.Background()
	results := r.ConnectAll(ctx)
	assert.Len(t, results, 2)
	for _, res := range results {
		assert.NoError(t, res.Err)
	}
	for _, name := range r.ListNames() {
		assert.Equal(t, models.StatusConnected, r.Get(name).Adapter().Status())
	}

	disconnected := r.DisconnectAll(ctx)
	assert.Len(t, disconnected, 2)
	for _, name := range r.ListNames() {
		assert.Equal(t, models.StatusDisconnected, r.Get(name).Adapter().Status())
	}
}

func TestConnectWithRetryZeroAttemptsFailsImmediately(t *testing.T) {
	cfg := Config{MaxRetryAttempts: 0, RetryDelay: time.Millisecond}
	r := New(cfg)
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode).WithFailConnect(true)))

	err := r.ConnectWithRetry(context.Background(), "claude-code")
	assert.Error(t, err)
}

func TestConnectWithRetryExhaustsAttempts(t *testing.T) {
	cfg := Config{MaxRetryAttempts: 3, RetryDelay: time.Millisecond}
	r := New(cfg)
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode).WithFailConnect(true)))

	start := time.Now()
	err := r.ConnectWithRetry(context.Background(), "claude-code")
	elapsed := time.Since(start)

	assert.Error(t, err)
	// 3 attempts => 2 inter-attempt delays
	assert.GreaterOrEqual(t, elapsed, 2*time.Millisecond)
}

func TestConnectWithRetrySucceedsAfterInitialFailureIsNotSimulated(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))

	err := r.ConnectWithRetry(context.Background(), "claude-code")
	assert.NoError(t, err)
}

func TestAggregatedUsage(t *testing.T) {
	r := New(testConfig())
	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedUsage(models.UsageStats{InputTokens: 100, OutputTokens: 50, Requests: 2}, 1.5)
	s2 := adapters.NewStub("codex", models.Codex)
	s2.SeedUsage(models.UsageStats{InputTokens: 20, OutputTokens: 10, Requests: 1}, 0.5)

	require.NoError(t, r.Register("claude-code", s1))
	require.NoError(t, r.Register("codex", s2))

	usage := r.GetAggregatedUsage(context.Background(), nil)
	assert.Equal(t, int64(120), usage.InputTokens)
	assert.Equal(t, int64(60), usage.OutputTokens)
	assert.Equal(t, int64(3), usage.Requests)
}

func TestAggregatedCost(t *testing.T) {
	r := New(testConfig())
	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedUsage(models.UsageStats{}, 1.5)
	s2 := adapters.NewStub("codex", models.Codex)
	s2.SeedUsage(models.UsageStats{}, 0.25)

	require.NoError(t, r.Register("claude-code", s1))
	require.NoError(t, r.Register("codex", s2))

	cost := r.GetAggregatedCost(context.Background(), nil)
	assert.InDelta(t, 1.75, cost, 0.0001)
}

func TestHealthCheckAll(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))
	require.NoError(t, r.Register("codex", adapters.NewStub("codex", models.Codex)))

	ctx := context.Background()
	r.ConnectAll(ctx)

	health := r.HealthCheckAll(ctx)
	assert.True(t, health["claude-code"])
	assert.True(t, health["codex"])
}

func TestHealthCheckAllUnconnectedIsUnhealthy(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.Register("claude-code", adapters.NewStub("claude-code", models.ClaudeCode)))

	health := r.HealthCheckAll(context.Background())
	assert.False(t, health["claude-code"])
}

func TestGetAllSessionHistoryMergesSortsThenTruncates(t *testing.T) {
	r := New(testConfig())
	now := time.Now()

	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedSessions(nil, []models.SessionHistory{
		{SessionID: "a", StartedAt: now.Add(-3 * time.Hour)},
		{SessionID: "b", StartedAt: now.Add(-1 * time.Hour)},
	})
	s2 := adapters.NewStub("codex", models.Codex)
	s2.SeedSessions(nil, []models.SessionHistory{
		{SessionID: "c", StartedAt: now.Add(-2 * time.Hour)},
		{SessionID: "d", StartedAt: now},
	})

	require.NoError(t, r.Register("claude-code", s1))
	require.NoError(t, r.Register("codex", s2))

	limit := 2
	history := r.GetAllSessionHistory(context.Background(), &limit, nil)
	require.Len(t, history, 2)
	// global most-recent-first across both adapters, not per-adapter truncation
	assert.Equal(t, "d", history[0].SessionID)
	assert.Equal(t, "b", history[1].SessionID)
}

func TestFindSession(t *testing.T) {
	r := New(testConfig())
	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedSessions(nil, []models.SessionHistory{{SessionID: "target"}})
	require.NoError(t, r.Register("claude-code", s1))
	require.NoError(t, r.Register("codex", adapters.NewStub("codex", models.Codex)))

	found := r.FindSession(context.Background(), "target")
	require.NotNil(t, found)
	assert.Equal(t, "target", found.SessionID)

	assert.Nil(t, r.FindSession(context.Background(), "missing"))
}
