package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/registry"
)

type noopLogger struct{}

func (noopLogger) Warn(msg string, fields ...interface{}) {}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(registry.Config{MaxRetryAttempts: 1, RetryDelay: time.Millisecond})
}

func TestSessionAggregatorActiveSortedDescending(t *testing.T) {
	reg := newTestRegistry(t)
	now := time.Now()

	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedSessions([]models.ActiveSession{{SessionID: "a", StartedAt: now.Add(-2 * time.Hour)}}, nil)
	s2 := adapters.NewStub("codex", models.Codex)
	s2.SeedSessions([]models.ActiveSession{{SessionID: "b", StartedAt: now}}, nil)

	require.NoError(t, reg.Register("claude-code", s1))
	require.NoError(t, reg.Register("codex", s2))

	agg := NewSessionAggregator(reg)
	sessions := agg.GetAllActiveSessions(context.Background())
	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].SessionID)
	assert.Equal(t, "a", sessions[1].SessionID)
}

func TestSessionAggregatorHistoryMergeSortTruncate(t *testing.T) {
	reg := newTestRegistry(t)
	now := time.Now()

	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedSessions(nil, []models.SessionHistory{
		{SessionID: "a", StartedAt: now.Add(-3 * time.Hour)},
		{SessionID: "b", StartedAt: now.Add(-1 * time.Hour)},
	})
	s2 := adapters.NewStub("codex", models.Codex)
	s2.SeedSessions(nil, []models.SessionHistory{
		{SessionID: "c", StartedAt: now},
	})
	require.NoError(t, reg.Register("claude-code", s1))
	require.NoError(t, reg.Register("codex", s2))

	agg := NewSessionAggregator(reg)
	limit := 2
	history := agg.GetSessionHistorySince(context.Background(), &limit, nil)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].SessionID)
	assert.Equal(t, "b", history[1].SessionID)
}

func TestSessionFilterMatches(t *testing.T) {
	session := UnifiedSession{
		AdapterName: "claude-code",
		Kind:        models.ClaudeCode,
		ModelName:   "claude-3-opus",
		IsActive:    true,
		TotalTokens: 500,
		ProjectPath: "/home/user/project-alpha",
	}

	f := NewSessionFilter().WithAdapters([]string{"claude-code"}).ActiveOnlyFilter().WithMinTokens(100)
	assert.True(t, f.Matches(session))

	f2 := NewSessionFilter().WithAdapters([]string{"codex"})
	assert.False(t, f2.Matches(session))

	f3 := NewSessionFilter().CompletedOnlyFilter()
	assert.False(t, f3.Matches(session))

	f4 := NewSessionFilter().WithProjectPath("alpha")
	assert.True(t, f4.Matches(session))
	f5 := NewSessionFilter().WithProjectPath("beta")
	assert.False(t, f5.Matches(session))
}

func TestSessionStatsAverages(t *testing.T) {
	var stats SessionStats
	d1 := int64(100)
	c1 := 1.0
	stats.AddSession(UnifiedSession{IsActive: false, DurationSeconds: &d1, TotalTokens: 1000, CostUSD: &c1})
	d2 := int64(200)
	c2 := 2.0
	stats.AddSession(UnifiedSession{IsActive: true, DurationSeconds: &d2, TotalTokens: 2000, CostUSD: &c2})

	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.InDelta(t, 150.0, stats.AverageDurationSeconds, 0.001)
	assert.InDelta(t, 1500.0, stats.AverageTokensPerSession, 0.001)
	assert.InDelta(t, 1.5, stats.AverageCostPerSession, 0.001)
}

func TestCostAggregatorAggregatedUsage(t *testing.T) {
	reg := newTestRegistry(t)
	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedUsage(models.UsageStats{InputTokens: 100, OutputTokens: 50, Requests: 2}, 1.0)
	s2 := adapters.NewStub("codex", models.Codex)
	s2.SeedUsage(models.UsageStats{InputTokens: 40, OutputTokens: 10, Requests: 1}, 0.4)
	require.NoError(t, reg.Register("claude-code", s1))
	require.NoError(t, reg.Register("codex", s2))

	agg := NewCostAggregator(reg, noopLogger{})
	usage := agg.AggregatedUsage(context.Background(), nil)
	assert.Equal(t, int64(140), usage.InputTokens)
	assert.Equal(t, int64(60), usage.OutputTokens)

	cost := agg.AggregatedCost(context.Background(), nil)
	assert.InDelta(t, 1.4, cost, 0.0001)
}

func TestCostAggregatorReportByKind(t *testing.T) {
	reg := newTestRegistry(t)
	now := time.Now()
	costVal := 2.5
	s1 := adapters.NewStub("claude-code", models.ClaudeCode)
	s1.SeedUsage(models.UsageStats{InputTokens: 10, OutputTokens: 5}, 2.5)
	s1.SeedSessions(nil, []models.SessionHistory{
		{SessionID: "a", Kind: models.ClaudeCode, StartedAt: now, CostUSD: &costVal},
	})
	require.NoError(t, reg.Register("claude-code", s1))

	agg := NewCostAggregator(reg, noopLogger{})
	report := agg.Report(context.Background(), models.NewTimeRange(models.AllTime))
	require.Contains(t, report.ByKind, models.ClaudeCode)
	assert.InDelta(t, 2.5, report.ByKind[models.ClaudeCode].TotalCostUSD, 0.0001)
	require.Len(t, report.Series, 1)
}
