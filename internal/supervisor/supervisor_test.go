package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/pkg/logger"
)

func testSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AutoDiscover = false
	return New(cfg, logger.NewDefaultLogger("supervisor", "debug"))
}

func TestInitializeConnectsRegisteredAdapters(t *testing.T) {
	s := testSupervisor(t)
	stub := adapters.NewStub("claude-code", models.ClaudeCode)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))

	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	status, err := s.GetAdapterStatus("claude-code")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnected, status)
}

func TestInitializeAutoDiscoversInstalledAdapters(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg, logger.NewDefaultLogger("supervisor", "debug"))

	seen := map[string]bool{}
	s.WithFactory(func(entry adapters.CatalogEntry) adapters.FullAdapter {
		seen[entry.Name] = true
		return adapters.NewStub(entry.Name, entry.Kind).WithInstalled(true)
	})

	discovered, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discovered, "no catalog entries should appear installed on a bare test host")
	assert.Empty(t, seen)
}

func TestRunHealthTickRecordsConsecutiveFailures(t *testing.T) {
	s := testSupervisor(t)
	stub := adapters.NewStub("claude-code", models.ClaudeCode).WithFailConnect(true)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))

	s.runHealthTick(context.Background())
	h, ok := s.GetAdapterHealth("claude-code")
	require.True(t, ok)
	assert.False(t, h.Healthy)
	assert.Equal(t, 1, h.ConsecutiveFailures)

	s.runHealthTick(context.Background())
	h, ok = s.GetAdapterHealth("claude-code")
	require.True(t, ok)
	assert.Equal(t, 2, h.ConsecutiveFailures)
}

func TestRunHealthTickResetsFailuresOnRecovery(t *testing.T) {
	s := testSupervisor(t)
	stub := adapters.NewStub("claude-code", models.ClaudeCode).WithFailConnect(true)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))

	s.runHealthTick(context.Background())
	h, _ := s.GetAdapterHealth("claude-code")
	assert.Equal(t, 1, h.ConsecutiveFailures)

	stub.WithFailConnect(false)
	require.NoError(t, stub.Connect(context.Background()))

	s.runHealthTick(context.Background())
	h, _ = s.GetAdapterHealth("claude-code")
	assert.True(t, h.Healthy)
	assert.Equal(t, 0, h.ConsecutiveFailures)
}

func TestRunHealthTickReconnectsWithinBudget(t *testing.T) {
	s := testSupervisor(t)
	s.cfg.MaxReconnectAttempts = 2
	stub := adapters.NewStub("claude-code", models.ClaudeCode).WithFailConnect(true)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))

	// Force the adapter into a disconnected/error state before the tick so
	// the reconnect attempt is observable via status flipping back to error.
	_ = stub.Connect(context.Background())

	s.runHealthTick(context.Background())
	h, _ := s.GetAdapterHealth("claude-code")
	assert.Equal(t, 1, h.ConsecutiveFailures)
	assert.Equal(t, models.StatusError, h.Status)

	s.runHealthTick(context.Background())
	h, _ = s.GetAdapterHealth("claude-code")
	assert.Equal(t, 2, h.ConsecutiveFailures)

	// a third consecutive failure exceeds MaxReconnectAttempts=2, so no
	// further reconnect is attempted past this tick.
	s.runHealthTick(context.Background())
	h, _ = s.GetAdapterHealth("claude-code")
	assert.Equal(t, 3, h.ConsecutiveFailures)
}

func TestStartStopHealthMonitoring(t *testing.T) {
	s := testSupervisor(t)
	s.cfg.HealthCheckInterval = 5 * time.Millisecond
	stub := adapters.NewStub("claude-code", models.ClaudeCode)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))
	require.NoError(t, stub.Connect(context.Background()))

	s.StartHealthMonitoring()
	// calling it again while running must be a no-op, not a second goroutine.
	s.StartHealthMonitoring()

	time.Sleep(30 * time.Millisecond)
	s.StopHealthMonitoring()

	h, ok := s.GetAdapterHealth("claude-code")
	require.True(t, ok)
	assert.True(t, h.Healthy)
}

func TestUnregisterAdapterDropsHealth(t *testing.T) {
	s := testSupervisor(t)
	stub := adapters.NewStub("claude-code", models.ClaudeCode)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))
	s.runHealthTick(context.Background())

	_, ok := s.GetAdapterHealth("claude-code")
	require.True(t, ok)

	require.NoError(t, s.UnregisterAdapter(context.Background(), "claude-code"))
	_, ok = s.GetAdapterHealth("claude-code")
	assert.False(t, ok)

	assert.Equal(t, 0, s.AdapterCount())
}

func TestShutdownDisconnectsAll(t *testing.T) {
	s := testSupervisor(t)
	stub := adapters.NewStub("claude-code", models.ClaudeCode)
	require.NoError(t, s.RegisterAdapter("claude-code", stub))
	require.NoError(t, stub.Connect(context.Background()))

	s.Shutdown(context.Background())

	status, err := s.GetAdapterStatus("claude-code")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, status)
}
