package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultValidates(t *testing.T) {
	cfg := NewDefault()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := NewDefault()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveHealthInterval(t *testing.T) {
	cfg := NewDefault()
	cfg.Supervisor.HealthCheckInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, NewDefault(), cfg)
}

func TestSaveAndLoadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentctl.json")
	cfg := NewDefault()
	cfg.Server.ListenAddr = "0.0.0.0:9999"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", loaded.Server.ListenAddr)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentctl.yaml")
	yamlBody := "server:\n  listen_addr: 127.0.0.1:8080\n  read_timeout: 5s\n  write_timeout: 5s\n  shutdown_timeout: 5s\nsupervisor:\n  auto_discover: false\n  health_check_interval: 30s\n  reconnect_on_failure: true\n  max_reconnect_attempts: 1\nsandbox:\n  max_memory_mb: 64\n  max_cpu_time_ms: 5000\n  max_file_size_mb: 10\n  max_network_connections: 2\nlogging:\n  level: debug\n  format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.ListenAddr)
	assert.False(t, cfg.Supervisor.AutoDiscover)
	assert.Equal(t, uint64(64), cfg.Sandbox.MaxMemoryMB)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestStoreGetSetRoundTrip(t *testing.T) {
	store, err := NewStore(NewDefault())
	require.NoError(t, err)

	snapshot, err := store.Get()
	require.NoError(t, err)
	serverBlock, ok := snapshot["server"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, DefaultListenAddr, serverBlock["listen_addr"])

	require.NoError(t, store.Set(map[string]interface{}{"theme": "dark"}))
	snapshot, err = store.Get()
	require.NoError(t, err)
	assert.Equal(t, "dark", snapshot["theme"])
}
