package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionImplies(t *testing.T) {
	assert.True(t, All.Implies(FilesystemRead))
	assert.True(t, All.Implies(All))
	assert.True(t, Filesystem.Implies(FilesystemRead))
	assert.True(t, Filesystem.Implies(FilesystemWrite))
	assert.False(t, Filesystem.Implies(NetworkInbound))
	assert.True(t, Network.Implies(NetworkOutbound))
	assert.True(t, Network.Implies(NetworkInbound))
	assert.True(t, Database.Implies(DatabaseRead))
	assert.True(t, Database.Implies(DatabaseWrite))
	assert.False(t, FilesystemRead.Implies(FilesystemWrite))
	assert.True(t, SystemMetrics.Implies(SystemMetrics))
	assert.False(t, SystemMetrics.Implies(ProcessSpawn))
}

func TestSandboxConfigBuilder(t *testing.T) {
	cfg := NewSandboxConfig("/data/plugin").
		WithPermission(FilesystemRead).
		WithAllowedHost("example.com").
		WithDeniedPath("/data/plugin/secret")

	assert.Contains(t, cfg.AllowedPaths, "/data/plugin")
	assert.Contains(t, cfg.AllowedHosts, "example.com")
	assert.Contains(t, cfg.DeniedPaths, "/data/plugin/secret")
	_, granted := cfg.GrantedPermissions[FilesystemRead]
	assert.True(t, granted)
}

func TestSandboxPermissionCheck(t *testing.T) {
	cfg := NewSandboxConfig("").WithPermission(FilesystemRead)
	sb := NewSandbox("p1", cfg)

	assert.True(t, sb.HasPermission(FilesystemRead))
	assert.False(t, sb.HasPermission(FilesystemWrite))
	require.NoError(t, sb.CheckPermission(FilesystemRead))
	require.Error(t, sb.CheckPermission(FilesystemWrite))
}

func TestSandboxDisabledDeniesEveryPermission(t *testing.T) {
	cfg := NewSandboxConfig("").WithPermission(All)
	sb := NewSandbox("p1", cfg)
	require.True(t, sb.Enabled())
	require.NoError(t, sb.CheckPermission(FilesystemRead))

	sb.SetEnabled(false)
	assert.False(t, sb.Enabled())
	assert.False(t, sb.HasPermission(FilesystemRead))
	require.Error(t, sb.CheckPermission(FilesystemRead))

	sb.SetEnabled(true)
	require.NoError(t, sb.CheckPermission(FilesystemRead))
}

func TestSandboxImpliedPermission(t *testing.T) {
	cfg := NewSandboxConfig("").WithPermission(All)
	sb := NewSandbox("p1", cfg)
	assert.True(t, sb.HasPermission(FilesystemWrite))
	assert.True(t, sb.HasPermission(NetworkInbound))
}

func TestSandboxPathAccess(t *testing.T) {
	dir := t.TempDir()
	cfg := NewSandboxConfig(dir).
		WithPermission(FilesystemRead).
		WithPermission(FilesystemWrite).
		WithDeniedPath(dir + "/secret")
	sb := NewSandbox("p1", cfg)

	assert.NoError(t, sb.CheckPathAccess(dir+"/a.txt", false))
	assert.Error(t, sb.CheckPathAccess(dir+"/secret/a", false))
	assert.NoError(t, sb.CheckPathAccess(dir+"/a.txt", true))
}

func TestSandboxPathAccessScenarioS5(t *testing.T) {
	cfg := NewSandboxConfig("").
		WithPermission(FilesystemRead).
		WithAllowedPath("/data").
		WithDeniedPath("/data/secret")
	sb := NewSandbox("p1", cfg)

	assert.NoError(t, sb.CheckPathAccess("/data/a.txt", false))
	assert.Error(t, sb.CheckPathAccess("/data/secret/a", false))
	assert.Error(t, sb.CheckPathAccess("/data/a.txt", true))
}

func TestSandboxNetworkAccess(t *testing.T) {
	cfg := NewSandboxConfig("").
		WithPermission(NetworkOutbound).
		WithAllowedHost("api.example.com").
		WithDeniedHost("evil.example.com")
	sb := NewSandbox("p1", cfg)

	assert.NoError(t, sb.CheckNetworkAccess("api.example.com", true))
	assert.Error(t, sb.CheckNetworkAccess("evil.example.com", true))
	assert.Error(t, sb.CheckNetworkAccess("other.example.com", true))
}

func TestResourceLimits(t *testing.T) {
	cfg := NewSandboxConfig("").WithResourceLimits(RestrictedResourceLimits())
	sb := NewSandbox("p1", cfg)

	for i := 0; i < 10; i++ {
		require.NoError(t, sb.IncrementOpenFiles())
	}
	require.Error(t, sb.IncrementOpenFiles())

	sb.DecrementOpenFiles()
	require.NoError(t, sb.IncrementOpenFiles())
}

func TestResourceCountersClampAtZero(t *testing.T) {
	sb := NewSandbox("p1", NewSandboxConfig(""))
	sb.DecrementOpenFiles()
	sb.DecrementConnections()
	usage := sb.GetResourceUsage()
	assert.Equal(t, uint32(0), usage.OpenFiles)
	assert.Equal(t, uint32(0), usage.ActiveConnections)
}

func TestSandboxManager(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.CreateSandbox("p1", nil))
	require.Error(t, mgr.CreateSandbox("p1", nil))
	require.NoError(t, mgr.RemoveSandbox("p1"))
	require.Error(t, mgr.RemoveSandbox("p1"))
}

func TestSandboxManagerListAndToggle(t *testing.T) {
	mgr := NewManager()
	assert.Empty(t, mgr.ListPlugins())

	require.NoError(t, mgr.CreateSandbox("p1", nil))
	require.NoError(t, mgr.CreateSandbox("p2", nil))
	assert.ElementsMatch(t, []string{"p1", "p2"}, mgr.ListPlugins())

	enabled, err := mgr.IsPluginEnabled("p1")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, mgr.SetPluginEnabled("p1", false))
	enabled, err = mgr.IsPluginEnabled("p1")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.Error(t, mgr.SetPluginEnabled("nonexistent", true))
	_, err = mgr.IsPluginEnabled("nonexistent")
	require.Error(t, err)
}

func TestViolationRecording(t *testing.T) {
	sb := NewSandbox("p1", NewSandboxConfig(""))
	sb.RecordViolation(AccessViolation{Permission: FilesystemWrite, RequestedResource: "/etc/passwd", Message: "denied"})
	violations := sb.GetViolations()
	require.Len(t, violations, 1)
	assert.Equal(t, FilesystemWrite, violations[0].Permission)
	sb.ClearViolations()
	assert.Empty(t, sb.GetViolations())
}
