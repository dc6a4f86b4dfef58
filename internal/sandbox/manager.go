package sandbox

import (
	"sync"

	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// Manager keeps a name->Sandbox map and a default config applied when a
// caller doesn't supply one explicitly.
type Manager struct {
	mu            sync.RWMutex
	sandboxes     map[string]*Sandbox
	defaultConfig SandboxConfig
}

// NewManager constructs a Manager with an empty default config (empty plugin
// data dir), matching the original new().
func NewManager() *Manager {
	return &Manager{
		sandboxes:     map[string]*Sandbox{},
		defaultConfig: NewSandboxConfig(""),
	}
}

func (m *Manager) WithDefaultConfig(cfg SandboxConfig) *Manager {
	m.defaultConfig = cfg
	return m
}

// CreateSandbox registers a new sandbox for pluginID, failing if one already
// exists. cfg may be nil to use the manager's default config.
func (m *Manager) CreateSandbox(pluginID string, cfg *SandboxConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sandboxes[pluginID]; exists {
		return rimuruerrors.AlreadyExists(pluginID)
	}
	effective := m.defaultConfig
	if cfg != nil {
		effective = *cfg
	}
	m.sandboxes[pluginID] = NewSandbox(pluginID, effective)
	return nil
}

// RemoveSandbox removes pluginID's sandbox, failing if absent.
func (m *Manager) RemoveSandbox(pluginID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sandboxes[pluginID]; !exists {
		return rimuruerrors.NotFound(pluginID)
	}
	delete(m.sandboxes, pluginID)
	return nil
}

func (m *Manager) get(pluginID string) (*Sandbox, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, exists := m.sandboxes[pluginID]
	if !exists {
		return nil, rimuruerrors.NotFound(pluginID)
	}
	return sb, nil
}

func (m *Manager) CheckPermission(pluginID string, p Permission) error {
	sb, err := m.get(pluginID)
	if err != nil {
		return err
	}
	return sb.CheckPermission(p)
}

func (m *Manager) CheckPathAccess(pluginID, path string, write bool) error {
	sb, err := m.get(pluginID)
	if err != nil {
		return err
	}
	return sb.CheckPathAccess(path, write)
}

func (m *Manager) CheckNetworkAccess(pluginID, host string, outbound bool) error {
	sb, err := m.get(pluginID)
	if err != nil {
		return err
	}
	return sb.CheckNetworkAccess(host, outbound)
}

func (m *Manager) GetViolations(pluginID string) ([]AccessViolation, error) {
	sb, err := m.get(pluginID)
	if err != nil {
		return nil, err
	}
	return sb.GetViolations(), nil
}

// SetPluginEnabled toggles pluginID's sandbox on or off; disabled sandboxes
// deny every permission check without losing their config or violation log.
func (m *Manager) SetPluginEnabled(pluginID string, enabled bool) error {
	sb, err := m.get(pluginID)
	if err != nil {
		return err
	}
	sb.SetEnabled(enabled)
	return nil
}

// IsPluginEnabled reports whether pluginID's sandbox currently allows the
// plugin to act.
func (m *Manager) IsPluginEnabled(pluginID string) (bool, error) {
	sb, err := m.get(pluginID)
	if err != nil {
		return false, err
	}
	return sb.Enabled(), nil
}

// ListPlugins returns the IDs of every plugin with a live sandbox.
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		out = append(out, id)
	}
	return out
}

// AllViolations returns (pluginID, violations) for every plugin with a
// non-empty violation log.
func (m *Manager) AllViolations() map[string][]AccessViolation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[string][]AccessViolation{}
	for id, sb := range m.sandboxes {
		if v := sb.GetViolations(); len(v) > 0 {
			out[id] = v
		}
	}
	return out
}
