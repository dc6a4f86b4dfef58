package sandbox

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// AccessViolation is an append-only record of a denied access attempt.
type AccessViolation struct {
	Permission       Permission
	RequestedResource string
	Message          string
	Timestamp        time.Time
}

// Sandbox is the per-plugin enforcement context: permission checks, resource
// accounting, and a violation log, all behind one reader-writer lock.
type Sandbox struct {
	pluginID string
	config   SandboxConfig

	mu         sync.RWMutex
	violations []AccessViolation
	usage      ResourceUsage
	enabled    bool
}

// NewSandbox constructs a Sandbox for pluginID with the given config, enabled
// by default.
func NewSandbox(pluginID string, config SandboxConfig) *Sandbox {
	return &Sandbox{pluginID: pluginID, config: config, enabled: true}
}

// Enabled reports whether the plugin is currently allowed to act at all.
func (s *Sandbox) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled toggles the plugin on or off without discarding its sandbox
// config or violation history.
func (s *Sandbox) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// HasPermission reports true iff the plugin is enabled and any granted
// permission implies p.
func (s *Sandbox) HasPermission(p Permission) bool {
	if !s.Enabled() {
		return false
	}
	for granted := range s.config.GrantedPermissions {
		if granted.Implies(p) {
			return true
		}
	}
	return false
}

// CheckPermission returns a PluginPermissionDeniedError unless HasPermission(p).
func (s *Sandbox) CheckPermission(p Permission) error {
	if s.HasPermission(p) {
		return nil
	}
	return &rimuruerrors.PluginPermissionDeniedError{Name: s.pluginID, Permission: string(p)}
}

// CheckPathAccess authorizes a filesystem access. Denied prefixes are checked
// before allowed prefixes; an empty allowed list means unrestricted subject to
// the denylist.
func (s *Sandbox) CheckPathAccess(path string, write bool) error {
	perm := FilesystemRead
	if write {
		perm = FilesystemWrite
	}
	if err := s.CheckPermission(perm); err != nil {
		return err
	}

	canonical := path
	if abs, err := filepath.Abs(path); err == nil {
		canonical = abs
	}

	for _, denied := range s.config.DeniedPaths {
		if strings.HasPrefix(canonical, denied) {
			return &rimuruerrors.PluginPermissionDeniedError{Name: s.pluginID, Permission: string(perm)}
		}
	}

	if len(s.config.AllowedPaths) == 0 {
		return nil
	}
	for _, allowed := range s.config.AllowedPaths {
		if strings.HasPrefix(canonical, allowed) {
			return nil
		}
	}
	return &rimuruerrors.PluginPermissionDeniedError{Name: s.pluginID, Permission: string(perm)}
}

// CheckNetworkAccess authorizes a network access by host, with suffix
// matching (both exact and dotted-suffix) for allow/deny lists.
func (s *Sandbox) CheckNetworkAccess(host string, outbound bool) error {
	perm := NetworkInbound
	if outbound {
		perm = NetworkOutbound
	}
	if err := s.CheckPermission(perm); err != nil {
		return err
	}

	for _, denied := range s.config.DeniedHosts {
		if host == denied || strings.HasSuffix(host, "."+denied) {
			return &rimuruerrors.PluginPermissionDeniedError{Name: s.pluginID, Permission: string(perm)}
		}
	}

	if len(s.config.AllowedHosts) == 0 {
		return nil
	}
	for _, allowed := range s.config.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return &rimuruerrors.PluginPermissionDeniedError{Name: s.pluginID, Permission: string(perm)}
}

// CheckDatabaseAccess authorizes a database access.
func (s *Sandbox) CheckDatabaseAccess(write bool) error {
	perm := DatabaseRead
	if write {
		perm = DatabaseWrite
	}
	return s.CheckPermission(perm)
}

// CheckResourceLimits fails on the first limit exceeded, in order: memory, CPU
// time, open files, active connections.
func (s *Sandbox) CheckResourceLimits() error {
	s.mu.RLock()
	usage := s.usage
	limits := s.config.ResourceLimits
	s.mu.RUnlock()

	if limits.MaxMemoryMB != nil && usage.CurrentMemoryMB > *limits.MaxMemoryMB {
		return &rimuruerrors.PluginError{Message: "memory limit exceeded"}
	}
	if limits.MaxCPUTimeMS != nil && usage.TotalCPUTimeMS > *limits.MaxCPUTimeMS {
		return &rimuruerrors.PluginError{Message: "cpu time limit exceeded"}
	}
	if limits.MaxOpenFiles != nil && usage.OpenFiles > *limits.MaxOpenFiles {
		return &rimuruerrors.PluginError{Message: "open files limit exceeded"}
	}
	if limits.MaxNetworkConnections != nil && usage.ActiveConnections > *limits.MaxNetworkConnections {
		return &rimuruerrors.PluginError{Message: "network connections limit exceeded"}
	}
	return nil
}

func (s *Sandbox) UpdateMemoryUsage(mb uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.CurrentMemoryMB = mb
}

func (s *Sandbox) AddCPUTime(ms uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.TotalCPUTimeMS += ms
}

// IncrementOpenFiles atomically checks-and-increments; fails without
// incrementing if the cap is already reached.
func (s *Sandbox) IncrementOpenFiles() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit := s.config.ResourceLimits.MaxOpenFiles; limit != nil && s.usage.OpenFiles >= *limit {
		return &rimuruerrors.PluginError{Message: "open files limit reached"}
	}
	s.usage.OpenFiles++
	return nil
}

// DecrementOpenFiles saturates at zero.
func (s *Sandbox) DecrementOpenFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usage.OpenFiles > 0 {
		s.usage.OpenFiles--
	}
}

// IncrementConnections atomically checks-and-increments; fails without
// incrementing if the cap is already reached.
func (s *Sandbox) IncrementConnections() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit := s.config.ResourceLimits.MaxNetworkConnections; limit != nil && s.usage.ActiveConnections >= *limit {
		return &rimuruerrors.PluginError{Message: "network connections limit reached"}
	}
	s.usage.ActiveConnections++
	return nil
}

// DecrementConnections saturates at zero.
func (s *Sandbox) DecrementConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usage.ActiveConnections > 0 {
		s.usage.ActiveConnections--
	}
}

func (s *Sandbox) GetResourceUsage() ResourceUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// RecordViolation appends v to the per-plugin violation log.
func (s *Sandbox) RecordViolation(v AccessViolation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
}

func (s *Sandbox) GetViolations() []AccessViolation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccessViolation, len(s.violations))
	copy(out, s.violations)
	return out
}

func (s *Sandbox) ClearViolations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = nil
}
