package sandbox

// SandboxConfig is the granted-permission set, allow/deny lists, resource
// limits, and plugin data directory a Sandbox is constructed from.
type SandboxConfig struct {
	GrantedPermissions map[Permission]struct{}
	AllowedPaths       []string
	DeniedPaths        []string
	AllowedHosts       []string
	DeniedHosts        []string
	ResourceLimits     ResourceLimits
	PluginDataDir      string
}

// NewSandboxConfig defaults AllowedPaths to [pluginDataDir], matching the
// original constructor.
func NewSandboxConfig(pluginDataDir string) SandboxConfig {
	cfg := SandboxConfig{
		GrantedPermissions: map[Permission]struct{}{},
		ResourceLimits:     DefaultResourceLimits(),
		PluginDataDir:      pluginDataDir,
	}
	if pluginDataDir != "" {
		cfg.AllowedPaths = []string{pluginDataDir}
	}
	return cfg
}

// TrustedSandboxConfig grants All with unrestricted limits and empty lists.
func TrustedSandboxConfig() SandboxConfig {
	return SandboxConfig{
		GrantedPermissions: map[Permission]struct{}{All: {}},
		ResourceLimits:     UnlimitedResourceLimits(),
	}
}

func (c SandboxConfig) WithPermission(p Permission) SandboxConfig {
	if c.GrantedPermissions == nil {
		c.GrantedPermissions = map[Permission]struct{}{}
	}
	c.GrantedPermissions[p] = struct{}{}
	return c
}

func (c SandboxConfig) WithPermissions(ps ...Permission) SandboxConfig {
	for _, p := range ps {
		c = c.WithPermission(p)
	}
	return c
}

func (c SandboxConfig) WithAllowedPath(path string) SandboxConfig {
	c.AllowedPaths = append(c.AllowedPaths, path)
	return c
}

func (c SandboxConfig) WithDeniedPath(path string) SandboxConfig {
	c.DeniedPaths = append(c.DeniedPaths, path)
	return c
}

func (c SandboxConfig) WithAllowedHost(host string) SandboxConfig {
	c.AllowedHosts = append(c.AllowedHosts, host)
	return c
}

func (c SandboxConfig) WithDeniedHost(host string) SandboxConfig {
	c.DeniedHosts = append(c.DeniedHosts, host)
	return c
}

func (c SandboxConfig) WithResourceLimits(l ResourceLimits) SandboxConfig {
	c.ResourceLimits = l
	return c
}
