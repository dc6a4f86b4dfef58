package adapters

import (
	"os"
	"path/filepath"

	"github.com/rimuru/agentctl/internal/models"
)

// CatalogEntry names one of the fixed vendors the supervisor probes during
// auto-discovery, plus the config-directory-relative path used to decide
// whether that vendor is installed locally.
type CatalogEntry struct {
	Name          string
	Kind          models.AgentKind
	ConfigRelPath string
}

// Catalog is the fixed discovery list, in the order the supervisor probes
// them (matches the original adapter_manager.rs discover_and_register_adapters).
var Catalog = []CatalogEntry{
	{Name: "claude-code", Kind: models.ClaudeCode, ConfigRelPath: ".claude"},
	{Name: "codex", Kind: models.Codex, ConfigRelPath: ".codex"},
	{Name: "copilot", Kind: models.Copilot, ConfigRelPath: ".config/github-copilot"},
	{Name: "cursor", Kind: models.Cursor, ConfigRelPath: ".cursor"},
	{Name: "goose", Kind: models.Goose, ConfigRelPath: ".config/goose"},
	{Name: "opencode", Kind: models.OpenCode, ConfigRelPath: ".opencode"},
}

// IsInstalled reports whether the vendor's config directory is present under
// the user's home directory, using the platform liveness probe in
// isAccessible (see catalog_unix.go / catalog_windows.go).
func (e CatalogEntry) IsInstalled() bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	return isAccessible(filepath.Join(home, e.ConfigRelPath))
}
