// Package adapters defines the capability-set contract every vendor adapter
// satisfies (spec §4.A) and ships a fixed discovery catalog plus an in-memory
// reference implementation used by tests and as a default registration
// target. Concrete per-vendor adapters (a real Claude Code, Codex, Copilot,
// Cursor, Goose or OpenCode integration) are an out-of-scope external
// collaborator — only the shape they must satisfy lives here.
package adapters

import (
	"context"

	"github.com/rimuru/agentctl/internal/models"
)

// Adapter is the minimum surface every vendor adapter provides.
type Adapter interface {
	Kind() models.AgentKind
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() models.AdapterStatus
	Info() models.AdapterInfo
	Sessions(ctx context.Context) ([]models.Session, error)
	ActiveSession(ctx context.Context) (*models.ActiveSession, error)
	IsInstalled(ctx context.Context) bool
	HealthCheck(ctx context.Context) (bool, error)
}

// CostTracker is the cost-tracking operation set an adapter may additionally
// satisfy.
type CostTracker interface {
	Usage(ctx context.Context, since *models.TimeRange) (models.UsageStats, error)
	CalculateCost(ctx context.Context, inputTokens, outputTokens int64, model string) (float64, error)
	ModelInfo(ctx context.Context, name string) (*models.ModelInfo, error)
	SupportedModels(ctx context.Context) ([]string, error)
	TotalCost(ctx context.Context, since *models.TimeRange) (float64, error)
}

// SessionMonitor is the session-monitoring operation set an adapter may
// additionally satisfy.
type SessionMonitor interface {
	Subscribe(callback func(models.ActiveSession)) (subID string)
	Unsubscribe(subID string)
	SessionHistory(ctx context.Context, limit *int, since *models.TimeRange) ([]models.SessionHistory, error)
	SessionDetails(ctx context.Context, id string) (*models.SessionHistory, error)
	ActiveSessions(ctx context.Context) ([]models.ActiveSession, error)
}

// FullAdapter is the union every concrete, fully-featured adapter satisfies;
// the registry stores handles by this interface.
type FullAdapter interface {
	Adapter
	CostTracker
	SessionMonitor
}
