// Package repositories defines typed persistence interfaces for agents,
// sessions, cost records, and model catalog entries, following the
// Dependency Inversion style the usecases layer uses for session storage:
// CRUD plus business queries, sentinel errors, and a transaction wrapper.
// Concrete storage lives in internal/database.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rimuru/agentctl/internal/models"
)

// AgentFilter narrows AgentRepository queries.
type AgentFilter struct {
	Kind   models.AgentKind
	Status models.AdapterStatus
	Limit  int
	Offset int
}

// AgentRepository persists adapter registration and health snapshots so a
// supervisor restart can rehydrate its catalog instead of starting cold.
type AgentRepository interface {
	Save(ctx context.Context, info models.AdapterInfo) error
	FindByName(ctx context.Context, name string) (*models.AdapterInfo, error)
	FindByFilter(ctx context.Context, filter AgentFilter) ([]models.AdapterInfo, error)
	Delete(ctx context.Context, name string) error

	SaveHealth(ctx context.Context, health models.AdapterHealth) error
	FindHealth(ctx context.Context, name string) (*models.AdapterHealth, error)

	WithTransaction(ctx context.Context, fn func(repo AgentRepository) error) error
}

// SessionFilter narrows SessionRepository queries.
type SessionFilter struct {
	Kind        models.AgentKind
	StartAfter  time.Time
	StartBefore time.Time
	EndAfter    time.Time
	EndBefore   time.Time
	IsActive    *bool
	Limit       int
	Offset      int
}

// SessionSortBy selects the column SessionRepository.FindWithSort orders by.
type SessionSortBy string

const (
	SessionSortByStartTime SessionSortBy = "started_at"
	SessionSortByEndTime   SessionSortBy = "ended_at"
	SessionSortByCost      SessionSortBy = "cost_usd"
)

// SessionSortOrder selects ascending or descending order.
type SessionSortOrder string

const (
	SessionSortAsc  SessionSortOrder = "asc"
	SessionSortDesc SessionSortOrder = "desc"
)

// SessionRepository persists finalized session history. Active (in-flight)
// sessions stay adapter-owned in memory and are never routed through here —
// only terminal SessionHistory records get durable storage.
type SessionRepository interface {
	Save(ctx context.Context, session models.SessionHistory) error
	FindByID(ctx context.Context, sessionID string) (*models.SessionHistory, error)
	Delete(ctx context.Context, sessionID string) error

	FindByFilter(ctx context.Context, filter SessionFilter) ([]models.SessionHistory, error)
	FindWithSort(ctx context.Context, filter SessionFilter, sortBy SessionSortBy, order SessionSortOrder) ([]models.SessionHistory, error)
	FindRecent(ctx context.Context, limit int) ([]models.SessionHistory, error)

	CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error)

	SaveBatch(ctx context.Context, sessions []models.SessionHistory) error
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	WithTransaction(ctx context.Context, fn func(repo SessionRepository) error) error
}

// CostRecordRepository persists the append-only cost ledger for historical
// reporting beyond the live registry window; CostAggregator reads only the
// live adapters, not this ledger.
type CostRecordRepository interface {
	Save(ctx context.Context, record *models.CostRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CostRecord, error)
	FindBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.CostRecord, error)
	FindByAgent(ctx context.Context, agentID uuid.UUID, start, end time.Time) ([]*models.CostRecord, error)
	FindByTimeRange(ctx context.Context, start, end time.Time) ([]*models.CostRecord, error)

	SumCostByModel(ctx context.Context, start, end time.Time) (map[string]float64, error)

	SaveBatch(ctx context.Context, records []*models.CostRecord) error

	WithTransaction(ctx context.Context, fn func(repo CostRecordRepository) error) error
}

// ModelRepository persists the rate-card catalog ModelsSync refreshes.
type ModelRepository interface {
	Save(ctx context.Context, model models.ModelInfo) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ModelInfo, error)
	FindByName(ctx context.Context, provider, modelName string) (*models.ModelInfo, error)
	List(ctx context.Context) ([]models.ModelInfo, error)
	Delete(ctx context.Context, id uuid.UUID) error

	ReplaceAll(ctx context.Context, models []models.ModelInfo) error
}

// RepositoryError wraps a failed persistence operation with the operation
// name and entity identifier, matching the session-repository error idiom.
type RepositoryError struct {
	Op      string
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("repository %s: %s", e.Op, e.Message)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

var (
	ErrAgentNotFound   = &RepositoryError{Op: "find", Message: "agent not found"}
	ErrSessionNotFound = &RepositoryError{Op: "find", Message: "session not found"}
	ErrCostNotFound    = &RepositoryError{Op: "find", Message: "cost record not found"}
	ErrModelNotFound   = &RepositoryError{Op: "find", Message: "model not found"}
	ErrAlreadyExists   = &RepositoryError{Op: "save", Message: "entity already exists"}
)
