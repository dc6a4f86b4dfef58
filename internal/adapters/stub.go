package adapters

import (
	"context"
	"strconv"
	"sync"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// Stub is an in-memory FullAdapter used by registry/supervisor/aggregator
// tests and as the default registration target for a detected-but-unwired
// vendor. Mirrors the Rust test suites' TestAdapter fixtures in
// adapters/registry.rs and services/adapter_manager.rs.
type Stub struct {
	name      string
	kind      models.AgentKind
	installed bool
	failConnect bool

	mu             sync.RWMutex
	status         models.AdapterStatus
	active         []models.ActiveSession
	history        []models.SessionHistory
	usage          models.UsageStats
	totalCostUSD   float64
	subscribers    map[string]func(models.ActiveSession)
	nextSubID      int
}

// NewStub constructs a disconnected Stub for name/kind.
func NewStub(name string, kind models.AgentKind) *Stub {
	return &Stub{
		name:        name,
		kind:        kind,
		installed:   true,
		status:      models.StatusDisconnected,
		subscribers: map[string]func(models.ActiveSession){},
	}
}

// WithInstalled overrides the IsInstalled() result (for discovery tests).
func (s *Stub) WithInstalled(installed bool) *Stub {
	s.installed = installed
	return s
}

// WithFailConnect makes every Connect call fail (for retry/reconnect tests).
func (s *Stub) WithFailConnect(fail bool) *Stub {
	s.failConnect = fail
	return s
}

// SeedUsage sets the fixed usage/cost figures subsequent Usage/TotalCost
// calls return, for aggregator fan-out tests.
func (s *Stub) SeedUsage(usage models.UsageStats, totalCostUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = usage
	s.totalCostUSD = totalCostUSD
}

// SeedSessions seeds the active/history session lists the adapter reports.
func (s *Stub) SeedSessions(active []models.ActiveSession, history []models.SessionHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	s.history = history
}

func (s *Stub) Kind() models.AgentKind { return s.kind }
func (s *Stub) Name() string           { return s.name }

func (s *Stub) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConnect {
		s.status = models.StatusError
		return &rimuruerrors.AgentConnectionFailedError{Agent: s.name, Message: "stub configured to fail"}
	}
	s.status = models.StatusConnected
	return nil
}

func (s *Stub) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.StatusDisconnected
	return nil
}

func (s *Stub) Status() models.AdapterStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Stub) Info() models.AdapterInfo {
	return models.AdapterInfo{Name: s.name, Kind: s.kind}
}

func (s *Stub) Sessions(ctx context.Context) ([]models.Session, error) {
	return nil, nil
}

func (s *Stub) ActiveSession(ctx context.Context) (*models.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.active) == 0 {
		return nil, nil
	}
	first := s.active[0]
	return &first, nil
}

func (s *Stub) IsInstalled(ctx context.Context) bool { return s.installed }

func (s *Stub) HealthCheck(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == models.StatusConnected, nil
}

func (s *Stub) Usage(ctx context.Context, since *models.TimeRange) (models.UsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage, nil
}

func (s *Stub) CalculateCost(ctx context.Context, inputTokens, outputTokens int64, model string) (float64, error) {
	return 0, nil
}

func (s *Stub) ModelInfo(ctx context.Context, name string) (*models.ModelInfo, error) {
	return nil, nil
}

func (s *Stub) SupportedModels(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (s *Stub) TotalCost(ctx context.Context, since *models.TimeRange) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalCostUSD, nil
}

func (s *Stub) Subscribe(callback func(models.ActiveSession)) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := strconv.Itoa(s.nextSubID)
	s.subscribers[id] = callback
	return id
}

func (s *Stub) Unsubscribe(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, subID)
}

func (s *Stub) SessionHistory(ctx context.Context, limit *int, since *models.TimeRange) ([]models.SessionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionHistory, len(s.history))
	copy(out, s.history)
	if limit != nil && *limit < len(out) {
		out = out[:*limit]
	}
	return out, nil
}

func (s *Stub) SessionDetails(ctx context.Context, id string) (*models.SessionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.history {
		if h.SessionID == id {
			h := h
			return &h, nil
		}
	}
	return nil, nil
}

func (s *Stub) ActiveSessions(ctx context.Context) ([]models.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ActiveSession, len(s.active))
	copy(out, s.active)
	return out, nil
}

var _ FullAdapter = (*Stub)(nil)
