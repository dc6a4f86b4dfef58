// Package registry implements the Adapter Factory & Registry (spec §4.C): a
// concurrency-safe name->adapter map with a kind->names index, lazy
// construction, retry-aware connect, and health-check-with-reconnect.
//
// The registry is the canonical runtime per the spec's resolution of the two
// overlapping source designs; this package has no factory — adapters for
// discovered catalog entries are built by supervisor.AdapterFactory. Critically, Get always returns the same *Handle for a given name —
// the original source's get_or_create reconstructed the adapter from its
// config on every call via an unsafe pointer read, silently discarding
// in-adapter state (subscriptions, counters) on each access. That is treated
// as a source bug here, not a behavior to replicate.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// Handle is the shared, lock-guarded holder around one registered adapter.
// The registry always returns the same *Handle for a name; callers lock it
// for the duration of any adapter I/O so long-running adapter operations
// never block registry map mutations.
type Handle struct {
	mu      sync.RWMutex
	adapter adapters.FullAdapter
}

func (h *Handle) Adapter() adapters.FullAdapter {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.adapter
}

// Config carries registry-wide retry tuning.
type Config struct {
	MaxRetryAttempts int
	RetryDelay       time.Duration
}

// DefaultConfig mirrors the original registry::new() defaults.
func DefaultConfig() Config {
	return Config{MaxRetryAttempts: 3, RetryDelay: 5 * time.Second}
}

// Registry is the concurrency-safe name->adapter map plus kind->names index,
// both behind a single reader-writer lock; each Handle has its own lock.
type Registry struct {
	cfg Config

	mu        sync.RWMutex
	adapters  map[string]*Handle
	typeIndex map[models.AgentKind][]string
}

// New constructs an empty Registry with the given retry config.
func New(cfg Config) *Registry {
	return &Registry{
		cfg:       cfg,
		adapters:  map[string]*Handle{},
		typeIndex: map[models.AgentKind][]string{},
	}
}

// NewDefault constructs a Registry with DefaultConfig().
func NewDefault() *Registry { return New(DefaultConfig()) }

// Register inserts adapter under name, failing if the name is already taken.
func (r *Registry) Register(name string, adapter adapters.FullAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return rimuruerrors.AlreadyExists(name)
	}
	r.adapters[name] = &Handle{adapter: adapter}
	kind := adapter.Kind()
	r.typeIndex[kind] = append(r.typeIndex[kind], name)
	return nil
}

// Unregister removes name from both the name map and the kind index. Does
// not disconnect the adapter.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, exists := r.adapters[name]
	if !exists {
		return rimuruerrors.NotFound(name)
	}
	kind := handle.Adapter().Kind()
	delete(r.adapters, name)

	names := r.typeIndex[kind]
	filtered := names[:0]
	for _, n := range names {
		if n != name {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		delete(r.typeIndex, kind)
	} else {
		r.typeIndex[kind] = filtered
	}
	return nil
}

// Get returns the shared Handle for name, or nil if not registered. The
// returned Handle is the SAME instance on every call until Unregister.
func (r *Registry) Get(name string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// GetByKind returns the shared Handles for every adapter of kind k.
func (r *Registry) GetByKind(k models.AgentKind) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.typeIndex[k]
	out := make([]*Handle, 0, len(names))
	for _, n := range names {
		if h, ok := r.adapters[n]; ok {
			out = append(out, h)
		}
	}
	return out
}

// ListNames returns every registered name.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ListByKind returns the kind->names index as a plain map snapshot.
func (r *Registry) ListByKind() map[models.AgentKind][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.AgentKind][]string, len(r.typeIndex))
	for k, names := range r.typeIndex {
		cp := make([]string, len(names))
		copy(cp, names)
		out[k] = cp
	}
	return out
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// namesSnapshot copies the current name list without holding the map lock
// across subsequent adapter I/O.
func (r *Registry) namesSnapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	return out
}

// NameResult pairs a registered name with the outcome of a fan-out operation.
type NameResult struct {
	Name string
	Err  error
}

// ConnectAll fans Connect out to every registered adapter, returning a
// per-name result list. Never holds the registry lock during adapter I/O.
func (r *Registry) ConnectAll(ctx context.Context) []NameResult {
	names := r.namesSnapshot()
	results := make([]NameResult, 0, len(names))
	for _, name := range names {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.Lock()
		err := handle.adapter.Connect(ctx)
		handle.mu.Unlock()
		results = append(results, NameResult{Name: name, Err: err})
	}
	return results
}

// DisconnectAll fans Disconnect out to every registered adapter.
func (r *Registry) DisconnectAll(ctx context.Context) []NameResult {
	names := r.namesSnapshot()
	results := make([]NameResult, 0, len(names))
	for _, name := range names {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.Lock()
		err := handle.adapter.Disconnect(ctx)
		handle.mu.Unlock()
		results = append(results, NameResult{Name: name, Err: err})
	}
	return results
}

// ConnectWithRetry attempts Connect up to cfg.MaxRetryAttempts times, sleeping
// cfg.RetryDelay between attempts (cancellable via ctx). max_attempts = 0
// fails immediately.
func (r *Registry) ConnectWithRetry(ctx context.Context, name string) error {
	handle := r.Get(name)
	if handle == nil {
		return rimuruerrors.NotFound(name)
	}
	if r.cfg.MaxRetryAttempts <= 0 {
		return &rimuruerrors.AgentConnectionFailedError{Agent: name, Message: "no retry attempts configured"}
	}

	for attempt := 1; attempt <= r.cfg.MaxRetryAttempts; attempt++ {
		handle.mu.Lock()
		err := handle.adapter.Connect(ctx)
		handle.mu.Unlock()
		if err == nil {
			return nil
		}
		if attempt < r.cfg.MaxRetryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.RetryDelay):
			}
		}
	}
	return &rimuruerrors.AgentConnectionFailedError{
		Agent:   name,
		Message: "failed to connect after retry attempts",
	}
}

// HealthCheckAll returns {name: healthy}; unreachable/errored adapters count
// as false.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	names := r.namesSnapshot()
	out := make(map[string]bool, len(names))
	for _, name := range names {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.RLock()
		healthy, err := handle.adapter.HealthCheck(ctx)
		handle.mu.RUnlock()
		out[name] = err == nil && healthy
	}
	return out
}

// HealthCheckWithReconnect checks health; if unhealthy and the adapter's
// status is Error or Disconnected, attempts reconnect up to
// cfg.MaxRetryAttempts, then re-checks health. Returns the final health
// regardless of intermediate failures.
func (r *Registry) HealthCheckWithReconnect(ctx context.Context, name string) (bool, error) {
	handle := r.Get(name)
	if handle == nil {
		return false, rimuruerrors.NotFound(name)
	}

	handle.mu.RLock()
	healthy, err := handle.adapter.HealthCheck(ctx)
	status := handle.adapter.Status()
	handle.mu.RUnlock()
	if err == nil && healthy {
		return true, nil
	}

	if status != models.StatusError && status != models.StatusDisconnected {
		return false, nil
	}

	for attempt := 1; attempt <= r.cfg.MaxRetryAttempts; attempt++ {
		handle.mu.Lock()
		connErr := handle.adapter.Connect(ctx)
		handle.mu.Unlock()
		if connErr == nil {
			handle.mu.RLock()
			finalHealthy, finalErr := handle.adapter.HealthCheck(ctx)
			handle.mu.RUnlock()
			return finalErr == nil && finalHealthy, nil
		}
		if attempt < r.cfg.MaxRetryAttempts {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(r.cfg.RetryDelay):
			}
		}
	}
	return false, nil
}

// GetAggregatedUsage fans Usage out across every adapter and sums via Add.
// Adapters that error are skipped (counted as zero) without being logged;
// CostAggregator.AggregatedUsage runs its own fan-out that logs each one.
func (r *Registry) GetAggregatedUsage(ctx context.Context, since *models.TimeRange) models.UsageStats {
	var total models.UsageStats
	for _, name := range r.namesSnapshot() {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.RLock()
		usage, err := handle.adapter.Usage(ctx, since)
		handle.mu.RUnlock()
		if err != nil {
			continue
		}
		total = total.Add(usage)
	}
	return total
}

// GetAggregatedCost fans TotalCost out across every adapter and sums.
// Adapters that error are skipped (counted as zero).
func (r *Registry) GetAggregatedCost(ctx context.Context, since *models.TimeRange) float64 {
	var total float64
	for _, name := range r.namesSnapshot() {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.RLock()
		cost, err := handle.adapter.TotalCost(ctx, since)
		handle.mu.RUnlock()
		if err != nil {
			continue
		}
		total += cost
	}
	return total
}

// GetAllActiveSessions fans ActiveSessions out across every adapter.
func (r *Registry) GetAllActiveSessions(ctx context.Context) []models.ActiveSession {
	var out []models.ActiveSession
	for _, name := range r.namesSnapshot() {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.RLock()
		sessions, err := handle.adapter.ActiveSessions(ctx)
		handle.mu.RUnlock()
		if err != nil {
			continue
		}
		out = append(out, sessions...)
	}
	return out
}

// GetAllSessionHistory fans SessionHistory out across every adapter, sorts
// the merged result by StartedAt descending, THEN truncates to limit — the
// truncation must happen after the merge-sort so the result is globally the
// most recent across adapters, not per-adapter-then-merged.
func (r *Registry) GetAllSessionHistory(ctx context.Context, limit *int, since *models.TimeRange) []models.SessionHistory {
	var out []models.SessionHistory
	for _, name := range r.namesSnapshot() {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.RLock()
		history, err := handle.adapter.SessionHistory(ctx, nil, since)
		handle.mu.RUnlock()
		if err != nil {
			continue
		}
		out = append(out, history...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit != nil && *limit < len(out) {
		out = out[:*limit]
	}
	return out
}

// HealthCheckAllWithReconnect fans HealthCheckWithReconnect out over every
// registered name.
func (r *Registry) HealthCheckAllWithReconnect(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	for _, name := range r.namesSnapshot() {
		healthy, _ := r.HealthCheckWithReconnect(ctx, name)
		out[name] = healthy
	}
	return out
}

// FindSession returns the first adapter's SessionDetails result that is
// non-nil for id.
func (r *Registry) FindSession(ctx context.Context, id string) *models.SessionHistory {
	for _, name := range r.namesSnapshot() {
		handle := r.Get(name)
		if handle == nil {
			continue
		}
		handle.mu.RLock()
		details, err := handle.adapter.SessionDetails(ctx, id)
		handle.mu.RUnlock()
		if err == nil && details != nil {
			return details
		}
	}
	return nil
}
