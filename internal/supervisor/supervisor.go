// Package supervisor implements the Adapter Supervisor (spec §4.G): the
// top-level object held for the process lifetime that wires auto-discovery,
// connect-all, a periodic health ticker with bounded reconnection, and
// exposes the cost/session aggregators.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rimuru/agentctl/internal/adapters"
	"github.com/rimuru/agentctl/internal/aggregator"
	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/registry"
	"github.com/rimuru/agentctl/internal/rimuruerrors"
	"github.com/rimuru/agentctl/pkg/logger"
)

// Config tunes discovery and health-monitoring behavior.
type Config struct {
	AutoDiscover         bool
	HealthCheckInterval  time.Duration
	ReconnectOnFailure   bool
	MaxReconnectAttempts int
}

// DefaultConfig mirrors the original AdapterManagerConfig defaults:
// auto_discover=true, health_check_interval_secs=60,
// reconnect_on_failure=true, max_reconnect_attempts=3.
func DefaultConfig() Config {
	return Config{
		AutoDiscover:         true,
		HealthCheckInterval:  60 * time.Second,
		ReconnectOnFailure:   true,
		MaxReconnectAttempts: 3,
	}
}

// AdapterFactory constructs the default stub registration for a catalog
// entry discovered as installed. Concrete vendor adapters are out of scope;
// the supervisor registers an adapters.Stub by default unless a caller
// supplies a real implementation via RegisterAdapter.
type AdapterFactory func(entry adapters.CatalogEntry) adapters.FullAdapter

func defaultFactory(entry adapters.CatalogEntry) adapters.FullAdapter {
	return adapters.NewStub(entry.Name, entry.Kind)
}

// Supervisor is the top-level object held for the process lifetime.
type Supervisor struct {
	cfg     Config
	reg     *registry.Registry
	cost    *aggregator.CostAggregator
	session *aggregator.SessionAggregator
	log     logger.Logger
	factory AdapterFactory

	healthMu sync.RWMutex
	health   map[string]models.AdapterHealth

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Supervisor with its own fresh registry and aggregators.
func New(cfg Config, log logger.Logger) *Supervisor {
	reg := registry.NewDefault()
	return &Supervisor{
		cfg:     cfg,
		reg:     reg,
		cost:    aggregator.NewCostAggregator(reg, log),
		session: aggregator.NewSessionAggregator(reg),
		log:     log,
		factory: defaultFactory,
		health:  map[string]models.AdapterHealth{},
	}
}

// WithFactory overrides the construction function used for auto-discovered
// adapters (tests substitute this to avoid touching the real filesystem).
func (s *Supervisor) WithFactory(f AdapterFactory) *Supervisor {
	s.factory = f
	return s
}

func (s *Supervisor) Registry() *registry.Registry              { return s.reg }
func (s *Supervisor) CostAggregator() *aggregator.CostAggregator { return s.cost }
func (s *Supervisor) SessionAggregator() *aggregator.SessionAggregator {
	return s.session
}

// Initialize probes the fixed catalog (if AutoDiscover), registers any
// newly-found adapter with defaults, then best-effort connects every
// registered adapter. Connect errors are recorded, not fatal.
func (s *Supervisor) Initialize(ctx context.Context) ([]string, error) {
	s.log.Info("initializing adapter supervisor")

	var discovered []string
	if s.cfg.AutoDiscover {
		discovered = s.discoverAndRegister()
	}

	for _, res := range s.reg.ConnectAll(ctx) {
		if res.Err != nil {
			s.log.Warn("failed to connect adapter", "adapter", res.Name, "error", res.Err)
		} else {
			s.log.Info("connected adapter", "adapter", res.Name)
		}
	}
	return discovered, nil
}

func (s *Supervisor) discoverAndRegister() []string {
	var registered []string
	for _, entry := range adapters.Catalog {
		if !entry.IsInstalled() {
			continue
		}
		if s.reg.Get(entry.Name) != nil {
			continue
		}
		adapter := s.factory(entry)
		if err := s.reg.Register(entry.Name, adapter); err != nil {
			s.log.Warn("failed to register discovered adapter", "adapter", entry.Name, "error", err)
			continue
		}
		registered = append(registered, entry.Name)
		s.log.Info("discovered and registered adapter", "adapter", entry.Name)
	}
	return registered
}

// RegisterAdapter registers a caller-supplied adapter directly, bypassing
// discovery.
func (s *Supervisor) RegisterAdapter(name string, adapter adapters.FullAdapter) error {
	if err := s.reg.Register(name, adapter); err != nil {
		return err
	}
	s.log.Info("registered adapter", "adapter", name)
	return nil
}

// UnregisterAdapter disconnects (best-effort) and removes the named adapter,
// dropping its recorded health.
func (s *Supervisor) UnregisterAdapter(ctx context.Context, name string) error {
	if handle := s.reg.Get(name); handle != nil {
		_ = handle.Adapter().Disconnect(ctx)
	}
	if err := s.reg.Unregister(name); err != nil {
		return err
	}
	s.healthMu.Lock()
	delete(s.health, name)
	s.healthMu.Unlock()
	s.log.Info("unregistered adapter", "adapter", name)
	return nil
}

// StartHealthMonitoring launches a single background goroutine ticking every
// cfg.HealthCheckInterval. Calling it while already running is a no-op.
func (s *Supervisor) StartHealthMonitoring() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.healthLoop(s.stopCh, s.doneCh)
}

func (s *Supervisor) healthLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			s.log.Info("health monitoring stopped")
			return
		case <-ticker.C:
			s.runHealthTick(context.Background())
		}
	}
}

// runHealthTick records {status, healthy, error_message} for every adapter,
// incrementing consecutive_failures on failure (reset on success), and
// attempts exactly one reconnect per unhealthy adapter within the tick when
// ReconnectOnFailure is set and the failure count is still within budget.
func (s *Supervisor) runHealthTick(ctx context.Context) {
	for _, name := range s.reg.ListNames() {
		handle := s.reg.Get(name)
		if handle == nil {
			continue
		}
		adapter := handle.Adapter()
		status := adapter.Status()
		healthy, err := adapter.HealthCheck(ctx)
		var errMsg string
		if err != nil {
			healthy = false
			errMsg = err.Error()
		}

		s.healthMu.Lock()
		prevFailures := s.health[name].ConsecutiveFailures
		failures := 0
		if !healthy {
			failures = prevFailures + 1
		}
		s.health[name] = models.AdapterHealth{
			Name:                name,
			Kind:                adapter.Kind(),
			Status:              status,
			Healthy:             healthy,
			LastCheck:           time.Now(),
			ConsecutiveFailures: failures,
			ErrorMessage:        errMsg,
		}
		s.healthMu.Unlock()

		if !healthy {
			s.log.Warn("adapter health check failed", "adapter", name, "attempt", failures, "error", errMsg)

			if s.cfg.ReconnectOnFailure && failures <= s.cfg.MaxReconnectAttempts {
				if connErr := adapter.Connect(ctx); connErr != nil {
					s.log.Error("failed to reconnect adapter", "adapter", name, "error", connErr)
				} else {
					s.log.Info("successfully reconnected adapter", "adapter", name)
				}
			}
		}
	}
}

// StopHealthMonitoring flips the run flag; the ticker goroutine exits on its
// next tick or immediately if already waiting on the stop channel, and this
// call blocks until it has exited.
func (s *Supervisor) StopHealthMonitoring() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.runMu.Unlock()

	<-done
}

// Shutdown stops health monitoring then disconnects every adapter.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.StopHealthMonitoring()
	for _, res := range s.reg.DisconnectAll(ctx) {
		if res.Err != nil {
			s.log.Warn("failed to disconnect adapter during shutdown", "adapter", res.Name, "error", res.Err)
		}
	}
}

func (s *Supervisor) GetAdapterStatus(name string) (models.AdapterStatus, error) {
	handle := s.reg.Get(name)
	if handle == nil {
		return "", rimuruerrors.NotFound(name)
	}
	return handle.Adapter().Status(), nil
}

func (s *Supervisor) GetAllStatuses() map[string]models.AdapterStatus {
	out := map[string]models.AdapterStatus{}
	for _, name := range s.reg.ListNames() {
		if handle := s.reg.Get(name); handle != nil {
			out[name] = handle.Adapter().Status()
		}
	}
	return out
}

func (s *Supervisor) GetHealthStatus() map[string]models.AdapterHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	out := make(map[string]models.AdapterHealth, len(s.health))
	for k, v := range s.health {
		out[k] = v
	}
	return out
}

func (s *Supervisor) GetAdapterHealth(name string) (models.AdapterHealth, bool) {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	h, ok := s.health[name]
	return h, ok
}

func (s *Supervisor) ListAdapters() []string { return s.reg.ListNames() }

func (s *Supervisor) ListAdaptersByKind() map[models.AgentKind][]string { return s.reg.ListByKind() }

func (s *Supervisor) AdapterCount() int { return s.reg.Count() }

// RunHealthCheck runs an immediate, synchronous health check for name
// outside the regular tick. It updates Healthy, LastCheck and the failure
// count of an already-recorded health entry; an adapter with no recorded
// health, or a check that returns an error, leaves the record unchanged.
func (s *Supervisor) RunHealthCheck(ctx context.Context, name string) (bool, error) {
	handle := s.reg.Get(name)
	if handle == nil {
		return false, rimuruerrors.NotFound(name)
	}
	healthy, err := handle.Adapter().HealthCheck(ctx)
	if err != nil {
		return false, err
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	h, ok := s.health[name]
	if ok {
		h.Healthy = healthy
		h.LastCheck = time.Now()
		if healthy {
			h.ConsecutiveFailures = 0
		} else {
			h.ConsecutiveFailures++
		}
		s.health[name] = h
	}
	return healthy, nil
}
