package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HookHandler is the contract every pipeline participant satisfies: a static
// name/hook/priority triple plus the Handle callback invoked on dispatch.
type HookHandler interface {
	Name() string
	Hook() Hook
	Priority() int
	Description() string
	Handle(ctx context.Context, hctx HookContext) (HookResult, error)
}

type registeredHandler struct {
	handler  HookHandler
	enabled  bool
	pluginID string
}

// Manager is the priority-ordered dispatch pipeline for a fixed HookConfig.
// Handlers registered against the same Hook run in descending priority order
// (ties broken by registration order); in parallel mode they run
// concurrently and the pipeline result collapses to the first Abort in
// priority order, ignoring any Modified results.
type Manager struct {
	cfg HookConfig

	mu       sync.RWMutex
	handlers map[string][]*registeredHandler // keyed by Hook.Name()

	histMu  sync.Mutex
	history []HookExecution
	histCap int
}

// NewManager constructs a Manager with cfg and a 500-entry execution history
// ring buffer.
func NewManager(cfg HookConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		handlers: map[string][]*registeredHandler{},
		histCap:  500,
	}
}

// Register adds handler to the pipeline for its own Hook(). Fails if the
// configured MaxHandlers for that hook would be exceeded.
func (m *Manager) Register(handler HookHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := handler.Hook().Name()
	if len(m.handlers[key]) >= m.cfg.MaxHandlers {
		return fmt.Errorf("hook %q: max handlers (%d) reached", key, m.cfg.MaxHandlers)
	}
	m.handlers[key] = append(m.handlers[key], &registeredHandler{handler: handler, enabled: true})
	return nil
}

// Unregister removes the named handler from every hook it was registered
// against.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, list := range m.handlers {
		filtered := list[:0]
		for _, rh := range list {
			if rh.handler.Name() != name {
				filtered = append(filtered, rh)
			}
		}
		m.handlers[key] = filtered
	}
}

// SetEnabled toggles a registered handler without unregistering it.
func (m *Manager) SetEnabled(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.handlers {
		for _, rh := range list {
			if rh.handler.Name() == name {
				rh.enabled = enabled
			}
		}
	}
}

// ListHandlers returns the descriptor list for every registered handler.
func (m *Manager) ListHandlers() []HookHandlerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []HookHandlerInfo
	for _, list := range m.handlers {
		for _, rh := range list {
			info := NewHookHandlerInfo(rh.handler.Name(), rh.handler.Hook()).
				WithPriority(rh.handler.Priority())
			if d := rh.handler.Description(); d != "" {
				info = info.WithDescription(d)
			}
			info.Enabled = rh.enabled
			out = append(out, info)
		}
	}
	return out
}

func (m *Manager) orderedHandlers(hook Hook) []*registeredHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.handlers[hook.Name()]
	out := make([]*registeredHandler, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].handler.Priority() > out[j].handler.Priority()
	})
	return out
}

// Dispatch runs every handler registered against hctx.Hook in priority order
// and returns the pipeline's collapsed outcome.
//
// Serial mode: handlers run one at a time. An Abort short-circuits the
// remaining handlers and is returned immediately. A Modified result replaces
// the context's data for subsequent handlers in the same dispatch. A
// per-handler timeout is recorded as a failed execution but treated as a
// Skip at the pipeline level — it never aborts the pipeline.
//
// Parallel mode: every enabled handler runs concurrently against the
// original context; the result collapses to the first Abort in priority
// order, ignoring Modified results (no serial chaining is possible once
// handlers run concurrently).
func (m *Manager) Dispatch(ctx context.Context, hctx HookContext) (HookResult, error) {
	if !m.cfg.Enabled {
		return OK(), nil
	}
	if ctx.Err() != nil {
		return Abort("cancelled"), nil
	}

	handlers := m.orderedHandlers(hctx.Hook)
	if len(handlers) == 0 {
		return OK(), nil
	}

	if m.cfg.ParallelExecution {
		return m.dispatchParallel(ctx, hctx, handlers)
	}
	return m.dispatchSerial(ctx, hctx, handlers)
}

func (m *Manager) dispatchSerial(ctx context.Context, hctx HookContext, handlers []*registeredHandler) (HookResult, error) {
	for _, rh := range handlers {
		if !rh.enabled {
			continue
		}
		if ctx.Err() != nil {
			return Abort("cancelled"), nil
		}

		result := m.invoke(ctx, rh.handler, hctx)
		switch {
		case result.IsAbort():
			return result, nil
		case result.IsModified():
			if data, ok := result.GetModifiedData(); ok {
				hctx.Data = data
			}
		}
	}
	return OK(), nil
}

func (m *Manager) dispatchParallel(ctx context.Context, hctx HookContext, handlers []*registeredHandler) (HookResult, error) {
	results := make([]HookResult, len(handlers))
	var wg sync.WaitGroup
	for i, rh := range handlers {
		if !rh.enabled {
			continue
		}
		wg.Add(1)
		go func(i int, rh *registeredHandler) {
			defer wg.Done()
			results[i] = m.invoke(ctx, rh.handler, hctx)
		}(i, rh)
	}
	wg.Wait()

	for _, r := range results {
		if r.IsAbort() {
			return r, nil
		}
	}
	return OK(), nil
}

// invoke runs a single handler with a per-call timeout derived from
// cfg.TimeoutMS, recording the outcome to the execution history. A timeout
// or handler error is recorded as a failed execution and reported to the
// caller as Skip, never Abort — only an explicit Abort result aborts the
// pipeline.
func (m *Manager) invoke(ctx context.Context, handler HookHandler, hctx HookContext) HookResult {
	execution := NewHookExecution(hctx.Hook, handler.Name())

	callCtx := ctx
	var cancel context.CancelFunc
	if m.cfg.TimeoutMS > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	type outcome struct {
		result HookResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler.Handle(callCtx, hctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		m.recordHistory(execution.Fail("handler timed out"))
		return Skip()
	case o := <-done:
		if o.err != nil {
			m.recordHistory(execution.Fail(o.err.Error()))
			return Skip()
		}
		m.recordHistory(execution.Complete(o.result))
		return o.result
	}
}

func (m *Manager) recordHistory(execution HookExecution) {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	m.history = append(m.history, execution)
	if over := len(m.history) - m.histCap; over > 0 {
		m.history = m.history[over:]
	}
}

// History returns a copy of the bounded execution history, oldest first.
func (m *Manager) History() []HookExecution {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	out := make([]HookExecution, len(m.history))
	copy(out, m.history)
	return out
}
