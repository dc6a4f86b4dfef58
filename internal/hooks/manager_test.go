package hooks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler is a minimal HookHandler whose Handle callback is supplied by
// the test, letting each case exercise Manager without a real domain handler.
type fakeHandler struct {
	name     string
	hook     Hook
	priority int
	fn       func(ctx context.Context, hctx HookContext) (HookResult, error)
}

func (h *fakeHandler) Name() string        { return h.name }
func (h *fakeHandler) Hook() Hook          { return h.hook }
func (h *fakeHandler) Priority() int       { return h.priority }
func (h *fakeHandler) Description() string { return "" }

func (h *fakeHandler) Handle(ctx context.Context, hctx HookContext) (HookResult, error) {
	return h.fn(ctx, hctx)
}

func recordingHandler(name string, priority int, mu *sync.Mutex, order *[]string) *fakeHandler {
	return &fakeHandler{
		name:     name,
		hook:     Custom("test.hook"),
		priority: priority,
		fn: func(ctx context.Context, hctx HookContext) (HookResult, error) {
			mu.Lock()
			*order = append(*order, name)
			mu.Unlock()
			return OK(), nil
		},
	}
}

func TestDispatchSerialRunsInDescendingPriorityOrder(t *testing.T) {
	mgr := NewManager(NewHookConfig())
	var mu sync.Mutex
	var order []string

	require.NoError(t, mgr.Register(recordingHandler("low", 1, &mu, &order)))
	require.NoError(t, mgr.Register(recordingHandler("high", 10, &mu, &order)))
	require.NoError(t, mgr.Register(recordingHandler("mid", 5, &mu, &order)))

	result, err := mgr.Dispatch(context.Background(), NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)
	assert.True(t, result.IsContinue())
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestDispatchSerialAbortShortCircuits(t *testing.T) {
	mgr := NewManager(NewHookConfig())
	var mu sync.Mutex
	var order []string

	require.NoError(t, mgr.Register(recordingHandler("first", 10, &mu, &order)))
	require.NoError(t, mgr.Register(&fakeHandler{
		name: "aborter", hook: Custom("test.hook"), priority: 5,
		fn: func(ctx context.Context, hctx HookContext) (HookResult, error) {
			mu.Lock()
			order = append(order, "aborter")
			mu.Unlock()
			return Abort("blocked"), nil
		},
	}))
	require.NoError(t, mgr.Register(recordingHandler("never", 1, &mu, &order)))

	result, err := mgr.Dispatch(context.Background(), NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)
	assert.True(t, result.IsAbort())
	assert.Equal(t, "blocked", result.AbortReason())
	assert.Equal(t, []string{"first", "aborter"}, order, "lower-priority handler must not run after an abort")
}

func TestDispatchParallelRunsEveryEnabledHandler(t *testing.T) {
	mgr := NewManager(NewHookConfig().Parallel())
	var mu sync.Mutex
	var order []string

	require.NoError(t, mgr.Register(recordingHandler("a", 1, &mu, &order)))
	require.NoError(t, mgr.Register(recordingHandler("b", 2, &mu, &order)))
	require.NoError(t, mgr.Register(recordingHandler("c", 3, &mu, &order)))

	result, err := mgr.Dispatch(context.Background(), NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)
	assert.True(t, result.IsContinue())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, order)
}

func TestDispatchParallelCollapsesToFirstAbortInPriorityOrder(t *testing.T) {
	mgr := NewManager(NewHookConfig().Parallel())
	abortHook := Custom("test.hook")

	require.NoError(t, mgr.Register(&fakeHandler{
		name: "low", hook: abortHook, priority: 1,
		fn: func(ctx context.Context, hctx HookContext) (HookResult, error) { return Abort("low-reason"), nil },
	}))
	require.NoError(t, mgr.Register(&fakeHandler{
		name: "high", hook: abortHook, priority: 10,
		fn: func(ctx context.Context, hctx HookContext) (HookResult, error) { return Abort("high-reason"), nil },
	}))

	result, err := mgr.Dispatch(context.Background(), NewHookContext(abortHook, NoData()))
	require.NoError(t, err)
	assert.True(t, result.IsAbort())
	assert.Equal(t, "high-reason", result.AbortReason(), "collapse picks the first abort in priority order")
}

func TestDispatchOnCancelledContextAbortsWithoutError(t *testing.T) {
	mgr := NewManager(NewHookConfig())
	var mu sync.Mutex
	var order []string
	require.NoError(t, mgr.Register(recordingHandler("never", 1, &mu, &order)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := mgr.Dispatch(ctx, NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)
	assert.True(t, result.IsAbort())
	assert.Equal(t, "cancelled", result.AbortReason())
	assert.Empty(t, order, "a cancelled dispatch must not invoke any handler")
}

func TestDispatchDisabledPipelineIsANoOp(t *testing.T) {
	mgr := NewManager(NewHookConfig().Disabled())
	var mu sync.Mutex
	var order []string
	require.NoError(t, mgr.Register(recordingHandler("never", 1, &mu, &order)))

	result, err := mgr.Dispatch(context.Background(), NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)
	assert.True(t, result.IsContinue())
	assert.Empty(t, order)
}

func TestSetEnabledSkipsHandlerWithoutUnregistering(t *testing.T) {
	mgr := NewManager(NewHookConfig())
	var mu sync.Mutex
	var order []string
	require.NoError(t, mgr.Register(recordingHandler("toggled", 1, &mu, &order)))

	mgr.SetEnabled("toggled", false)
	_, err := mgr.Dispatch(context.Background(), NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)
	assert.Empty(t, order)

	require.Len(t, mgr.ListHandlers(), 1, "disabling must not remove the registration")
	assert.False(t, mgr.ListHandlers()[0].Enabled)
}

func TestRegisterFailsAtMaxHandlers(t *testing.T) {
	mgr := NewManager(NewHookConfig().WithMaxHandlers(1))
	var mu sync.Mutex
	var order []string
	require.NoError(t, mgr.Register(recordingHandler("first", 1, &mu, &order)))
	err := mgr.Register(recordingHandler("second", 1, &mu, &order))
	assert.Error(t, err)
}

func TestHistoryRecordsEachDispatchedExecution(t *testing.T) {
	mgr := NewManager(NewHookConfig())
	var mu sync.Mutex
	var order []string
	require.NoError(t, mgr.Register(recordingHandler("a", 1, &mu, &order)))

	_, err := mgr.Dispatch(context.Background(), NewHookContext(Custom("test.hook"), NoData()))
	require.NoError(t, err)

	history := mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].HandlerName)
	assert.True(t, history[0].IsSuccessful())
}
