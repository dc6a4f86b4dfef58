// Package aggregator implements the Session Aggregator and Cost Aggregator
// (spec §4.E, §4.F): read-only fan-out views over the registry that merge
// per-adapter session/usage data into a single cross-vendor report.
package aggregator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/registry"
)

// UnifiedSession is one session reshaped into a vendor-agnostic view,
// sourced either from an adapter's currently-active session or its
// terminated history.
type UnifiedSession struct {
	SessionID         string
	AdapterName       string
	Kind              models.AgentKind
	StartedAt         time.Time
	EndedAt           *time.Time
	IsActive          bool
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalTokens       int64
	ModelName         string
	CostUSD           *float64
	ProjectPath       string
	DurationSeconds   *int64
}

func unifiedFromActive(adapterName string, active models.ActiveSession) UnifiedSession {
	d := active.DurationSeconds()
	return UnifiedSession{
		SessionID:        active.SessionID,
		AdapterName:      adapterName,
		Kind:             active.Kind,
		StartedAt:        active.StartedAt,
		IsActive:         true,
		TotalInputTokens: active.CurrentTokens,
		TotalTokens:      active.CurrentTokens,
		ModelName:        active.ModelName,
		ProjectPath:      active.ProjectPath,
		DurationSeconds:  &d,
	}
}

func unifiedFromHistory(adapterName string, h models.SessionHistory) UnifiedSession {
	return UnifiedSession{
		SessionID:         h.SessionID,
		AdapterName:       adapterName,
		Kind:              h.Kind,
		StartedAt:         h.StartedAt,
		EndedAt:           h.EndedAt,
		IsActive:          false,
		TotalInputTokens:  h.TotalInputTokens,
		TotalOutputTokens: h.TotalOutputTokens,
		TotalTokens:       h.TotalTokens(),
		ModelName:         h.ModelName,
		CostUSD:           h.CostUSD,
		ProjectPath:       h.ProjectPath,
		DurationSeconds:   h.DurationSeconds(),
	}
}

// SessionStats accumulates running totals and derived averages for a group
// of sessions. The zero value is the identity for AddSession.
type SessionStats struct {
	TotalSessions            int
	ActiveSessions           int
	CompletedSessions        int
	TotalDurationSeconds     int64
	AverageDurationSeconds   float64
	TotalTokens              int64
	AverageTokensPerSession  float64
	TotalCost                float64
	AverageCostPerSession    float64
}

// AddSession folds session into the running stats and recomputes averages.
func (s *SessionStats) AddSession(session UnifiedSession) {
	s.TotalSessions++
	if session.IsActive {
		s.ActiveSessions++
	} else {
		s.CompletedSessions++
	}
	if session.DurationSeconds != nil {
		s.TotalDurationSeconds += *session.DurationSeconds
	}
	s.TotalTokens += session.TotalTokens
	if session.CostUSD != nil {
		s.TotalCost += *session.CostUSD
	}
	s.recalculateAverages()
}

func (s *SessionStats) recalculateAverages() {
	if s.TotalSessions == 0 {
		return
	}
	n := float64(s.TotalSessions)
	s.AverageDurationSeconds = float64(s.TotalDurationSeconds) / n
	s.AverageTokensPerSession = float64(s.TotalTokens) / n
	s.AverageCostPerSession = s.TotalCost / n
}

// SessionReport groups a merged session set by time range, by adapter, by
// agent kind, and by model, alongside the flat session list.
type SessionReport struct {
	TimeRange  models.TimeRange
	StartTime  *time.Time
	EndTime    time.Time
	Stats      SessionStats
	ByAdapter  map[string]*SessionStats
	ByKind     map[models.AgentKind]*SessionStats
	ByModel    map[string]*SessionStats
	Sessions   []UnifiedSession
}

// NewSessionReport starts an empty report for the given range.
func NewSessionReport(tr models.TimeRange, startTime *time.Time) *SessionReport {
	return &SessionReport{
		TimeRange: tr,
		StartTime: startTime,
		EndTime:   time.Now(),
		ByAdapter: map[string]*SessionStats{},
		ByKind:    map[models.AgentKind]*SessionStats{},
		ByModel:   map[string]*SessionStats{},
	}
}

// AddSession folds session into the overall stats and every applicable
// breakdown, then appends it to the flat list.
func (r *SessionReport) AddSession(session UnifiedSession) {
	r.Stats.AddSession(session)

	if _, ok := r.ByAdapter[session.AdapterName]; !ok {
		r.ByAdapter[session.AdapterName] = &SessionStats{}
	}
	r.ByAdapter[session.AdapterName].AddSession(session)

	if _, ok := r.ByKind[session.Kind]; !ok {
		r.ByKind[session.Kind] = &SessionStats{}
	}
	r.ByKind[session.Kind].AddSession(session)

	if session.ModelName != "" {
		if _, ok := r.ByModel[session.ModelName]; !ok {
			r.ByModel[session.ModelName] = &SessionStats{}
		}
		r.ByModel[session.ModelName].AddSession(session)
	}

	r.Sessions = append(r.Sessions, session)
}

func (r *SessionReport) SortByStartTimeDesc() {
	sort.SliceStable(r.Sessions, func(i, j int) bool {
		return r.Sessions[i].StartedAt.After(r.Sessions[j].StartedAt)
	})
}

func (r *SessionReport) SortByCostDesc() {
	sort.SliceStable(r.Sessions, func(i, j int) bool {
		ci, cj := 0.0, 0.0
		if r.Sessions[i].CostUSD != nil {
			ci = *r.Sessions[i].CostUSD
		}
		if r.Sessions[j].CostUSD != nil {
			cj = *r.Sessions[j].CostUSD
		}
		return ci > cj
	})
}

func (r *SessionReport) SortByTokensDesc() {
	sort.SliceStable(r.Sessions, func(i, j int) bool {
		return r.Sessions[i].TotalTokens > r.Sessions[j].TotalTokens
	})
}

// SessionFilter narrows a session set by a conjunction of optional
// predicates; nil/zero fields are unconstrained.
type SessionFilter struct {
	AdapterNames           []string
	Kinds                  []models.AgentKind
	Models                 []string
	ActiveOnly             bool
	CompletedOnly          bool
	MinDurationSeconds     *int64
	MaxDurationSeconds     *int64
	MinTokens              *int64
	ProjectPathContains    string
}

func NewSessionFilter() SessionFilter { return SessionFilter{} }

func (f SessionFilter) WithAdapters(names []string) SessionFilter {
	f.AdapterNames = names
	return f
}

func (f SessionFilter) WithKinds(kinds []models.AgentKind) SessionFilter {
	f.Kinds = kinds
	return f
}

func (f SessionFilter) WithModels(models []string) SessionFilter {
	f.Models = models
	return f
}

func (f SessionFilter) ActiveOnlyFilter() SessionFilter {
	f.ActiveOnly = true
	f.CompletedOnly = false
	return f
}

func (f SessionFilter) CompletedOnlyFilter() SessionFilter {
	f.CompletedOnly = true
	f.ActiveOnly = false
	return f
}

func (f SessionFilter) WithMinDuration(seconds int64) SessionFilter {
	f.MinDurationSeconds = &seconds
	return f
}

func (f SessionFilter) WithMaxDuration(seconds int64) SessionFilter {
	f.MaxDurationSeconds = &seconds
	return f
}

func (f SessionFilter) WithMinTokens(tokens int64) SessionFilter {
	f.MinTokens = &tokens
	return f
}

func (f SessionFilter) WithProjectPath(contains string) SessionFilter {
	f.ProjectPathContains = contains
	return f
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsKind(list []models.AgentKind, v models.AgentKind) bool {
	for _, k := range list {
		if k == v {
			return true
		}
	}
	return false
}

// Matches reports whether session satisfies every configured predicate.
func (f SessionFilter) Matches(session UnifiedSession) bool {
	if f.AdapterNames != nil && !containsStr(f.AdapterNames, session.AdapterName) {
		return false
	}
	if f.Kinds != nil && !containsKind(f.Kinds, session.Kind) {
		return false
	}
	if f.Models != nil {
		if session.ModelName == "" || !containsStr(f.Models, session.ModelName) {
			return false
		}
	}
	if f.ActiveOnly && !session.IsActive {
		return false
	}
	if f.CompletedOnly && session.IsActive {
		return false
	}
	if f.MinDurationSeconds != nil {
		if session.DurationSeconds == nil || *session.DurationSeconds < *f.MinDurationSeconds {
			return false
		}
	}
	if f.MaxDurationSeconds != nil {
		if session.DurationSeconds != nil && *session.DurationSeconds > *f.MaxDurationSeconds {
			return false
		}
	}
	if f.MinTokens != nil && session.TotalTokens < *f.MinTokens {
		return false
	}
	if f.ProjectPathContains != "" {
		if session.ProjectPath == "" || !strings.Contains(session.ProjectPath, f.ProjectPathContains) {
			return false
		}
	}
	return true
}

// SessionAggregator is a read-only fan-out view over a shared registry.
// Holds no back-reference from the registry — the registry does not know
// aggregators exist.
type SessionAggregator struct {
	reg *registry.Registry
}

func NewSessionAggregator(reg *registry.Registry) *SessionAggregator {
	return &SessionAggregator{reg: reg}
}

// GetAllActiveSessions fans ActiveSessions out across every adapter and
// returns the merged, most-recent-first result.
func (a *SessionAggregator) GetAllActiveSessions(ctx context.Context) []UnifiedSession {
	var out []UnifiedSession
	for _, name := range a.reg.ListNames() {
		handle := a.reg.Get(name)
		if handle == nil {
			continue
		}
		sessions, err := handle.Adapter().ActiveSessions(ctx)
		if err != nil {
			continue
		}
		for _, s := range sessions {
			out = append(out, unifiedFromActive(name, s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (a *SessionAggregator) GetActiveSessionCount(ctx context.Context) int {
	return len(a.reg.GetAllActiveSessions(ctx))
}

// GetSessionHistory fans SessionHistory out using tr's anchor time, merges,
// sorts most-recent-first, THEN truncates to limit.
func (a *SessionAggregator) GetSessionHistory(ctx context.Context, limit *int, tr models.TimeRange) []UnifiedSession {
	return a.GetSessionHistorySince(ctx, limit, tr.ToDatetime())
}

func (a *SessionAggregator) GetSessionHistorySince(ctx context.Context, limit *int, since *time.Time) []UnifiedSession {
	var sinceRange *models.TimeRange
	if since != nil {
		sr := models.NewCustomTimeRange(*since, time.Now())
		sinceRange = &sr
	}

	var out []UnifiedSession
	for _, name := range a.reg.ListNames() {
		handle := a.reg.Get(name)
		if handle == nil {
			continue
		}
		history, err := handle.Adapter().SessionHistory(ctx, nil, sinceRange)
		if err != nil {
			continue
		}
		for _, h := range history {
			out = append(out, unifiedFromHistory(name, h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit != nil && *limit < len(out) {
		out = out[:*limit]
	}
	return out
}

// BuildReport merges active sessions and history for tr, filters through f
// if non-nil, and folds the result into a breakdown report.
func (a *SessionAggregator) BuildReport(ctx context.Context, tr models.TimeRange, f *SessionFilter) *SessionReport {
	report := NewSessionReport(tr, tr.ToDatetime())

	sessions := a.GetSessionHistory(ctx, nil, tr)
	sessions = append(a.GetAllActiveSessions(ctx), sessions...)

	for _, s := range sessions {
		if f != nil && !f.Matches(s) {
			continue
		}
		report.AddSession(s)
	}
	return report
}
