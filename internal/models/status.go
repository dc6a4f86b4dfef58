package models

import "time"

// AdapterStatus is held inside each adapter and observable via a read-only accessor.
type AdapterStatus string

const (
	StatusUnknown      AdapterStatus = "unknown"
	StatusDisconnected AdapterStatus = "disconnected"
	StatusConnected    AdapterStatus = "connected"
	StatusError        AdapterStatus = "error"
)

// AdapterHealth is a point-in-time health snapshot held by the supervisor and
// updated on every health tick.
type AdapterHealth struct {
	Name                string
	Kind                AgentKind
	Status              AdapterStatus
	Healthy             bool
	LastCheck           time.Time
	ConsecutiveFailures int
	ErrorMessage        string
}

// AdapterInfo is a static descriptor of a registered adapter.
type AdapterInfo struct {
	Name string
	Kind AgentKind
}

// ActiveSession is the wire shape an aggregator consumes from an adapter for a
// currently running session.
type ActiveSession struct {
	SessionID      string
	Kind           AgentKind
	StartedAt      time.Time
	CurrentTokens  int64
	ModelName      string
	ProjectPath    string
}

// DurationSeconds derives elapsed wall-clock seconds from StartedAt to now.
func (a ActiveSession) DurationSeconds() int64 {
	return int64(time.Since(a.StartedAt).Seconds())
}

// SessionHistory is the wire shape an adapter returns for a terminated session.
type SessionHistory struct {
	SessionID         string
	Kind              AgentKind
	StartedAt         time.Time
	EndedAt           *time.Time
	TotalInputTokens  int64
	TotalOutputTokens int64
	ModelName         string
	CostUSD           *float64
	ProjectPath       string
}

// TotalTokens sums the terminal input/output token counts.
func (h SessionHistory) TotalTokens() int64 {
	return h.TotalInputTokens + h.TotalOutputTokens
}

// DurationSeconds returns the elapsed seconds between StartedAt and EndedAt, or
// nil if the session has no recorded end.
func (h SessionHistory) DurationSeconds() *int64 {
	if h.EndedAt == nil {
		return nil
	}
	d := int64(h.EndedAt.Sub(h.StartedAt).Seconds())
	return &d
}
