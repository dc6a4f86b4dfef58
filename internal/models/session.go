package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// SessionStatus is the closed set of terminal/non-terminal session states.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status represents an ended session.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// Session is a relation to an Agent by id only (no back-pointer), a status, and
// opaque metadata. A Session is Active iff EndedAt is unset; End is the only
// transition and is idempotent once terminal.
type Session struct {
	id        uuid.UUID
	agentID   uuid.UUID
	status    SessionStatus
	startedAt time.Time
	endedAt   *time.Time
	metadata  json.RawMessage
}

// SessionConfig carries the fields needed to construct a new Session.
type SessionConfig struct {
	AgentID   uuid.UUID
	StartedAt time.Time
	Metadata  json.RawMessage
}

// NewSession validates cfg and constructs an Active session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.AgentID == uuid.Nil {
		return nil, &rimuruerrors.ValidationError{Detail: "session requires a non-nil agent id"}
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	metadata := cfg.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	return &Session{
		id:        uuid.New(),
		agentID:   cfg.AgentID,
		status:    SessionActive,
		startedAt: startedAt,
		metadata:  metadata,
	}, nil
}

func (s *Session) ID() uuid.UUID             { return s.id }
func (s *Session) AgentID() uuid.UUID        { return s.agentID }
func (s *Session) Status() SessionStatus     { return s.status }
func (s *Session) StartedAt() time.Time      { return s.startedAt }
func (s *Session) EndedAt() *time.Time       { return s.endedAt }
func (s *Session) Metadata() json.RawMessage { return s.metadata }
func (s *Session) IsActive() bool            { return s.endedAt == nil }

// End transitions the session to a terminal status. Idempotent once terminal:
// calling End again on an already-ended session is a no-op regardless of the
// status passed.
func (s *Session) End(status SessionStatus) error {
	if !status.IsTerminal() {
		return &rimuruerrors.ValidationError{Detail: "End requires a terminal status"}
	}
	if s.endedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	s.endedAt = &now
	s.status = status
	return nil
}

// DurationSeconds returns the elapsed wall-clock seconds since StartedAt, using
// EndedAt if set or now otherwise.
func (s *Session) DurationSeconds() int64 {
	end := time.Now().UTC()
	if s.endedAt != nil {
		end = *s.endedAt
	}
	return int64(end.Sub(s.startedAt).Seconds())
}
