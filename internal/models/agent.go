package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// Agent is the persistent identity of a registered adapter: a unique id, a
// unique human-readable name, its vendor kind, opaque config, and creation
// time. Mutated only via explicit update; deleted by unregister.
type Agent struct {
	id        uuid.UUID
	name      string
	kind      AgentKind
	config    json.RawMessage
	createdAt time.Time
}

// AgentConfig carries the fields needed to construct a new Agent.
type AgentConfig struct {
	Name      string
	Kind      AgentKind
	Config    json.RawMessage
	CreatedAt time.Time
}

// NewAgent validates cfg and constructs an Agent with a freshly generated id.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Name == "" {
		return nil, &rimuruerrors.ValidationError{Detail: "agent name must not be empty"}
	}
	if cfg.Kind == "" {
		return nil, &rimuruerrors.ValidationError{Detail: "agent kind must not be empty"}
	}
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	config := cfg.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	return &Agent{
		id:        uuid.New(),
		name:      cfg.Name,
		kind:      cfg.Kind,
		config:    config,
		createdAt: createdAt,
	}, nil
}

func (a *Agent) ID() uuid.UUID          { return a.id }
func (a *Agent) Name() string           { return a.name }
func (a *Agent) Kind() AgentKind        { return a.kind }
func (a *Agent) Config() json.RawMessage { return a.config }
func (a *Agent) CreatedAt() time.Time   { return a.createdAt }

// UpdateConfig replaces the opaque config blob; the only supported mutation.
func (a *Agent) UpdateConfig(config json.RawMessage) {
	a.config = config
}
