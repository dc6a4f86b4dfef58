package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rimuru/agentctl/internal/rimuruerrors"
)

// CostRecord is an append-only record of one billable unit of agent usage.
// Never mutated after creation.
type CostRecord struct {
	id           uuid.UUID
	sessionID    uuid.UUID
	agentID      uuid.UUID
	modelName    string
	inputTokens  int64
	outputTokens int64
	costUSD      decimal.Decimal
	recordedAt   time.Time
}

// CostRecordConfig carries the fields needed to construct a new CostRecord.
type CostRecordConfig struct {
	SessionID    uuid.UUID
	AgentID      uuid.UUID
	ModelName    string
	InputTokens  int64
	OutputTokens int64
	CostUSD      decimal.Decimal
	RecordedAt   time.Time
}

// NewCostRecord validates cfg and constructs a CostRecord with a fresh id.
// Enforces the invariant input_tokens + output_tokens >= 0 and cost_usd >= 0.
func NewCostRecord(cfg CostRecordConfig) (*CostRecord, error) {
	if cfg.InputTokens+cfg.OutputTokens < 0 {
		return nil, &rimuruerrors.ValidationError{Detail: "token counts must not sum negative"}
	}
	if cfg.CostUSD.IsNegative() {
		return nil, &rimuruerrors.ValidationError{Detail: "cost_usd must not be negative"}
	}
	recordedAt := cfg.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	return &CostRecord{
		id:           uuid.New(),
		sessionID:    cfg.SessionID,
		agentID:      cfg.AgentID,
		modelName:    cfg.ModelName,
		inputTokens:  cfg.InputTokens,
		outputTokens: cfg.OutputTokens,
		costUSD:      cfg.CostUSD,
		recordedAt:   recordedAt,
	}, nil
}

// HydrateCostRecord reconstructs a CostRecord read back from storage,
// preserving its original id rather than minting a new one.
func HydrateCostRecord(id, sessionID, agentID uuid.UUID, modelName string, inputTokens, outputTokens int64, costUSD decimal.Decimal, recordedAt time.Time) *CostRecord {
	return &CostRecord{
		id:           id,
		sessionID:    sessionID,
		agentID:      agentID,
		modelName:    modelName,
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
		costUSD:      costUSD,
		recordedAt:   recordedAt,
	}
}

func (c *CostRecord) ID() uuid.UUID             { return c.id }
func (c *CostRecord) SessionID() uuid.UUID      { return c.sessionID }
func (c *CostRecord) AgentID() uuid.UUID        { return c.agentID }
func (c *CostRecord) ModelName() string         { return c.modelName }
func (c *CostRecord) InputTokens() int64        { return c.inputTokens }
func (c *CostRecord) OutputTokens() int64       { return c.outputTokens }
func (c *CostRecord) CostUSD() decimal.Decimal  { return c.costUSD }
func (c *CostRecord) RecordedAt() time.Time     { return c.recordedAt }
func (c *CostRecord) TotalTokens() int64        { return c.inputTokens + c.outputTokens }

// ModelInfo is a catalog entry refreshed as a whole by sync operations;
// individual records are not patched.
type ModelInfo struct {
	ID              uuid.UUID
	Provider        string
	ModelName       string
	InputRatePer1K  decimal.Decimal
	OutputRatePer1K decimal.Decimal
	ContextWindow   int64
}
