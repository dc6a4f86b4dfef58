package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kuzudb/go-kuzu"
	"github.com/shopspring/decimal"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/repositories"
)

// CostRecordRepository is the kuzu-backed repositories.CostRecordRepository,
// storing the append-only cost ledger.
type CostRecordRepository struct {
	mgr *Manager
}

func NewCostRecordRepository(mgr *Manager) repositories.CostRecordRepository {
	return &CostRecordRepository{mgr: mgr}
}

func (r *CostRecordRepository) Save(ctx context.Context, rec *models.CostRecord) error {
	cost, _ := rec.CostUSD().Float64()
	cypher := fmt.Sprintf(`
		CREATE (c:CostRecord {
			id: %s, session_id: %s, agent_id: %s, model_name: %s,
			input_tokens: %d, output_tokens: %d, cost_usd: %f, recorded_at: %s
		});
	`,
		quoteString(rec.ID().String()), quoteString(rec.SessionID().String()), quoteString(rec.AgentID().String()),
		quoteString(rec.ModelName()), rec.InputTokens(), rec.OutputTokens(), cost, formatTime(rec.RecordedAt()),
	)
	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("save cost record %s: %w", rec.ID(), err)
	}
	return nil
}

func (r *CostRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CostRecord, error) {
	cypher := fmt.Sprintf(`
		MATCH (c:CostRecord {id: %s})
		RETURN c.id, c.session_id, c.agent_id, c.model_name, c.input_tokens, c.output_tokens, c.cost_usd, c.recorded_at;
	`, quoteString(id.String()))

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find cost record %s: %w", id, err)
	}
	defer result.Close()

	if !result.HasNext() {
		return nil, repositories.ErrCostNotFound
	}
	record, err := result.Next()
	if err != nil {
		return nil, fmt.Errorf("read cost record: %w", err)
	}
	return recordToCostRecord(record)
}

func (r *CostRecordRepository) FindBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.CostRecord, error) {
	cypher := fmt.Sprintf(`
		MATCH (c:CostRecord {session_id: %s})
		RETURN c.id, c.session_id, c.agent_id, c.model_name, c.input_tokens, c.output_tokens, c.cost_usd, c.recorded_at;
	`, quoteString(sessionID.String()))
	return r.executeFindQuery(ctx, cypher)
}

func (r *CostRecordRepository) FindByAgent(ctx context.Context, agentID uuid.UUID, start, end time.Time) ([]*models.CostRecord, error) {
	cypher := fmt.Sprintf(`
		MATCH (c:CostRecord {agent_id: %s}) WHERE c.recorded_at >= %s AND c.recorded_at <= %s
		RETURN c.id, c.session_id, c.agent_id, c.model_name, c.input_tokens, c.output_tokens, c.cost_usd, c.recorded_at;
	`, quoteString(agentID.String()), formatTime(start), formatTime(end))
	return r.executeFindQuery(ctx, cypher)
}

func (r *CostRecordRepository) FindByTimeRange(ctx context.Context, start, end time.Time) ([]*models.CostRecord, error) {
	cypher := fmt.Sprintf(`
		MATCH (c:CostRecord) WHERE c.recorded_at >= %s AND c.recorded_at <= %s
		RETURN c.id, c.session_id, c.agent_id, c.model_name, c.input_tokens, c.output_tokens, c.cost_usd, c.recorded_at;
	`, formatTime(start), formatTime(end))
	return r.executeFindQuery(ctx, cypher)
}

func (r *CostRecordRepository) SumCostByModel(ctx context.Context, start, end time.Time) (map[string]float64, error) {
	cypher := fmt.Sprintf(`
		MATCH (c:CostRecord) WHERE c.recorded_at >= %s AND c.recorded_at <= %s
		RETURN c.model_name, SUM(c.cost_usd);
	`, formatTime(start), formatTime(end))

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("sum cost by model: %w", err)
	}
	defer result.Close()

	out := map[string]float64{}
	for result.HasNext() {
		record, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("read sum-by-model record: %w", err)
		}
		out[record[0].(string)] = record[1].(float64)
	}
	return out, nil
}

func (r *CostRecordRepository) SaveBatch(ctx context.Context, records []*models.CostRecord) error {
	return r.mgr.WithTransaction(ctx, func(conn *kuzu.Connection) error {
		for _, rec := range records {
			if err := r.Save(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CostRecordRepository) WithTransaction(ctx context.Context, fn func(repo repositories.CostRecordRepository) error) error {
	return r.mgr.WithTransaction(ctx, func(conn *kuzu.Connection) error {
		return fn(&CostRecordRepository{mgr: r.mgr})
	})
}

func (r *CostRecordRepository) executeFindQuery(ctx context.Context, cypher string) ([]*models.CostRecord, error) {
	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find cost records: %w", err)
	}
	defer result.Close()

	var out []*models.CostRecord
	for result.HasNext() {
		record, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("read cost record: %w", err)
		}
		rec, err := recordToCostRecord(record)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordToCostRecord(record []interface{}) (*models.CostRecord, error) {
	id, err := uuid.Parse(record[0].(string))
	if err != nil {
		return nil, fmt.Errorf("parse cost record id: %w", err)
	}
	sessionID, err := uuid.Parse(record[1].(string))
	if err != nil {
		return nil, fmt.Errorf("parse cost record session_id: %w", err)
	}
	agentID, err := uuid.Parse(record[2].(string))
	if err != nil {
		return nil, fmt.Errorf("parse cost record agent_id: %w", err)
	}

	return models.HydrateCostRecord(
		id, sessionID, agentID,
		record[3].(string), record[4].(int64), record[5].(int64),
		decimal.NewFromFloat(record[6].(float64)), record[7].(time.Time),
	), nil
}
