package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kuzudb/go-kuzu"
	"github.com/shopspring/decimal"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/repositories"
)

// ModelRepository is the kuzu-backed repositories.ModelRepository for the
// provider rate-card catalog.
type ModelRepository struct {
	mgr *Manager
}

func NewModelRepository(mgr *Manager) repositories.ModelRepository {
	return &ModelRepository{mgr: mgr}
}

func (r *ModelRepository) Save(ctx context.Context, m models.ModelInfo) error {
	inputRate, _ := m.InputRatePer1K.Float64()
	outputRate, _ := m.OutputRatePer1K.Float64()
	cypher := fmt.Sprintf(`
		MERGE (m:Model {id: %s})
		SET m.provider = %s, m.model_name = %s, m.input_rate_per_1k = %f,
			m.output_rate_per_1k = %f, m.context_window = %d;
	`, quoteString(m.ID.String()), quoteString(m.Provider), quoteString(m.ModelName), inputRate, outputRate, m.ContextWindow)

	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("save model %s: %w", m.ModelName, err)
	}
	return nil
}

func (r *ModelRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ModelInfo, error) {
	cypher := fmt.Sprintf(`
		MATCH (m:Model {id: %s})
		RETURN m.id, m.provider, m.model_name, m.input_rate_per_1k, m.output_rate_per_1k, m.context_window;
	`, quoteString(id.String()))
	return r.findOne(ctx, cypher)
}

func (r *ModelRepository) FindByName(ctx context.Context, provider, modelName string) (*models.ModelInfo, error) {
	cypher := fmt.Sprintf(`
		MATCH (m:Model {provider: %s, model_name: %s})
		RETURN m.id, m.provider, m.model_name, m.input_rate_per_1k, m.output_rate_per_1k, m.context_window;
	`, quoteString(provider), quoteString(modelName))
	return r.findOne(ctx, cypher)
}

func (r *ModelRepository) List(ctx context.Context) ([]models.ModelInfo, error) {
	cypher := `
		MATCH (m:Model)
		RETURN m.id, m.provider, m.model_name, m.input_rate_per_1k, m.output_rate_per_1k, m.context_window;
	`
	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer result.Close()

	var out []models.ModelInfo
	for result.HasNext() {
		record, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("read model record: %w", err)
		}
		m, err := recordToModelInfo(record)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (r *ModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cypher := fmt.Sprintf(`MATCH (m:Model {id: %s}) DELETE m;`, quoteString(id.String()))
	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	return nil
}

// ReplaceAll swaps the whole catalog atomically, matching the "sync refreshes
// the catalog as a whole" invariant on ModelInfo.
func (r *ModelRepository) ReplaceAll(ctx context.Context, catalog []models.ModelInfo) error {
	return r.mgr.WithTransaction(ctx, func(conn *kuzu.Connection) error {
		if _, err := conn.Query("MATCH (m:Model) DELETE m;"); err != nil {
			return fmt.Errorf("clear model catalog: %w", err)
		}
		for _, m := range catalog {
			inputRate, _ := m.InputRatePer1K.Float64()
			outputRate, _ := m.OutputRatePer1K.Float64()
			cypher := fmt.Sprintf(`
				MERGE (m:Model {id: %s})
				SET m.provider = %s, m.model_name = %s, m.input_rate_per_1k = %f,
					m.output_rate_per_1k = %f, m.context_window = %d;
			`, quoteString(m.ID.String()), quoteString(m.Provider), quoteString(m.ModelName), inputRate, outputRate, m.ContextWindow)
			if _, err := conn.Query(cypher); err != nil {
				return fmt.Errorf("save model %s: %w", m.ModelName, err)
			}
		}
		return nil
	})
}

func (r *ModelRepository) findOne(ctx context.Context, cypher string) (*models.ModelInfo, error) {
	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find model: %w", err)
	}
	defer result.Close()

	if !result.HasNext() {
		return nil, repositories.ErrModelNotFound
	}
	record, err := result.Next()
	if err != nil {
		return nil, fmt.Errorf("read model record: %w", err)
	}
	return recordToModelInfo(record)
}

func recordToModelInfo(record []interface{}) (*models.ModelInfo, error) {
	id, err := uuid.Parse(record[0].(string))
	if err != nil {
		return nil, fmt.Errorf("parse model id: %w", err)
	}
	return &models.ModelInfo{
		ID:              id,
		Provider:        record[1].(string),
		ModelName:       record[2].(string),
		InputRatePer1K:  decimal.NewFromFloat(record[3].(float64)),
		OutputRatePer1K: decimal.NewFromFloat(record[4].(float64)),
		ContextWindow:   record[5].(int64),
	}, nil
}
