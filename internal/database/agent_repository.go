package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kuzudb/go-kuzu"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/repositories"
)

// AgentRepository is the kuzu-backed repositories.AgentRepository, storing
// registration and latest health snapshot per adapter name.
type AgentRepository struct {
	mgr *Manager
}

func NewAgentRepository(mgr *Manager) repositories.AgentRepository {
	return &AgentRepository{mgr: mgr}
}

func (r *AgentRepository) Save(ctx context.Context, info models.AdapterInfo) error {
	cypher := fmt.Sprintf(`
		MERGE (a:Agent {name: %s})
		ON CREATE SET a.kind = %s, a.status = 'unknown', a.healthy = false,
			a.last_check = %s, a.consecutive_failures = 0, a.error_message = ''
		ON MATCH SET a.kind = %s;
	`, quoteString(info.Name), quoteString(string(info.Kind)), formatTime(time.Now()), quoteString(string(info.Kind)))

	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", info.Name, err)
	}
	return nil
}

func (r *AgentRepository) FindByName(ctx context.Context, name string) (*models.AdapterInfo, error) {
	cypher := fmt.Sprintf(`MATCH (a:Agent {name: %s}) RETURN a.name, a.kind;`, quoteString(name))
	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find agent %s: %w", name, err)
	}
	defer result.Close()

	if !result.HasNext() {
		return nil, repositories.ErrAgentNotFound
	}
	record, err := result.Next()
	if err != nil {
		return nil, fmt.Errorf("read agent record: %w", err)
	}
	return &models.AdapterInfo{
		Name: record[0].(string),
		Kind: models.AgentKind(record[1].(string)),
	}, nil
}

func (r *AgentRepository) FindByFilter(ctx context.Context, filter repositories.AgentFilter) ([]models.AdapterInfo, error) {
	cypher := "MATCH (a:Agent)"
	where := []string{}
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf("a.kind = %s", quoteString(string(filter.Kind))))
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("a.status = %s", quoteString(string(filter.Status))))
	}
	if len(where) > 0 {
		cypher += " WHERE " + joinAnd(where)
	}
	cypher += " RETURN a.name, a.kind"
	if filter.Limit > 0 {
		cypher += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		cypher += fmt.Sprintf(" SKIP %d", filter.Offset)
	}
	cypher += ";"

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find agents by filter: %w", err)
	}
	defer result.Close()

	var out []models.AdapterInfo
	for result.HasNext() {
		record, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("read agent record: %w", err)
		}
		out = append(out, models.AdapterInfo{
			Name: record[0].(string),
			Kind: models.AgentKind(record[1].(string)),
		})
	}
	return out, nil
}

func (r *AgentRepository) Delete(ctx context.Context, name string) error {
	cypher := fmt.Sprintf(`MATCH (a:Agent {name: %s}) DELETE a;`, quoteString(name))
	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", name, err)
	}
	return nil
}

func (r *AgentRepository) SaveHealth(ctx context.Context, health models.AdapterHealth) error {
	cypher := fmt.Sprintf(`
		MERGE (a:Agent {name: %s})
		ON CREATE SET a.kind = %s
		SET a.status = %s, a.healthy = %s, a.last_check = %s,
			a.consecutive_failures = %d, a.error_message = %s;
	`,
		quoteString(health.Name), quoteString(string(health.Kind)),
		quoteString(string(health.Status)), formatBool(health.Healthy), formatTime(health.LastCheck),
		health.ConsecutiveFailures, quoteString(health.ErrorMessage),
	)
	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("save agent health %s: %w", health.Name, err)
	}
	return nil
}

func (r *AgentRepository) FindHealth(ctx context.Context, name string) (*models.AdapterHealth, error) {
	cypher := fmt.Sprintf(`
		MATCH (a:Agent {name: %s})
		RETURN a.name, a.kind, a.status, a.healthy, a.last_check, a.consecutive_failures, a.error_message;
	`, quoteString(name))

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find agent health %s: %w", name, err)
	}
	defer result.Close()

	if !result.HasNext() {
		return nil, repositories.ErrAgentNotFound
	}
	record, err := result.Next()
	if err != nil {
		return nil, fmt.Errorf("read agent health record: %w", err)
	}
	return &models.AdapterHealth{
		Name:                record[0].(string),
		Kind:                models.AgentKind(record[1].(string)),
		Status:              models.AdapterStatus(record[2].(string)),
		Healthy:             record[3].(bool),
		LastCheck:           record[4].(time.Time),
		ConsecutiveFailures: int(record[5].(int64)),
		ErrorMessage:        record[6].(string),
	}, nil
}

// WithTransaction brackets fn in BEGIN/COMMIT on a dedicated connection;
// fn's own queries still go through the shared pool rather than that
// connection, so this buys atomicity of the bracket but not per-query
// isolation from concurrent pool users — acceptable for the batch-style
// callers this exists for (SaveBatch-style multi-agent registration).
func (r *AgentRepository) WithTransaction(ctx context.Context, fn func(repo repositories.AgentRepository) error) error {
	return r.mgr.WithTransaction(ctx, func(conn *kuzu.Connection) error {
		return fn(&AgentRepository{mgr: r.mgr})
	})
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}
