package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kuzudb/go-kuzu"

	"github.com/rimuru/agentctl/internal/models"
	"github.com/rimuru/agentctl/internal/repositories"
)

// SessionRepository is the kuzu-backed repositories.SessionRepository for
// finalized session history rows.
type SessionRepository struct {
	mgr *Manager
}

func NewSessionRepository(mgr *Manager) repositories.SessionRepository {
	return &SessionRepository{mgr: mgr}
}

func (r *SessionRepository) Save(ctx context.Context, s models.SessionHistory) error {
	var costUSD *float64
	if s.CostUSD != nil {
		costUSD = s.CostUSD
	}
	cypher := fmt.Sprintf(`
		CREATE (s:Session {
			session_id: %s, kind: %s, started_at: %s, ended_at: %s,
			total_input_tokens: %d, total_output_tokens: %d,
			model_name: %s, cost_usd: %s, project_path: %s
		});
	`,
		quoteString(s.SessionID), quoteString(string(s.Kind)), formatTime(s.StartedAt), formatOptionalTime(s.EndedAt),
		s.TotalInputTokens, s.TotalOutputTokens,
		quoteString(s.ModelName), formatOptionalFloat(costUSD), quoteString(s.ProjectPath),
	)
	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*models.SessionHistory, error) {
	cypher := fmt.Sprintf(`
		MATCH (s:Session {session_id: %s})
		RETURN s.session_id, s.kind, s.started_at, s.ended_at, s.total_input_tokens,
			s.total_output_tokens, s.model_name, s.cost_usd, s.project_path;
	`, quoteString(sessionID))

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", sessionID, err)
	}
	defer result.Close()

	if !result.HasNext() {
		return nil, repositories.ErrSessionNotFound
	}
	record, err := result.Next()
	if err != nil {
		return nil, fmt.Errorf("read session record: %w", err)
	}
	return recordToSessionHistory(record), nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	cypher := fmt.Sprintf(`MATCH (s:Session {session_id: %s}) DELETE s;`, quoteString(sessionID))
	_, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (r *SessionRepository) FindByFilter(ctx context.Context, filter repositories.SessionFilter) ([]models.SessionHistory, error) {
	cypher, err := r.buildFilterQuery(filter, "")
	if err != nil {
		return nil, err
	}
	return r.executeFindQuery(ctx, cypher)
}

func (r *SessionRepository) FindWithSort(ctx context.Context, filter repositories.SessionFilter, sortBy repositories.SessionSortBy, order repositories.SessionSortOrder) ([]models.SessionHistory, error) {
	orderClause := fmt.Sprintf(" ORDER BY s.%s %s", sortBy, orderKeyword(order))
	cypher, err := r.buildFilterQuery(filter, orderClause)
	if err != nil {
		return nil, err
	}
	return r.executeFindQuery(ctx, cypher)
}

func (r *SessionRepository) FindRecent(ctx context.Context, limit int) ([]models.SessionHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	cypher := fmt.Sprintf(`
		MATCH (s:Session)
		RETURN s.session_id, s.kind, s.started_at, s.ended_at, s.total_input_tokens,
			s.total_output_tokens, s.model_name, s.cost_usd, s.project_path
		ORDER BY s.started_at DESC LIMIT %d;
	`, limit)
	return r.executeFindQuery(ctx, cypher)
}

func (r *SessionRepository) CountByTimeRange(ctx context.Context, start, end time.Time) (int64, error) {
	cypher := fmt.Sprintf(`
		MATCH (s:Session) WHERE s.started_at >= %s AND s.started_at <= %s
		RETURN COUNT(s);
	`, formatTime(start), formatTime(end))

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return 0, fmt.Errorf("count sessions in range: %w", err)
	}
	defer result.Close()
	if !result.HasNext() {
		return 0, nil
	}
	record, err := result.Next()
	if err != nil {
		return 0, fmt.Errorf("read count record: %w", err)
	}
	return record[0].(int64), nil
}

func (r *SessionRepository) SaveBatch(ctx context.Context, sessions []models.SessionHistory) error {
	return r.mgr.WithTransaction(ctx, func(conn *kuzu.Connection) error {
		for _, s := range sessions {
			if err := r.Save(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SessionRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	cypher := fmt.Sprintf(`
		MATCH (s:Session) WHERE s.started_at < %s
		WITH s, 1 AS one
		DELETE s
		RETURN SUM(one);
	`, formatTime(before))

	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return 0, fmt.Errorf("delete sessions before %s: %w", before, err)
	}
	defer result.Close()
	if !result.HasNext() {
		return 0, nil
	}
	record, err := result.Next()
	if err != nil {
		return 0, fmt.Errorf("read deleted-count record: %w", err)
	}
	return record[0].(int64), nil
}

func (r *SessionRepository) WithTransaction(ctx context.Context, fn func(repo repositories.SessionRepository) error) error {
	return r.mgr.WithTransaction(ctx, func(conn *kuzu.Connection) error {
		return fn(&SessionRepository{mgr: r.mgr})
	})
}

func (r *SessionRepository) buildFilterQuery(filter repositories.SessionFilter, orderClause string) (string, error) {
	cypher := "MATCH (s:Session)"
	var where []string
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf("s.kind = %s", quoteString(string(filter.Kind))))
	}
	if !filter.StartAfter.IsZero() {
		where = append(where, fmt.Sprintf("s.started_at >= %s", formatTime(filter.StartAfter)))
	}
	if !filter.StartBefore.IsZero() {
		where = append(where, fmt.Sprintf("s.started_at <= %s", formatTime(filter.StartBefore)))
	}
	if !filter.EndAfter.IsZero() {
		where = append(where, fmt.Sprintf("s.ended_at >= %s", formatTime(filter.EndAfter)))
	}
	if !filter.EndBefore.IsZero() {
		where = append(where, fmt.Sprintf("s.ended_at <= %s", formatTime(filter.EndBefore)))
	}
	if filter.IsActive != nil {
		if *filter.IsActive {
			where = append(where, "s.ended_at IS NULL")
		} else {
			where = append(where, "s.ended_at IS NOT NULL")
		}
	}
	if len(where) > 0 {
		cypher += " WHERE " + joinAnd(where)
	}
	cypher += `
		RETURN s.session_id, s.kind, s.started_at, s.ended_at, s.total_input_tokens,
			s.total_output_tokens, s.model_name, s.cost_usd, s.project_path`
	cypher += orderClause
	if filter.Limit > 0 {
		cypher += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		cypher += fmt.Sprintf(" SKIP %d", filter.Offset)
	}
	cypher += ";"
	return cypher, nil
}

func (r *SessionRepository) executeFindQuery(ctx context.Context, cypher string) ([]models.SessionHistory, error) {
	result, err := r.mgr.Query(ctx, cypher)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer result.Close()

	var out []models.SessionHistory
	for result.HasNext() {
		record, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("read session record: %w", err)
		}
		out = append(out, *recordToSessionHistory(record))
	}
	return out, nil
}

func recordToSessionHistory(record []interface{}) *models.SessionHistory {
	var endedAt *time.Time
	if t, ok := record[3].(time.Time); ok {
		endedAt = &t
	}
	var costUSD *float64
	if c, ok := record[7].(float64); ok {
		costUSD = &c
	}
	return &models.SessionHistory{
		SessionID:         record[0].(string),
		Kind:              models.AgentKind(record[1].(string)),
		StartedAt:         record[2].(time.Time),
		EndedAt:           endedAt,
		TotalInputTokens:  record[4].(int64),
		TotalOutputTokens: record[5].(int64),
		ModelName:         record[6].(string),
		CostUSD:           costUSD,
		ProjectPath:       record[8].(string),
	}
}

func orderKeyword(order repositories.SessionSortOrder) string {
	if order == repositories.SessionSortDesc {
		return "DESC"
	}
	return "ASC"
}
