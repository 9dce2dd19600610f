package repository

import (
	"context"
	"errors"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `id, name, priority, match_language, match_budget_range, match_lead_source,
	match_lead_segment, match_page_type, target_agent_id, is_active, fallback_to_broadcast,
	created_at, updated_at`

func scanRule(row pgx.Row) (domain.RoutingRule, error) {
	var rule domain.RoutingRule
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Priority, &rule.MatchLanguage, &rule.MatchBudgetRange, &rule.MatchLeadSource,
		&rule.MatchLeadSegment, &rule.MatchPageType, &rule.TargetAgentID, &rule.IsActive, &rule.FallbackToBroadcast,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoutingRule{}, ErrNotFound
	}
	return rule, err
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// ListRules returns every rule, highest priority first. Ties come back in
// creation order, which callers must not rely on.
func (r *Repository) ListRules(ctx context.Context) ([]domain.RoutingRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM routing_rules ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.RoutingRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r *Repository) GetRule(ctx context.Context, id uuid.UUID) (domain.RoutingRule, error) {
	return scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE id = $1`, id))
}

func (r *Repository) CreateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error) {
	return scanRule(r.pool.QueryRow(ctx, `
		INSERT INTO routing_rules (
			name, priority, match_language, match_budget_range, match_lead_source,
			match_lead_segment, match_page_type, target_agent_id, is_active, fallback_to_broadcast
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+ruleColumns,
		rule.Name, rule.Priority, emptyIfNil(rule.MatchLanguage), emptyIfNil(rule.MatchBudgetRange),
		emptyIfNil(rule.MatchLeadSource), emptyIfNil(rule.MatchLeadSegment), emptyIfNil(rule.MatchPageType),
		rule.TargetAgentID, rule.IsActive, rule.FallbackToBroadcast,
	))
}

func (r *Repository) UpdateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error) {
	return scanRule(r.pool.QueryRow(ctx, `
		UPDATE routing_rules
		SET name = $2, priority = $3, match_language = $4, match_budget_range = $5,
			match_lead_source = $6, match_lead_segment = $7, match_page_type = $8,
			target_agent_id = $9, is_active = $10, fallback_to_broadcast = $11, updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		rule.ID, rule.Name, rule.Priority, emptyIfNil(rule.MatchLanguage), emptyIfNil(rule.MatchBudgetRange),
		emptyIfNil(rule.MatchLeadSource), emptyIfNil(rule.MatchLeadSegment), emptyIfNil(rule.MatchPageType),
		rule.TargetAgentID, rule.IsActive, rule.FallbackToBroadcast,
	))
}

func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const poolColumns = `id, language, agent_ids, round_number, fallback_admin_id, mode, is_active, updated_at`

func scanPool(row pgx.Row) (domain.RoundRobinConfig, error) {
	var (
		cfg  domain.RoundRobinConfig
		mode string
	)
	err := row.Scan(&cfg.ID, &cfg.Language, &cfg.AgentIDs, &cfg.RoundNumber, &cfg.FallbackAdminID, &mode, &cfg.IsActive, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoundRobinConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.RoundRobinConfig{}, err
	}
	cfg.Mode = domain.RoundRobinMode(mode)
	return cfg, nil
}

func (r *Repository) GetRoundRobinConfig(ctx context.Context, language string) (domain.RoundRobinConfig, error) {
	return scanPool(r.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM round_robin_configs WHERE language = $1`, language))
}

func (r *Repository) ListRoundRobinConfigs(ctx context.Context) ([]domain.RoundRobinConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poolColumns+` FROM round_robin_configs ORDER BY language`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]domain.RoundRobinConfig, 0)
	for rows.Next() {
		cfg, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return configs, nil
}

// UpsertRoundRobinConfig replaces the pool for a language. The rotation
// cursor is preserved across edits.
func (r *Repository) UpsertRoundRobinConfig(ctx context.Context, cfg domain.RoundRobinConfig) (domain.RoundRobinConfig, error) {
	agentIDs := cfg.AgentIDs
	if agentIDs == nil {
		agentIDs = []uuid.UUID{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = domain.ModeBroadcast
	}
	return scanPool(r.pool.QueryRow(ctx, `
		INSERT INTO round_robin_configs (language, agent_ids, fallback_admin_id, mode, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (language) DO UPDATE
		SET agent_ids = EXCLUDED.agent_ids,
			fallback_admin_id = EXCLUDED.fallback_admin_id,
			mode = EXCLUDED.mode,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING `+poolColumns,
		cfg.Language, agentIDs, cfg.FallbackAdminID, string(mode), cfg.IsActive,
	))
}

func (r *Repository) AdvanceRoundRobin(ctx context.Context, language string) (int64, error) {
	var cursor int64
	err := r.pool.QueryRow(ctx, `
		UPDATE round_robin_configs
		SET round_number = round_number + 1, updated_at = now()
		WHERE language = $1
		RETURNING round_number - 1`, language).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return cursor, err
}
