package repository

import (
	"context"
	"errors"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const agentColumns = `id, email, name, role, is_active, current_lead_count, created_at`

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var (
		a    domain.Agent
		role string
	)
	err := row.Scan(&a.ID, &a.Email, &a.Name, &role, &a.IsActive, &a.CurrentLeadCount, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, ErrNotFound
	}
	if err != nil {
		return domain.Agent{}, err
	}
	a.Role = domain.AgentRole(role)
	return a, nil
}

func (r *Repository) GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

func (r *Repository) GetAgentByEmail(ctx context.Context, email string) (domain.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE lower(email) = lower($1)`, email))
}

func (r *Repository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]domain.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return agents, nil
}

// UpsertAgent creates or updates an agent keyed by email. The lead counter is
// never overwritten.
func (r *Repository) UpsertAgent(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	role := agent.Role
	if role == "" {
		role = domain.RoleAgent
	}
	return scanAgent(r.pool.QueryRow(ctx, `
		INSERT INTO agents (email, name, role, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name, role = EXCLUDED.role, is_active = EXCLUDED.is_active, updated_at = now()
		RETURNING `+agentColumns,
		agent.Email, agent.Name, string(role), agent.IsActive))
}

func (r *Repository) SetAgentActive(ctx context.Context, id uuid.UUID, active bool) (domain.Agent, error) {
	return scanAgent(r.pool.QueryRow(ctx, `
		UPDATE agents SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+agentColumns, id, active))
}

// AdjustLeadCount applies delta atomically, never going below zero.
func (r *Repository) AdjustLeadCount(ctx context.Context, id uuid.UUID, delta int) error {
	return adjustLeadCount(ctx, r.pool, id, delta)
}

func adjustLeadCount(ctx context.Context, q querier, id uuid.UUID, delta int) error {
	tag, err := q.Exec(ctx, `
		UPDATE agents
		SET current_lead_count = GREATEST(current_lead_count + $2, 0), updated_at = now()
		WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
