package repository

import (
	"context"
	"errors"
	"time"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StartBroadcast opens the claim window on a lead nobody owns yet.
func (r *Repository) StartBroadcast(ctx context.Context, params BroadcastParams) (domain.Lead, error) {
	return queryLead(ctx, r.pool, ErrConflict, `
		UPDATE leads
		SET assignment_method = 'broadcast_claim',
			assigned_agent_id = NULL,
			assigned_at = NULL,
			claim_timer_started_at = $2,
			claim_timer_expires_at = $3,
			contact_timer_started_at = NULL,
			contact_timer_expires_at = NULL,
			last_alarm_level = 0,
			unroutable = false,
			routing_error = '',
			updated_at = $2
		WHERE id = $1 AND NOT lead_claimed AND NOT archived
		RETURNING `+leadColumns,
		params.LeadID, params.StartedAt, params.ExpiresAt)
}

// AssignDirect gives an unclaimed lead to one agent, starts the contact
// window and bumps the agent's counter in the same transaction.
func (r *Repository) AssignDirect(ctx context.Context, params AssignParams) (domain.Lead, error) {
	var lead domain.Lead
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		lead, err = queryLead(ctx, tx, ErrConflict, `
			UPDATE leads
			SET assigned_agent_id = $2,
				assignment_method = $3,
				assigned_at = $4,
				lead_claimed = true,
				claim_timer_started_at = NULL,
				claim_timer_expires_at = NULL,
				contact_timer_started_at = $4,
				contact_timer_expires_at = $5,
				last_alarm_level = 0,
				unroutable = false,
				routing_error = '',
				updated_at = $4
			WHERE id = $1 AND NOT lead_claimed AND NOT archived
			RETURNING `+leadColumns,
			params.LeadID, params.AgentID, methodParam(params.Method), params.At, params.ContactExpiresAt)
		if err != nil {
			return err
		}
		return adjustLeadCount(ctx, tx, params.AgentID, 1)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// ClaimLead is the compare-and-set claim: it only succeeds while the lead is
// unclaimed and has no owner. On a lost race it returns the current row and false.
func (r *Repository) ClaimLead(ctx context.Context, params ClaimParams) (domain.Lead, bool, error) {
	var (
		lead domain.Lead
		won  bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		lead, err = queryLead(ctx, tx, ErrConflict, `
			UPDATE leads
			SET lead_claimed = true,
				assigned_agent_id = $2,
				assigned_at = $3,
				claim_timer_started_at = NULL,
				claim_timer_expires_at = NULL,
				contact_timer_started_at = $3,
				contact_timer_expires_at = $4,
				last_alarm_level = 0,
				unroutable = false,
				updated_at = $3
			WHERE id = $1 AND NOT lead_claimed AND assigned_agent_id IS NULL AND NOT archived
			RETURNING `+leadColumns,
			params.LeadID, params.AgentID, params.At, params.ContactExpiresAt)
		if errors.Is(err, ErrConflict) {
			return nil
		}
		if err != nil {
			return err
		}
		won = true
		return adjustLeadCount(ctx, tx, params.AgentID, 1)
	})
	if err != nil {
		return domain.Lead{}, false, err
	}
	if !won {
		current, err := r.GetLead(ctx, params.LeadID)
		return current, false, err
	}
	return lead, true, nil
}

// MarkFirstAction flips first_action_completed once on a claimed lead.
func (r *Repository) MarkFirstAction(ctx context.Context, id uuid.UUID, at time.Time) (domain.Lead, bool, error) {
	lead, err := queryLead(ctx, r.pool, ErrConflict, `
		UPDATE leads
		SET first_action_completed = true, first_action_at = $2, updated_at = $2
		WHERE id = $1 AND lead_claimed AND NOT first_action_completed AND NOT archived
		RETURNING `+leadColumns, id, at)
	if errors.Is(err, ErrConflict) {
		current, getErr := r.GetLead(ctx, id)
		return current, false, getErr
	}
	if err != nil {
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}
