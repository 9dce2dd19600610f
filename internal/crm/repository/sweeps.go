package repository

import (
	"context"
	"time"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
)

func (r *Repository) ListClaimBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE claim_timer_expires_at <= $1
			AND NOT lead_claimed
			AND NOT claim_sla_breached
			AND NOT archived
		ORDER BY claim_timer_expires_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

// MarkClaimBreached sets the flag only if it is still false and the lead is
// still unclaimed, so repeated sweeps transition once.
func (r *Repository) MarkClaimBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET claim_sla_breached = true, updated_at = $2
		WHERE id = $1 AND NOT lead_claimed AND NOT claim_sla_breached`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ListContactBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE contact_timer_expires_at <= $1
			AND lead_claimed
			AND NOT first_action_completed
			AND NOT contact_sla_breached
			AND NOT archived
		ORDER BY contact_timer_expires_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) MarkContactBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET contact_sla_breached = true, updated_at = $2
		WHERE id = $1 AND lead_claimed AND NOT first_action_completed AND NOT contact_sla_breached`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListAlarmDue selects leads sitting exactly one rung below level whose claim
// timer started at or before startedBefore.
func (r *Repository) ListAlarmDue(ctx context.Context, level domain.AlarmLevel, startedBefore time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE NOT lead_claimed
			AND NOT claim_sla_breached
			AND NOT archived
			AND last_alarm_level = $1
			AND claim_timer_started_at <= $2
		ORDER BY claim_timer_started_at ASC
		LIMIT $3`, int16(level-1), startedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

// AdvanceAlarmLevel moves from -> to only if the lead is still on from.
func (r *Repository) AdvanceAlarmLevel(ctx context.Context, id uuid.UUID, from, to domain.AlarmLevel, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET last_alarm_level = $3, updated_at = $4
		WHERE id = $1 AND last_alarm_level = $2 AND NOT lead_claimed`,
		id, int16(from), int16(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
