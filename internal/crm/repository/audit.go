package repository

import (
	"context"
	"encoding/json"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ApplyReassignment writes the transitioned lead and its audit record in one
// transaction. The update is guarded by the owner and reassignment count the
// caller read, so two concurrent reassignments cannot both commit.
func (r *Repository) ApplyReassignment(ctx context.Context, params ReassignParams) (domain.Lead, domain.Reassignment, error) {
	l := params.Lead
	var (
		lead   domain.Lead
		record domain.Reassignment
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		lead, err = queryLead(ctx, tx, ErrConflict, `
			UPDATE leads
			SET assigned_agent_id = $2,
				previous_agent_id = $3,
				assignment_method = $4,
				lead_claimed = $5,
				reassignment_count = $6,
				reassignment_reason = $7,
				reassigned_at = $8,
				claim_timer_started_at = $9,
				claim_timer_expires_at = $10,
				claim_sla_breached = $11,
				contact_timer_started_at = $12,
				contact_timer_expires_at = $13,
				contact_sla_breached = $14,
				first_action_completed = $15,
				first_action_at = $16,
				last_alarm_level = $17,
				updated_at = $8
			WHERE id = $1
				AND NOT archived
				AND assigned_agent_id IS NOT DISTINCT FROM $18
				AND reassignment_count = $19
			RETURNING `+leadColumns,
			l.ID, l.AssignedAgentID, l.PreviousAgentID, methodParam(l.AssignmentMethod), l.LeadClaimed,
			l.ReassignmentCount, string(l.ReassignmentReason), l.ReassignedAt,
			l.ClaimTimerStartedAt, l.ClaimTimerExpiresAt, l.ClaimSLABreached,
			l.ContactTimerStartedAt, l.ContactTimerExpiresAt, l.ContactSLABreached,
			l.FirstActionCompleted, l.FirstActionAt, int16(l.LastAlarmLevel),
			params.ExpectedAgentID, params.ExpectedCount,
		)
		if err != nil {
			return err
		}

		rec := params.Record
		return tx.QueryRow(ctx, `
			INSERT INTO lead_reassignments (lead_id, from_agent_id, to_agent_id, reassigned_by, reason, stage, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, lead_id, from_agent_id, to_agent_id, reassigned_by, reason, stage, notes, created_at`,
			rec.LeadID, rec.FromAgentID, rec.ToAgentID, rec.ReassignedBy, string(rec.Reason), string(rec.Stage), rec.Notes, rec.CreatedAt,
		).Scan(scanReassignmentDest(&record)...)
	})
	if err != nil {
		return domain.Lead{}, domain.Reassignment{}, err
	}
	return lead, record, nil
}

// scanReassignmentDest relies on pgx scanning text into string-kinded enums.
func scanReassignmentDest(rec *domain.Reassignment) []any {
	return []any{&rec.ID, &rec.LeadID, &rec.FromAgentID, &rec.ToAgentID, &rec.ReassignedBy,
		&rec.Reason, &rec.Stage, &rec.Notes, &rec.CreatedAt}
}

func (r *Repository) ListReassignments(ctx context.Context, leadID uuid.UUID) ([]domain.Reassignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, from_agent_id, to_agent_id, reassigned_by, reason, stage, notes, created_at
		FROM lead_reassignments
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Reassignment, 0)
	for rows.Next() {
		var rec domain.Reassignment
		if err := rows.Scan(scanReassignmentDest(&rec)...); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) AddActivity(ctx context.Context, activity domain.Activity) error {
	meta := activity.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO lead_activities (lead_id, actor_id, action, note, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		activity.LeadID, activity.ActorID, string(activity.Action), activity.Note, payload, activity.CreatedAt)
	return err
}

func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, actor_id, action, note, metadata, created_at
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			a       domain.Activity
			action  string
			payload []byte
		)
		if err := rows.Scan(&a.ID, &a.LeadID, &a.ActorID, &action, &a.Note, &payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Action = domain.ActivityAction(action)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Metadata); err != nil {
				return nil, err
			}
		}
		activities = append(activities, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return activities, nil
}
