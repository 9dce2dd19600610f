package repository

import (
	"context"
	"errors"
	"time"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
)

func (r *Repository) CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	return queryLead(ctx, r.pool, ErrNotFound, `
		INSERT INTO leads (
			language, source, segment, budget_range, page_type,
			full_name, email, phone, message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+leadColumns,
		params.Language, nullIfEmpty(params.Source), nullIfEmpty(params.Segment),
		nullIfEmpty(params.BudgetRange), nullIfEmpty(params.PageType),
		params.FullName, params.Email, params.Phone, params.Message, params.CreatedAt,
	)
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return queryLead(ctx, r.pool, ErrNotFound, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
}

func (r *Repository) ListUnroutable(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE unroutable AND NOT archived
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) MarkUnroutable(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET unroutable = true, routing_error = $2, updated_at = $3
		WHERE id = $1 AND NOT lead_claimed AND NOT archived`,
		id, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ArchiveLead soft-deletes a lead and stops every running timer. The
// reassignment history stays in place.
func (r *Repository) ArchiveLead(ctx context.Context, id uuid.UUID, at time.Time) (domain.Lead, error) {
	lead, err := queryLead(ctx, r.pool, ErrNotFound, `
		UPDATE leads
		SET archived = true, updated_at = $2
		WHERE id = $1 AND NOT archived
		RETURNING `+leadColumns, id, at)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetLead(ctx, id); getErr != nil {
			return domain.Lead{}, getErr
		}
		return domain.Lead{}, ErrConflict
	}
	return lead, err
}
