// Package repository is the PostgreSQL store for the CRM pipeline. Every
// state transition is a conditional UPDATE so concurrent triggers and
// claimers cannot skip or double-apply a transition.
package repository

import (
	"context"
	"errors"

	"estate_portal_backend/internal/crm/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched no row
	// because the lead changed underneath the caller.
	ErrConflict = errors.New("lead state changed concurrently")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements every CRM store interface on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const leadColumns = `id, language, COALESCE(source, ''), COALESCE(segment, ''), COALESCE(budget_range, ''),
	COALESCE(page_type, ''), full_name, email, phone, message,
	assigned_agent_id, previous_agent_id, assignment_method, assigned_at, lead_claimed,
	reassignment_count, reassignment_reason, reassigned_at,
	claim_timer_started_at, claim_timer_expires_at, claim_sla_breached,
	contact_timer_started_at, contact_timer_expires_at, contact_sla_breached,
	first_action_completed, first_action_at, last_alarm_level,
	unroutable, routing_error, archived, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l      domain.Lead
		method *string
		reason *string
		level  int16
	)
	err := row.Scan(
		&l.ID, &l.Language, &l.Source, &l.Segment, &l.BudgetRange,
		&l.PageType, &l.FullName, &l.Email, &l.Phone, &l.Message,
		&l.AssignedAgentID, &l.PreviousAgentID, &method, &l.AssignedAt, &l.LeadClaimed,
		&l.ReassignmentCount, &reason, &l.ReassignedAt,
		&l.ClaimTimerStartedAt, &l.ClaimTimerExpiresAt, &l.ClaimSLABreached,
		&l.ContactTimerStartedAt, &l.ContactTimerExpiresAt, &l.ContactSLABreached,
		&l.FirstActionCompleted, &l.FirstActionAt, &level,
		&l.Unroutable, &l.RoutingError, &l.Archived, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	if method != nil {
		l.AssignmentMethod = domain.AssignmentMethod(*method)
	}
	if reason != nil {
		l.ReassignmentReason = domain.ReassignReason(*reason)
	}
	l.LastAlarmLevel = domain.AlarmLevel(level)
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()
	leads := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

// queryLead runs a single-row lead query and maps no rows to missing.
func queryLead(ctx context.Context, q querier, missing error, sql string, args ...any) (domain.Lead, error) {
	lead, err := scanLead(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, missing
	}
	return lead, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func methodParam(m domain.AssignmentMethod) *string {
	return nullIfEmpty(string(m))
}
