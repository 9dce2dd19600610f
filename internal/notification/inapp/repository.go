package inapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"estate_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate         = "notification.inapp.repository.create"
	opList           = "notification.inapp.repository.list"
	opCountUnread    = "notification.inapp.repository.count_unread"
	opMarkRead       = "notification.inapp.repository.mark_read"
	opMarkAllRead    = "notification.inapp.repository.mark_all_read"
	opMarkReadByLead = "notification.inapp.repository.mark_read_by_lead"

	errAgentIDRequired = "agentId is required"
)

// Notification kinds.
const (
	KindBroadcastOffer = "broadcast_offer"
	KindAssigned       = "lead_assigned"
	KindEscalation     = "escalation_alarm"
	KindClaimBreach    = "claim_breach"
	KindContactBreach  = "contact_breach"
	KindReassigned     = "lead_reassigned"
	KindLeadUnroutable = "lead_unroutable"
	defaultKind        = "info"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	AgentID   uuid.UUID  `json:"agentId"`
	LeadID    *uuid.UUID `json:"leadId,omitempty"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type CreateParams struct {
	AgentID uuid.UUID
	LeadID  *uuid.UUID
	Kind    string
	Title   string
	Content string
}

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, agentID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, agentID, notificationID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, agentID uuid.UUID) (int64, error)
	MarkReadByLead(ctx context.Context, agentID, leadID uuid.UUID) (int64, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, agent_id, lead_id, kind, title, content, is_read, read_at, created_at`

func scanNotification(row interface{ Scan(dest ...any) error }) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.AgentID, &n.LeadID, &n.Kind, &n.Title, &n.Content, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	return n, err
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if p.AgentID == uuid.Nil {
		return Notification{}, apperr.Validation(errAgentIDRequired).WithOp(opCreate)
	}
	if p.Title == "" {
		return Notification{}, apperr.Validation("title is required").WithOp(opCreate)
	}
	if p.Kind == "" {
		p.Kind = defaultKind
	}

	n, err := scanNotification(r.pool.QueryRow(ctx, `
		INSERT INTO in_app_notifications (agent_id, lead_id, kind, title, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		p.AgentID, p.LeadID, p.Kind, p.Title, p.Content))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Notification{}, apperr.Validation("invalid agentId or leadId").WithOp(opCreate)
		}
		return Notification{}, apperr.Wrap(apperr.KindInternal, "create in-app notification failed", err).WithOp(opCreate)
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]Notification, int, error) {
	if agentID == uuid.Nil {
		return nil, 0, apperr.Validation(errAgentIDRequired).WithOp(opList)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM in_app_notifications WHERE agent_id = $1`, agentID).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "count notifications failed", err).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM in_app_notifications
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "list notifications failed", err).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, apperr.Wrap(apperr.KindInternal, "scan notifications failed", scanErr).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "iterate notifications failed", rowsErr).WithOp(opList)
	}
	return items, total, nil
}

func (r *Repository) CountUnread(ctx context.Context, agentID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM in_app_notifications
		WHERE agent_id = $1 AND is_read = FALSE
	`, agentID).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count unread notifications failed", err).WithOp(opCountUnread)
	}
	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, agentID, notificationID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE id = $1 AND agent_id = $2
	`, notificationID, agentID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "mark notification read failed", err).WithOp(opMarkRead)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MarkAllRead(ctx context.Context, agentID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE agent_id = $1 AND is_read = FALSE
	`, agentID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "mark all notifications read failed", err).WithOp(opMarkAllRead)
	}
	return tag.RowsAffected(), nil
}

// MarkReadByLead clears one agent's unread notifications about a lead.
func (r *Repository) MarkReadByLead(ctx context.Context, agentID, leadID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE in_app_notifications
		SET is_read = TRUE, read_at = now()
		WHERE agent_id = $1 AND lead_id = $2 AND is_read = FALSE
	`, agentID, leadID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, fmt.Sprintf("mark lead %s notifications read failed", leadID), err).WithOp(opMarkReadByLead)
	}
	return tag.RowsAffected(), nil
}
