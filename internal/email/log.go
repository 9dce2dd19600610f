package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"

	opLogInsert = "email.log.insert"
	opLogList   = "email.log.list_by_lead"
)

// LogEntry is one row of the email log.
type LogEntry struct {
	ID                uuid.UUID  `json:"id"`
	LeadID            *uuid.UUID `json:"leadId,omitempty"`
	AgentID           *uuid.UUID `json:"agentId,omitempty"`
	Recipients        []string   `json:"recipients"`
	Subject           string     `json:"subject"`
	Trigger           string     `json:"trigger"`
	Provider          string     `json:"provider"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	Status            string     `json:"status"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// LogStore persists email attempts.
type LogStore interface {
	InsertLog(ctx context.Context, entry LogEntry) error
}

// LogRepository stores the email log in Postgres.
type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

func (r *LogRepository) InsertLog(ctx context.Context, e LogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_logs
		(lead_id, agent_id, recipients, subject, trigger_reason, provider, provider_message_id, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''))
	`, e.LeadID, e.AgentID, e.Recipients, e.Subject, e.Trigger, e.Provider, e.ProviderMessageID, e.Status, e.Error)
	if err != nil {
		return fmt.Errorf("%s: %w", opLogInsert, err)
	}
	return nil
}

// ListByLead returns the emails sent about a lead, oldest first.
func (r *LogRepository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, agent_id, recipients, subject, trigger_reason, provider,
			COALESCE(provider_message_id, ''), status, COALESCE(error, ''), created_at
		FROM email_logs
		WHERE lead_id = $1
		ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opLogList, err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.AgentID, &e.Recipients, &e.Subject, &e.Trigger,
			&e.Provider, &e.ProviderMessageID, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", opLogList, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LoggingSender records every attempt in the email log and metrics.
// A failed log write never turns a delivered email into an error.
type LoggingSender struct {
	next    Sender
	store   LogStore
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewLoggingSender(next Sender, store LogStore, m *metrics.Metrics, log *logger.Logger) *LoggingSender {
	return &LoggingSender{next: next, store: store, metrics: m, log: log}
}

func (s *LoggingSender) Send(ctx context.Context, msg Message) (Result, error) {
	res, sendErr := s.next.Send(ctx, msg)

	entry := LogEntry{
		LeadID:            msg.LeadID,
		AgentID:           msg.AgentID,
		Recipients:        cleanRecipients(msg.To),
		Subject:           msg.Subject,
		Trigger:           msg.Trigger,
		Provider:          res.Provider,
		ProviderMessageID: res.ID,
		Status:            StatusSent,
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
	}
	s.metrics.RecordEmail(res.Provider, sendErr == nil)

	if s.store != nil {
		if err := s.store.InsertLog(context.WithoutCancel(ctx), entry); err != nil {
			s.log.Warn("email log write failed",
				slog.String("trigger", msg.Trigger),
				slog.String("error", err.Error()),
			)
		}
	}
	if sendErr != nil {
		s.log.Error("email send failed",
			slog.String("provider", res.Provider),
			slog.String("trigger", msg.Trigger),
			slog.Any("recipients", entry.Recipients),
			slog.String("error", sendErr.Error()),
		)
	}
	return res, sendErr
}
