package inapp

import (
	"context"

	"estate_portal_backend/internal/notification/sse"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/logger"

	"github.com/google/uuid"
)

type Service struct {
	repo Store
	sse  *sse.Service
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// SetSSE injects the SSE service (circular dependency avoidance).
func (s *Service) SetSSE(sseSvc *sse.Service) {
	s.sse = sseSvc
}

// Create persists the notification and pushes it via SSE if the agent is online.
func (s *Service) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, apperr.Unavailable("in-app notification service not configured")
	}

	notif, err := s.repo.Create(ctx, p)
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "agentId", p.AgentID)
		}
		return Notification{}, err
	}

	if s.sse != nil {
		s.sse.Publish(p.AgentID, sse.Event{
			Type:    sse.EventInAppNotification,
			Message: notif.Title,
			Data:    notif,
		})
	}
	return notif, nil
}

func (s *Service) List(ctx context.Context, agentID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, agentID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, agentID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, agentID)
}

func (s *Service) MarkRead(ctx context.Context, agentID, id uuid.UUID) error {
	found, err := s.repo.MarkRead(ctx, agentID, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, agentID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, agentID)
}

// MarkReadByLead clears an agent's unread notifications for a lead they no longer own.
func (s *Service) MarkReadByLead(ctx context.Context, agentID, leadID uuid.UUID) (int64, error) {
	if s == nil || s.repo == nil {
		return 0, apperr.Unavailable("in-app notification service not configured")
	}
	return s.repo.MarkReadByLead(ctx, agentID, leadID)
}
