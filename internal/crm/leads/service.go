// Package leads serves lead reads, the activity timeline, the unroutable
// queue and archiving.
package leads

import (
	"context"
	"errors"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the store surface the service needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.AgentStore
	repository.ActivityLogger
}

// Service is the lead query service.
type Service struct {
	repo  Repository
	clock clock.Clock
	log   *logger.Logger
}

// New creates the service.
func New(repo Repository, clk clock.Clock, log *logger.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clock: clk, log: log}
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found").WithOp(op)
	}
	return apperr.Wrap(apperr.KindInternal, "lead store failed", err).WithOp(op)
}

// Get returns one lead.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetLead(ctx, id)
	if err != nil {
		return domain.Lead{}, notFoundOr(err, "crm.leads.get")
	}
	return lead, nil
}

// Activities returns the lead timeline, oldest first.
func (s *Service) Activities(ctx context.Context, id uuid.UUID) ([]domain.Activity, error) {
	if _, err := s.repo.GetLead(ctx, id); err != nil {
		return nil, notFoundOr(err, "crm.leads.activities")
	}
	items, err := s.repo.ListActivities(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list activities failed", err).WithOp("crm.leads.activities")
	}
	return items, nil
}

// Unroutable lists leads the router could not place.
func (s *Service) Unroutable(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items, err := s.repo.ListUnroutable(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list unroutable leads failed", err).WithOp("crm.leads.unroutable")
	}
	return items, nil
}

// Archive soft-deletes a lead. Archived leads leave every sweep and the
// owner's running count drops by one.
func (s *Service) Archive(ctx context.Context, id, actorID uuid.UUID) (domain.Lead, error) {
	const op = "crm.leads.archive"
	now := s.clock.Now()

	lead, err := s.repo.ArchiveLead(ctx, id, now)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Lead{}, apperr.Conflict("lead is already archived").WithOp(op)
		}
		return domain.Lead{}, notFoundOr(err, op)
	}

	if lead.AssignedAgentID != nil {
		if err := s.repo.AdjustLeadCount(ctx, *lead.AssignedAgentID, -1); err != nil {
			s.log.Warn("lead count decrement failed", "leadId", id, "agentId", *lead.AssignedAgentID, "error", err)
		}
	}
	actor := actorID
	if err := s.repo.AddActivity(ctx, domain.Activity{
		LeadID:    id,
		ActorID:   &actor,
		Action:    domain.ActivityArchived,
		Note:      "Lead archived",
		CreatedAt: now,
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", id, "error", err)
	}
	return lead, nil
}
