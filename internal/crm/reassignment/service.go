// Package reassignment moves a lead between agents with an append-only
// audit trail.
package reassignment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	opReassign = "crm.reassignment.reassign"
	opHistory  = "crm.reassignment.history"

	maxNotesLength = 2000
)

// Repository is the store surface the engine needs.
type Repository interface {
	repository.LeadReader
	repository.AgentStore
	repository.ReassignmentStore
	repository.ActivityLogger
}

// InApp persists in-app notifications and clears stale ones.
type InApp interface {
	Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
	MarkReadByLead(ctx context.Context, agentID, leadID uuid.UUID) (int64, error)
}

// Mailer emails the new owner.
type Mailer interface {
	NotifyReassigned(ctx context.Context, lead domain.Lead, agent domain.Agent, reason domain.ReassignReason, notes string) error
}

// Service is the reassignment engine.
type Service struct {
	repo    Repository
	inapp   InApp
	mailer  Mailer
	bus     events.Bus
	clock   clock.Clock
	policy  domain.SLAPolicy
	metrics *metrics.Metrics
	log     *logger.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo    Repository
	InApp   InApp
	Mailer  Mailer
	Bus     events.Bus
	Clock   clock.Clock
	Policy  domain.SLAPolicy
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// New creates the engine.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Bus == nil {
		d.Bus = events.NopBus{}
	}
	return &Service{
		repo:    d.Repo,
		inapp:   d.InApp,
		mailer:  d.Mailer,
		bus:     d.Bus,
		clock:   d.Clock,
		policy:  d.Policy,
		metrics: d.Metrics,
		log:     d.Log,
	}
}

// Request is one reassignment.
type Request struct {
	LeadID       uuid.UUID
	ToAgentID    uuid.UUID
	Reason       string
	Notes        string
	ReassignedBy uuid.UUID
}

// Result is the committed reassignment. Warnings list side effects that
// failed after the commit.
type Result struct {
	Lead     domain.Lead
	Record   domain.Reassignment
	Warnings []string
}

// ReassignLead validates the request, commits the lead update together with
// its audit record, then runs the fault-tolerant side effects in order.
func (s *Service) ReassignLead(ctx context.Context, req Request) (Result, error) {
	reason, err := s.validate(req)
	if err != nil {
		return Result{}, err
	}

	lead, err := s.repo.GetLead(ctx, req.LeadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, apperr.NotFound("lead not found").WithOp(opReassign)
		}
		return Result{}, apperr.Wrap(apperr.KindInternal, "load lead failed", err).WithOp(opReassign)
	}
	if lead.Archived {
		return Result{}, apperr.Conflict("lead is archived").WithOp(opReassign)
	}
	if reason == domain.ReasonUnclaimed && lead.LeadClaimed {
		return Result{}, apperr.Conflict("lead was claimed, use manual or no_contact").WithOp(opReassign)
	}
	if lead.IsAssignedTo(req.ToAgentID) {
		return Result{}, apperr.Validation("lead is already assigned to this agent").WithOp(opReassign)
	}

	target, err := s.repo.GetAgent(ctx, req.ToAgentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, apperr.NotFound("target agent not found").WithOp(opReassign)
		}
		return Result{}, apperr.Wrap(apperr.KindInternal, "load agent failed", err).WithOp(opReassign)
	}
	if !target.IsActive {
		return Result{}, apperr.Validation("target agent is inactive").WithOp(opReassign)
	}

	now := s.clock.Now()
	updated := lead.WithReassignment(target.ID, reason, now, s.policy)
	if err := updated.CheckInvariants(); err != nil {
		return Result{}, apperr.Wrap(apperr.KindConflict, "reassignment would leave the lead inconsistent", err).WithOp(opReassign)
	}

	by := req.ReassignedBy
	committed, record, err := s.repo.ApplyReassignment(ctx, repository.ReassignParams{
		Lead:            updated,
		ExpectedAgentID: lead.AssignedAgentID,
		ExpectedCount:   lead.ReassignmentCount,
		Record: domain.Reassignment{
			LeadID:       lead.ID,
			FromAgentID:  lead.AssignedAgentID,
			ToAgentID:    target.ID,
			ReassignedBy: by,
			Reason:       reason,
			Stage:        lead.State(),
			Notes:        req.Notes,
			CreatedAt:    now,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Result{}, apperr.Conflict("lead changed while reassigning; reload and retry").WithOp(opReassign)
		}
		return Result{}, apperr.Wrap(apperr.KindInternal, "commit reassignment failed", err).WithOp(opReassign)
	}

	result := Result{Lead: committed, Record: record}
	warn := func(step string, err error) {
		s.log.Warn("reassignment side effect failed", "leadId", lead.ID, "step", step, "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", step, err))
	}

	if lead.AssignedAgentID != nil {
		if err := s.repo.AdjustLeadCount(ctx, *lead.AssignedAgentID, -1); err != nil {
			warn("decrement previous agent lead count", err)
		}
	}
	if err := s.repo.AdjustLeadCount(ctx, target.ID, 1); err != nil {
		warn("increment new agent lead count", err)
	}

	if s.inapp != nil {
		if lead.AssignedAgentID != nil {
			if _, err := s.inapp.MarkReadByLead(ctx, *lead.AssignedAgentID, lead.ID); err != nil {
				warn("clear previous agent notifications", err)
			}
		}
		leadID := lead.ID
		if _, err := s.inapp.Create(ctx, inapp.CreateParams{
			AgentID: target.ID,
			LeadID:  &leadID,
			Kind:    inapp.KindReassigned,
			Title:   "Lead reassigned to you",
			Content: reason.Label(),
		}); err != nil {
			warn("notify new agent in-app", err)
		}
	}

	note := fmt.Sprintf("Reassigned to %s: %s", target.DisplayName(), reason.Label())
	if req.Notes != "" {
		note += ". " + req.Notes
	}
	if err := s.repo.AddActivity(ctx, domain.Activity{
		LeadID:  lead.ID,
		ActorID: &by,
		Action:  domain.ActivityReassigned,
		Note:    note,
		Metadata: map[string]any{
			"reason":      string(reason),
			"fromAgentId": lead.AssignedAgentID,
			"toAgentId":   target.ID,
		},
		CreatedAt: now,
	}); err != nil {
		warn("write activity", err)
	}

	if s.mailer != nil {
		if err := s.mailer.NotifyReassigned(ctx, committed, target, reason, req.Notes); err != nil {
			warn("email new agent", err)
		}
	}

	s.metrics.RecordReassignment(string(reason))
	s.bus.Publish(ctx, events.LeadReassigned{
		BaseEvent:    events.NewBaseEventAt(now),
		LeadID:       lead.ID,
		FromAgentID:  lead.AssignedAgentID,
		ToAgentID:    target.ID,
		Reason:       string(reason),
		ReassignedBy: by,
	})
	return result, nil
}

func (s *Service) validate(req Request) (domain.ReassignReason, error) {
	var missing []string
	if req.LeadID == uuid.Nil {
		missing = append(missing, "leadId")
	}
	if req.ToAgentID == uuid.Nil {
		missing = append(missing, "toAgentId")
	}
	if req.ReassignedBy == uuid.Nil {
		missing = append(missing, "reassignedBy")
	}
	if req.Reason == "" {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return "", apperr.Validation("missing required fields: " + strings.Join(missing, ", ")).WithOp(opReassign)
	}
	reason, err := domain.ParseReassignReason(req.Reason)
	if err != nil {
		return "", apperr.Validation(err.Error()).WithOp(opReassign)
	}
	if len(req.Notes) > maxNotesLength {
		return "", apperr.Validation("notes are too long").WithOp(opReassign)
	}
	return reason, nil
}

// History returns a lead's reassignment records, oldest first.
func (s *Service) History(ctx context.Context, leadID uuid.UUID) ([]domain.Reassignment, error) {
	if _, err := s.repo.GetLead(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found").WithOp(opHistory)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load lead failed", err).WithOp(opHistory)
	}
	records, err := s.repo.ListReassignments(ctx, leadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list reassignments failed", err).WithOp(opHistory)
	}
	return records, nil
}
