// Package routing places new leads: a prioritized rule table first, then
// the language pool (broadcast, or rotation when the pool is set to rotate).
package routing

import (
	"context"
	"errors"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/google/uuid"
)

// Repository is the store surface the router needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.RuleStore
	repository.PoolStore
	repository.AgentStore
	repository.ActivityLogger
}

// Assigner applies the timer side of a routing decision.
type Assigner interface {
	StartBroadcast(ctx context.Context, lead domain.Lead, pool []domain.Agent) (domain.Lead, error)
	AssignDirect(ctx context.Context, lead domain.Lead, agent domain.Agent, method domain.AssignmentMethod) (domain.Lead, error)
}

// Service is the router.
type Service struct {
	repo     Repository
	assigner Assigner
	bus      events.Bus
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// New creates the router.
func New(repo Repository, assigner Assigner, bus events.Bus, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{repo: repo, assigner: assigner, bus: bus, clock: clk, metrics: m, log: log}
}

// Result describes where RouteLead put a lead.
type Result struct {
	Outcome       domain.RouteOutcome
	Method        domain.AssignmentMethod
	AgentID       *uuid.UUID
	PoolAgentIDs  []uuid.UUID
	MatchedRuleID *uuid.UUID
	Reason        string
	Lead          domain.Lead
}

// Preview is a routing decision computed without side effects.
type Preview struct {
	Outcome     domain.RouteOutcome
	Method      domain.AssignmentMethod
	Agent       *domain.Agent
	Pool        []domain.Agent
	MatchedRule *domain.RoutingRule
	Rotation    bool
	Reason      string
}

// RouteLead evaluates the rules and pool for a lead and applies the result.
// Routing never touches agent lead counters; the timer engine does when an
// owner is set.
func (s *Service) RouteLead(ctx context.Context, leadID uuid.UUID) (Result, error) {
	const op = "crm.routing.route_lead"

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, apperr.NotFound("lead not found").WithOp(op)
		}
		return Result{}, apperr.Wrap(apperr.KindInternal, "load lead failed", err).WithOp(op)
	}
	switch {
	case lead.Archived:
		return Result{}, apperr.Conflict("lead is archived").WithOp(op)
	case lead.LeadClaimed:
		return Result{}, apperr.Conflict("lead already has an owner").WithOp(op)
	case lead.ClaimTimerStartedAt != nil:
		return Result{}, apperr.Conflict("lead is already awaiting a claim").WithOp(op)
	}

	snap, err := s.snapshot(ctx, lead.Language)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "load routing configuration failed", err).WithOp(op)
	}
	decision := domain.PlanRoute(snap, lead.Attributes())

	result := Result{
		Outcome: decision.Outcome,
		Method:  decision.Method,
		Reason:  decision.Reason,
	}
	if decision.MatchedRule != nil {
		id := decision.MatchedRule.ID
		result.MatchedRuleID = &id
	}
	for _, a := range decision.Pool {
		result.PoolAgentIDs = append(result.PoolAgentIDs, a.ID)
	}

	switch decision.Outcome {
	case domain.RouteDirect:
		agent := *decision.Agent
		if decision.Rotation {
			cursor, err := s.repo.AdvanceRoundRobin(ctx, lead.Language)
			if err != nil {
				return Result{}, apperr.Wrap(apperr.KindInternal, "advance rotation cursor failed", err).WithOp(op)
			}
			agent, _ = domain.PickRotation(decision.Pool, cursor)
		}
		updated, err := s.assigner.AssignDirect(ctx, lead, agent, decision.Method)
		if err != nil {
			return Result{}, err
		}
		result.AgentID = &agent.ID
		result.Lead = updated

	case domain.RouteBroadcast:
		updated, err := s.assigner.StartBroadcast(ctx, lead, decision.Pool)
		if err != nil {
			return Result{}, err
		}
		result.Lead = updated

	default:
		updated, err := s.markUnroutable(ctx, lead, decision.Reason)
		if err != nil {
			return Result{}, err
		}
		result.Lead = updated
	}

	s.metrics.RecordRouted(string(decision.Outcome))
	return result, nil
}

func (s *Service) markUnroutable(ctx context.Context, lead domain.Lead, reason string) (domain.Lead, error) {
	const op = "crm.routing.mark_unroutable"
	now := s.clock.Now()

	if err := s.repo.MarkUnroutable(ctx, lead.ID, reason, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Lead{}, apperr.Conflict("lead changed while routing").WithOp(op)
		}
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "mark lead unroutable failed", err).WithOp(op)
	}
	s.log.Error("lead is unroutable", "leadId", lead.ID, "language", lead.Language, "reason", reason)

	if err := s.repo.AddActivity(ctx, domain.Activity{
		LeadID:    lead.ID,
		Action:    domain.ActivityUnroutable,
		Note:      reason,
		CreatedAt: now,
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", lead.ID, "error", err)
	}
	s.bus.Publish(ctx, events.LeadUnroutable{
		BaseEvent: events.NewBaseEventAt(now),
		LeadID:    lead.ID,
		Language:  lead.Language,
		Reason:    reason,
	})

	lead.Unroutable = true
	lead.RoutingError = reason
	lead.UpdatedAt = now
	return lead, nil
}

// PreviewRoute runs the same decision as RouteLead against hypothetical
// attributes. Nothing is written and the rotation cursor does not move.
func (s *Service) PreviewRoute(ctx context.Context, attrs domain.LeadAttributes) (Preview, error) {
	if attrs.Language == "" {
		return Preview{}, apperr.Validation("language is required").WithOp("crm.routing.preview")
	}
	snap, err := s.snapshot(ctx, attrs.Language)
	if err != nil {
		return Preview{}, apperr.Wrap(apperr.KindInternal, "load routing configuration failed", err).WithOp("crm.routing.preview")
	}
	d := domain.PlanRoute(snap, attrs)
	return Preview{
		Outcome:     d.Outcome,
		Method:      d.Method,
		Agent:       d.Agent,
		Pool:        d.Pool,
		MatchedRule: d.MatchedRule,
		Rotation:    d.Rotation,
		Reason:      d.Reason,
	}, nil
}

func (s *Service) snapshot(ctx context.Context, language string) (domain.RoutingSnapshot, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return domain.RoutingSnapshot{}, err
	}
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		return domain.RoutingSnapshot{}, err
	}
	snap := domain.RoutingSnapshot{
		Rules:  rules,
		Agents: make(map[uuid.UUID]domain.Agent, len(agents)),
	}
	for _, a := range agents {
		snap.Agents[a.ID] = a
	}

	cfg, err := s.repo.GetRoundRobinConfig(ctx, language)
	switch {
	case err == nil:
		snap.Config = &cfg
	case !errors.Is(err, repository.ErrNotFound):
		return domain.RoutingSnapshot{}, err
	}
	return snap, nil
}
