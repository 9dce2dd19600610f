// Package timers runs the claim and contact windows of a lead: starting a
// broadcast, direct assignment, claims, first contact and claim breaches.
package timers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Repository is the store surface the timer engine needs.
type Repository interface {
	repository.LeadReader
	repository.TimerStore
	repository.BreachStore
	repository.PoolStore
	repository.AgentStore
	repository.ActivityLogger
}

// Notifier sends the emails that accompany timer transitions.
type Notifier interface {
	NotifyBroadcast(ctx context.Context, lead domain.Lead, pool []domain.Agent) error
	NotifyDirectAssignment(ctx context.Context, lead domain.Lead, agent domain.Agent) error
	NotifyClaimBreach(ctx context.Context, lead domain.Lead) error
}

const (
	SweepClaimBreaches = "claim_breaches"
	actionClaimBreach  = "claim_breach"
)

// Service is the timer engine.
type Service struct {
	repo        Repository
	notifier    Notifier
	bus         events.Bus
	clock       clock.Clock
	policy      domain.SLAPolicy
	metrics     *metrics.Metrics
	log         *logger.Logger
	batchSize   int
	concurrency int
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo        Repository
	Notifier    Notifier
	Bus         events.Bus
	Clock       clock.Clock
	Policy      domain.SLAPolicy
	Metrics     *metrics.Metrics
	Log         *logger.Logger
	BatchSize   int
	Concurrency int
}

// New creates the timer engine.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Bus == nil {
		d.Bus = events.NopBus{}
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 100
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	return &Service{
		repo:        d.Repo,
		notifier:    d.Notifier,
		bus:         d.Bus,
		clock:       d.Clock,
		policy:      d.Policy,
		metrics:     d.Metrics,
		log:         d.Log,
		batchSize:   d.BatchSize,
		concurrency: d.Concurrency,
	}
}

// ClaimResult is the outcome of a claim attempt. Losing a race is not an error.
type ClaimResult struct {
	Status domain.ClaimStatus
	Lead   domain.Lead
}

func mapStoreErr(err error, op, conflict string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("lead not found").WithOp(op)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(conflict).WithOp(op)
	default:
		return apperr.Wrap(apperr.KindInternal, "lead update failed", err).WithOp(op)
	}
}

// StartBroadcast opens the claim window and offers the lead to the pool.
func (s *Service) StartBroadcast(ctx context.Context, lead domain.Lead, pool []domain.Agent) (domain.Lead, error) {
	now := s.clock.Now()
	updated, err := s.repo.StartBroadcast(ctx, repository.BroadcastParams{
		LeadID:    lead.ID,
		StartedAt: now,
		ExpiresAt: now.Add(s.policy.ClaimWindow),
	})
	if err != nil {
		return domain.Lead{}, mapStoreErr(err, "crm.timers.start_broadcast", "lead is already owned or archived")
	}

	ids := make([]uuid.UUID, 0, len(pool))
	for _, a := range pool {
		ids = append(ids, a.ID)
	}
	s.addActivity(ctx, domain.Activity{
		LeadID:    lead.ID,
		Action:    domain.ActivityBroadcast,
		Note:      fmt.Sprintf("Offered to %d agents; claim window closes at %s", len(pool), updated.ClaimTimerExpiresAt.UTC().Format(time.RFC3339)),
		Metadata:  map[string]any{"poolAgentIds": ids},
		CreatedAt: now,
	})
	s.bus.Publish(ctx, events.LeadBroadcast{
		BaseEvent:      events.NewBaseEventAt(now),
		LeadID:         lead.ID,
		Language:       lead.Language,
		PoolAgentIDs:   ids,
		ClaimExpiresAt: updated.ClaimTimerExpiresAt.UTC().Format(time.RFC3339),
	})
	if s.notifier != nil {
		if err := s.notifier.NotifyBroadcast(ctx, updated, pool); err != nil {
			s.log.Warn("broadcast offer email failed", "leadId", lead.ID, "error", err)
		}
	}
	return updated, nil
}

// AssignDirect gives the lead to one agent and starts the contact window.
func (s *Service) AssignDirect(ctx context.Context, lead domain.Lead, agent domain.Agent, method domain.AssignmentMethod) (domain.Lead, error) {
	now := s.clock.Now()
	updated, err := s.repo.AssignDirect(ctx, repository.AssignParams{
		LeadID:           lead.ID,
		AgentID:          agent.ID,
		Method:           method,
		At:               now,
		ContactExpiresAt: now.Add(s.policy.ContactWindow),
	})
	if err != nil {
		return domain.Lead{}, mapStoreErr(err, "crm.timers.assign_direct", "lead is already owned or archived")
	}

	actor := agent.ID
	s.addActivity(ctx, domain.Activity{
		LeadID:    lead.ID,
		ActorID:   &actor,
		Action:    domain.ActivityAssigned,
		Note:      fmt.Sprintf("Assigned to %s (%s)", agent.DisplayName(), method),
		Metadata:  map[string]any{"method": string(method)},
		CreatedAt: now,
	})
	s.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent:        events.NewBaseEventAt(now),
		LeadID:           lead.ID,
		AgentID:          agent.ID,
		AssignmentMethod: string(method),
	})
	if s.notifier != nil {
		if err := s.notifier.NotifyDirectAssignment(ctx, updated, agent); err != nil {
			s.log.Warn("assignment email failed", "leadId", lead.ID, "agentId", agent.ID, "error", err)
		}
	}
	return updated, nil
}

// ClaimLead lets a pool agent take a broadcast lead. Exactly one concurrent
// caller wins; the rest get already_claimed.
func (s *Service) ClaimLead(ctx context.Context, leadID, agentID uuid.UUID) (ClaimResult, error) {
	const op = "crm.timers.claim"

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return ClaimResult{}, mapStoreErr(err, op, "")
	}
	if lead.Archived {
		return ClaimResult{}, apperr.Conflict("lead is archived").WithOp(op)
	}
	if lead.LeadClaimed || lead.AssignedAgentID != nil {
		return s.lostClaim(lead, agentID), nil
	}

	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ClaimResult{}, apperr.Forbidden("caller is not a CRM agent").WithOp(op)
		}
		return ClaimResult{}, apperr.Wrap(apperr.KindInternal, "agent lookup failed", err).WithOp(op)
	}
	if !agent.IsActive {
		return ClaimResult{}, apperr.Forbidden("agent is inactive").WithOp(op)
	}

	cfg, err := s.repo.GetRoundRobinConfig(ctx, lead.Language)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ClaimResult{}, apperr.Forbidden("no claim pool exists for this lead's language").WithOp(op)
		}
		return ClaimResult{}, apperr.Wrap(apperr.KindInternal, "pool lookup failed", err).WithOp(op)
	}
	if !slices.Contains(cfg.AgentIDs, agentID) {
		return ClaimResult{}, apperr.Forbidden("agent is not in the claim pool for this lead").WithOp(op)
	}

	now := s.clock.Now()
	updated, won, err := s.repo.ClaimLead(ctx, repository.ClaimParams{
		LeadID:           leadID,
		AgentID:          agentID,
		At:               now,
		ContactExpiresAt: now.Add(s.policy.ContactWindow),
	})
	if err != nil {
		return ClaimResult{}, mapStoreErr(err, op, "")
	}
	if !won {
		return s.lostClaim(updated, agentID), nil
	}

	s.metrics.RecordClaim(string(domain.ClaimWon))
	note := "Claimed by " + agent.DisplayName()
	if updated.ClaimSLABreached {
		note += " after the claim window closed"
	}
	s.addActivity(ctx, domain.Activity{
		LeadID:    leadID,
		ActorID:   &agentID,
		Action:    domain.ActivityClaimed,
		Note:      note,
		CreatedAt: now,
	})
	s.bus.Publish(ctx, events.LeadClaimed{
		BaseEvent:    events.NewBaseEventAt(now),
		LeadID:       leadID,
		AgentID:      agentID,
		PoolAgentIDs: cfg.AgentIDs,
	})
	return ClaimResult{Status: domain.ClaimWon, Lead: updated}, nil
}

func (s *Service) lostClaim(lead domain.Lead, agentID uuid.UUID) ClaimResult {
	status := domain.ClaimAlreadyClaimed
	if lead.IsAssignedTo(agentID) {
		status = domain.ClaimAlreadyYours
	}
	s.metrics.RecordClaim(string(status))
	return ClaimResult{Status: status, Lead: lead}
}

// MarkFirstAction records the first contact. Repeating it is a no-op.
func (s *Service) MarkFirstAction(ctx context.Context, leadID, actorID uuid.UUID, isAdmin bool) (domain.Lead, error) {
	const op = "crm.timers.first_action"

	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		return domain.Lead{}, mapStoreErr(err, op, "")
	}
	if lead.Archived {
		return domain.Lead{}, apperr.Conflict("lead is archived").WithOp(op)
	}
	if !lead.LeadClaimed {
		return domain.Lead{}, apperr.Conflict("lead has not been claimed yet").WithOp(op)
	}
	if !isAdmin && !lead.IsAssignedTo(actorID) {
		return domain.Lead{}, apperr.Forbidden("only the assigned agent can log first contact").WithOp(op)
	}

	now := s.clock.Now()
	updated, changed, err := s.repo.MarkFirstAction(ctx, leadID, now)
	if err != nil {
		return domain.Lead{}, mapStoreErr(err, op, "")
	}
	if !changed {
		return updated, nil
	}

	if lead.ContactTimerStartedAt != nil {
		s.metrics.RecordFirstAction(now.Sub(*lead.ContactTimerStartedAt))
	}
	s.addActivity(ctx, domain.Activity{
		LeadID:    leadID,
		ActorID:   &actorID,
		Action:    domain.ActivityFirstAction,
		Note:      "First contact logged",
		CreatedAt: now,
	})
	agentID := actorID
	if updated.AssignedAgentID != nil {
		agentID = *updated.AssignedAgentID
	}
	s.bus.Publish(ctx, events.LeadContacted{
		BaseEvent: events.NewBaseEventAt(now),
		LeadID:    leadID,
		AgentID:   agentID,
	})
	return updated, nil
}

// CheckClaimBreaches marks every broadcast lead whose claim window passed
// unclaimed and notifies the fallback admin once per lead.
func (s *Service) CheckClaimBreaches(ctx context.Context) (domain.SweepReport, error) {
	started := time.Now()
	now := s.clock.Now()

	due, err := s.repo.ListClaimBreaches(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("claim breach sweep aborted", "error", err)
		return domain.SweepReport{}, err
	}

	var collector domain.SweepCollector
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, lead := range due {
		g.Go(func() error {
			collector.Add(s.handleClaimBreach(ctx, lead, now))
			return nil
		})
	}
	_ = g.Wait()

	report := collector.Report()
	elapsed := time.Since(started)
	s.metrics.RecordSweep(SweepClaimBreaches, elapsed, report.Errors)
	s.log.SweepCompleted(SweepClaimBreaches, report.Processed, report.Errors, float64(elapsed.Milliseconds()))
	return report, nil
}

func (s *Service) handleClaimBreach(ctx context.Context, lead domain.Lead, now time.Time) domain.SweepItem {
	item := domain.SweepItem{LeadID: lead.ID, Action: actionClaimBreach}

	marked, err := s.repo.MarkClaimBreached(ctx, lead.ID, now)
	if err != nil {
		s.log.Warn("mark claim breach failed", "leadId", lead.ID, "error", err)
		item.Error = err.Error()
		return item
	}
	if !marked {
		item.Skipped = true
		item.Error = "breach already recorded"
		return item
	}

	s.metrics.RecordBreach(string(domain.BreachClaim))
	s.addActivity(ctx, domain.Activity{
		LeadID:    lead.ID,
		Action:    domain.ActivityClaimBreached,
		Note:      "No agent claimed the lead within the claim window",
		CreatedAt: now,
	})
	s.bus.Publish(ctx, events.SLABreached{
		BaseEvent: events.NewBaseEventAt(now),
		LeadID:    lead.ID,
		Kind:      string(domain.BreachClaim),
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyClaimBreach(ctx, lead); err != nil {
			s.log.Warn("claim breach notice failed", "leadId", lead.ID, "error", err)
			item.Error = err.Error()
			return item
		}
	}
	item.Success = true
	return item
}

func (s *Service) addActivity(ctx context.Context, a domain.Activity) {
	if err := s.repo.AddActivity(ctx, a); err != nil {
		s.log.Warn("activity write failed", "leadId", a.LeadID, "action", a.Action, "error", err)
	}
}
