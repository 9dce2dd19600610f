// Package crmtest provides an in-memory CRM store for tests. Its
// conditional writes follow the same predicates as the SQL repository.
package crmtest

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"

	"github.com/google/uuid"
)

// Store is a mutex-guarded implementation of repository.CRMRepository.
type Store struct {
	mu            sync.Mutex
	leads         map[uuid.UUID]domain.Lead
	agents        map[uuid.UUID]domain.Agent
	rules         []domain.RoutingRule
	pools         map[string]domain.RoundRobinConfig
	reassignments []domain.Reassignment
	activities    []domain.Activity

	// Fail makes the named method return the error once set.
	Fail map[string]error
}

var _ repository.CRMRepository = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		leads:  make(map[uuid.UUID]domain.Lead),
		agents: make(map[uuid.UUID]domain.Agent),
		pools:  make(map[string]domain.RoundRobinConfig),
		Fail:   make(map[string]error),
	}
}

func (s *Store) failure(method string) error {
	return s.Fail[method]
}

// SetFailure makes method fail with err until cleared with a nil err.
func (s *Store) SetFailure(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Fail, method)
		return
	}
	s.Fail[method] = err
}

// AddAgent seeds an agent and returns it.
func (s *Store) AddAgent(name string, role domain.AgentRole) domain.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := domain.Agent{
		ID:       uuid.New(),
		Email:    strings.ToLower(name) + "@estate.test",
		Name:     name,
		Role:     role,
		IsActive: true,
	}
	s.agents[a.ID] = a
	return a
}

// PutLead stores l as-is.
func (s *Store) PutLead(l domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
}

// Lead returns the stored lead.
func (s *Store) Lead(id uuid.UUID) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[id]
}

// Agent returns the stored agent.
func (s *Store) Agent(id uuid.UUID) domain.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents[id]
}

// ActivitiesOf returns the timeline entries of a lead with the given action.
func (s *Store) ActivitiesOf(leadID uuid.UUID, action domain.ActivityAction) []domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for _, a := range s.activities {
		if a.LeadID == leadID && a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

// ---- LeadReader / LeadWriter ----

func (s *Store) CreateLead(_ context.Context, p repository.CreateLeadParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateLead"); err != nil {
		return domain.Lead{}, err
	}
	l := domain.Lead{
		ID: uuid.New(), Language: p.Language, Source: p.Source, Segment: p.Segment,
		BudgetRange: p.BudgetRange, PageType: p.PageType, FullName: p.FullName,
		Email: p.Email, Phone: p.Phone, Message: p.Message,
		CreatedAt: p.CreatedAt, UpdatedAt: p.CreatedAt,
	}
	s.leads[l.ID] = l
	return l, nil
}

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetLead"); err != nil {
		return domain.Lead{}, err
	}
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *Store) ListUnroutable(_ context.Context, limit int) ([]domain.Lead, error) {
	return s.filter(limit, func(l domain.Lead) bool { return l.Unroutable && !l.Archived }, byCreated), nil
}

func (s *Store) MarkUnroutable(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.LeadClaimed || l.Archived {
		return repository.ErrConflict
	}
	l.Unroutable, l.RoutingError, l.UpdatedAt = true, reason, at
	s.leads[id] = l
	return nil
}

func (s *Store) ArchiveLead(_ context.Context, id uuid.UUID, at time.Time) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if l.Archived {
		return domain.Lead{}, repository.ErrConflict
	}
	l.Archived, l.UpdatedAt = true, at
	s.leads[id] = l
	return l, nil
}

// ---- TimerStore ----

func (s *Store) StartBroadcast(_ context.Context, p repository.BroadcastParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("StartBroadcast"); err != nil {
		return domain.Lead{}, err
	}
	l, ok := s.leads[p.LeadID]
	if !ok || l.LeadClaimed || l.Archived {
		return domain.Lead{}, repository.ErrConflict
	}
	l = l.WithBroadcast(p.StartedAt, domain.SLAPolicy{ClaimWindow: p.ExpiresAt.Sub(p.StartedAt)})
	s.leads[l.ID] = l
	return l, nil
}

func (s *Store) AssignDirect(_ context.Context, p repository.AssignParams) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AssignDirect"); err != nil {
		return domain.Lead{}, err
	}
	l, ok := s.leads[p.LeadID]
	if !ok || l.LeadClaimed || l.Archived {
		return domain.Lead{}, repository.ErrConflict
	}
	l = l.WithDirectAssignment(p.AgentID, p.Method, p.At, domain.SLAPolicy{ContactWindow: p.ContactExpiresAt.Sub(p.At)})
	s.leads[l.ID] = l
	s.adjust(p.AgentID, 1)
	return l, nil
}

func (s *Store) ClaimLead(_ context.Context, p repository.ClaimParams) (domain.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ClaimLead"); err != nil {
		return domain.Lead{}, false, err
	}
	l, ok := s.leads[p.LeadID]
	if !ok {
		return domain.Lead{}, false, repository.ErrNotFound
	}
	if l.LeadClaimed || l.AssignedAgentID != nil || l.Archived {
		return l, false, nil
	}
	l = l.WithClaim(p.AgentID, p.At, domain.SLAPolicy{ContactWindow: p.ContactExpiresAt.Sub(p.At)})
	l.Unroutable = false
	s.leads[l.ID] = l
	s.adjust(p.AgentID, 1)
	return l, true, nil
}

func (s *Store) MarkFirstAction(_ context.Context, id uuid.UUID, at time.Time) (domain.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, false, repository.ErrNotFound
	}
	if !l.LeadClaimed || l.FirstActionCompleted || l.Archived {
		return l, false, nil
	}
	l = l.WithFirstAction(at)
	s.leads[id] = l
	return l, true, nil
}

// ---- BreachStore / AlarmStore ----

func (s *Store) ListClaimBreaches(_ context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	if err := s.lockedFailure("ListClaimBreaches"); err != nil {
		return nil, err
	}
	return s.filter(limit, func(l domain.Lead) bool { return l.ClaimBreachDue(now) }, byCreated), nil
}

func (s *Store) MarkClaimBreached(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.LeadClaimed || l.ClaimSLABreached {
		return false, nil
	}
	l.ClaimSLABreached, l.UpdatedAt = true, at
	s.leads[id] = l
	return true, nil
}

func (s *Store) ListContactBreaches(_ context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	if err := s.lockedFailure("ListContactBreaches"); err != nil {
		return nil, err
	}
	return s.filter(limit, func(l domain.Lead) bool { return l.ContactBreachDue(now) }, byCreated), nil
}

func (s *Store) MarkContactBreached(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || !l.LeadClaimed || l.FirstActionCompleted || l.ContactSLABreached {
		return false, nil
	}
	l.ContactSLABreached, l.UpdatedAt = true, at
	s.leads[id] = l
	return true, nil
}

func (s *Store) ListAlarmDue(_ context.Context, level domain.AlarmLevel, startedBefore time.Time, limit int) ([]domain.Lead, error) {
	if err := s.lockedFailure("ListAlarmDue"); err != nil {
		return nil, err
	}
	return s.filter(limit, func(l domain.Lead) bool {
		return !l.LeadClaimed && !l.ClaimSLABreached && !l.Archived &&
			l.LastAlarmLevel == level-1 &&
			l.ClaimTimerStartedAt != nil && !l.ClaimTimerStartedAt.After(startedBefore)
	}, byCreated), nil
}

func (s *Store) AdvanceAlarmLevel(_ context.Context, id uuid.UUID, from, to domain.AlarmLevel, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AdvanceAlarmLevel"); err != nil {
		return false, err
	}
	l, ok := s.leads[id]
	if !ok || l.LastAlarmLevel != from || l.LeadClaimed {
		return false, nil
	}
	l.LastAlarmLevel, l.UpdatedAt = to, at
	s.leads[id] = l
	return true, nil
}

// ---- RuleStore / PoolStore ----

func (s *Store) ListRules(context.Context) ([]domain.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListRules"); err != nil {
		return nil, err
	}
	return slices.Clone(s.rules), nil
}

func (s *Store) GetRule(_ context.Context, id uuid.UUID) (domain.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.RoutingRule{}, repository.ErrNotFound
}

func (s *Store) CreateRule(_ context.Context, rule domain.RoutingRule) (domain.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	s.rules = append(s.rules, rule)
	return rule, nil
}

func (s *Store) UpdateRule(_ context.Context, rule domain.RoutingRule) (domain.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == rule.ID {
			rule.CreatedAt = r.CreatedAt
			s.rules[i] = rule
			return rule, nil
		}
	}
	return domain.RoutingRule{}, repository.ErrNotFound
}

func (s *Store) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = slices.Delete(s.rules, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) GetRoundRobinConfig(_ context.Context, language string) (domain.RoundRobinConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetRoundRobinConfig"); err != nil {
		return domain.RoundRobinConfig{}, err
	}
	cfg, ok := s.pools[language]
	if !ok {
		return domain.RoundRobinConfig{}, repository.ErrNotFound
	}
	cfg.AgentIDs = slices.Clone(cfg.AgentIDs)
	return cfg, nil
}

func (s *Store) ListRoundRobinConfigs(context.Context) ([]domain.RoundRobinConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoundRobinConfig, 0, len(s.pools))
	for _, cfg := range s.pools {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out, nil
}

func (s *Store) UpsertRoundRobinConfig(_ context.Context, cfg domain.RoundRobinConfig) (domain.RoundRobinConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pools[cfg.Language]; ok {
		cfg.ID = existing.ID
		cfg.RoundNumber = existing.RoundNumber
	} else if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeBroadcast
	}
	s.pools[cfg.Language] = cfg
	return cfg, nil
}

func (s *Store) AdvanceRoundRobin(_ context.Context, language string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.pools[language]
	if !ok {
		return 0, repository.ErrNotFound
	}
	cursor := cfg.RoundNumber
	cfg.RoundNumber++
	s.pools[language] = cfg
	return cursor, nil
}

// ---- AgentStore ----

func (s *Store) GetAgent(_ context.Context, id uuid.UUID) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return domain.Agent{}, repository.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAgentByEmail(_ context.Context, email string) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return domain.Agent{}, repository.ErrNotFound
}

func (s *Store) ListAgents(context.Context) ([]domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertAgent(_ context.Context, agent domain.Agent) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.agents {
		if strings.EqualFold(a.Email, agent.Email) {
			a.Name, a.Role, a.IsActive = agent.Name, agent.Role, agent.IsActive
			s.agents[id] = a
			return a, nil
		}
	}
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	s.agents[agent.ID] = agent
	return agent, nil
}

func (s *Store) SetAgentActive(_ context.Context, id uuid.UUID, active bool) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return domain.Agent{}, repository.ErrNotFound
	}
	a.IsActive = active
	s.agents[id] = a
	return a, nil
}

func (s *Store) AdjustLeadCount(_ context.Context, id uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AdjustLeadCount"); err != nil {
		return err
	}
	if _, ok := s.agents[id]; !ok {
		return repository.ErrNotFound
	}
	s.adjust(id, delta)
	return nil
}

func (s *Store) adjust(id uuid.UUID, delta int) {
	a, ok := s.agents[id]
	if !ok {
		return
	}
	a.CurrentLeadCount = max(a.CurrentLeadCount+delta, 0)
	s.agents[id] = a
}

// ---- ReassignmentStore / ActivityLogger ----

func (s *Store) ApplyReassignment(_ context.Context, p repository.ReassignParams) (domain.Lead, domain.Reassignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ApplyReassignment"); err != nil {
		return domain.Lead{}, domain.Reassignment{}, err
	}
	current, ok := s.leads[p.Lead.ID]
	if !ok || current.Archived || current.ReassignmentCount != p.ExpectedCount ||
		!sameAgent(current.AssignedAgentID, p.ExpectedAgentID) {
		return domain.Lead{}, domain.Reassignment{}, repository.ErrConflict
	}
	rec := p.Record
	rec.ID = uuid.New()
	s.leads[p.Lead.ID] = p.Lead
	s.reassignments = append(s.reassignments, rec)
	return p.Lead, rec, nil
}

func (s *Store) ListReassignments(_ context.Context, leadID uuid.UUID) ([]domain.Reassignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Reassignment, 0)
	for _, r := range s.reassignments {
		if r.LeadID == leadID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) AddActivity(_ context.Context, a domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AddActivity"); err != nil {
		return err
	}
	a.ID = uuid.New()
	s.activities = append(s.activities, a)
	return nil
}

func (s *Store) ListActivities(_ context.Context, leadID uuid.UUID) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activity, 0)
	for _, a := range s.activities {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ---- helpers ----

func (s *Store) lockedFailure(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure(method)
}

func byCreated(a, b domain.Lead) int { return a.CreatedAt.Compare(b.CreatedAt) }

func (s *Store) filter(limit int, keep func(domain.Lead) bool, cmp func(a, b domain.Lead) int) []domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lead, 0)
	for _, l := range s.leads {
		if keep(l) {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, cmp)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sameAgent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ErrInjected is a convenience error for SetFailure.
var ErrInjected = errors.New("injected failure")
