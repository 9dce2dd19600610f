// Package escalation sends the CRM alert emails: broadcast offers, the
// unclaimed-lead alarm ladder and the admin breach notices.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/google/uuid"
)

// Repository is the store surface the notifier needs.
type Repository interface {
	repository.AlarmStore
	repository.BreachStore
	repository.PoolStore
	repository.AgentStore
	repository.ActivityLogger
}

// InApp persists in-app notifications.
type InApp interface {
	Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
}

// Settings are the non-SLA knobs of the notifier.
type Settings struct {
	AppBaseURL         string
	FallbackAdminEmail string
	BatchSize          int
	Concurrency        int
}

// ErrNoFallbackAdmin means neither the language pool nor the environment
// names an administrator.
var ErrNoFallbackAdmin = errors.New("no fallback admin configured")

// Service is the escalation notifier.
type Service struct {
	repo     Repository
	sender   email.Sender
	inapp    InApp
	bus      events.Bus
	clock    clock.Clock
	policy   domain.SLAPolicy
	settings Settings
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo     Repository
	Sender   email.Sender
	InApp    InApp
	Bus      events.Bus
	Clock    clock.Clock
	Policy   domain.SLAPolicy
	Settings Settings
	Metrics  *metrics.Metrics
	Log      *logger.Logger
}

// New creates the notifier.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Bus == nil {
		d.Bus = events.NopBus{}
	}
	if d.Settings.BatchSize <= 0 {
		d.Settings.BatchSize = 100
	}
	if d.Settings.Concurrency <= 0 {
		d.Settings.Concurrency = 4
	}
	d.Settings.AppBaseURL = strings.TrimRight(d.Settings.AppBaseURL, "/")
	return &Service{
		repo:     d.Repo,
		sender:   d.Sender,
		inapp:    d.InApp,
		bus:      d.Bus,
		clock:    d.Clock,
		policy:   d.Policy,
		settings: d.Settings,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

func (s *Service) leadURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/crm/leads/%s", s.settings.AppBaseURL, id)
}

func (s *Service) claimURL(id uuid.UUID) string {
	return s.leadURL(id) + "?action=claim"
}

func (s *Service) reassignURL(id uuid.UUID) string {
	return fmt.Sprintf("%s/admin/crm/leads/%s/reassign", s.settings.AppBaseURL, id)
}

func summarize(l domain.Lead) email.LeadSummary {
	return email.LeadSummary{
		Name:        l.FullName,
		Email:       l.Email,
		Phone:       l.Phone,
		Language:    l.Language,
		Source:      l.Source,
		Segment:     l.Segment,
		BudgetRange: l.BudgetRange,
		PageType:    l.PageType,
		Message:     l.Message,
	}
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

func poolEmails(pool []domain.Agent) []string {
	out := make([]string, 0, len(pool))
	for _, a := range pool {
		if a.Email != "" {
			out = append(out, a.Email)
		}
	}
	return out
}

func poolIDs(pool []domain.Agent) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(pool))
	for _, a := range pool {
		out = append(out, a.ID)
	}
	return out
}

// admin is whoever receives breach notices. ID is nil when the address
// came from the environment and matches no agent row.
type admin struct {
	ID    *uuid.UUID
	Name  string
	Email string
}

// resolveAdmin prefers the language pool's fallback admin, then the
// environment address.
func (s *Service) resolveAdmin(ctx context.Context, language string) (admin, error) {
	cfg, err := s.repo.GetRoundRobinConfig(ctx, language)
	switch {
	case err == nil && cfg.FallbackAdminID != nil:
		a, getErr := s.repo.GetAgent(ctx, *cfg.FallbackAdminID)
		if getErr == nil && a.IsActive && a.Email != "" {
			id := a.ID
			return admin{ID: &id, Name: a.DisplayName(), Email: a.Email}, nil
		}
		if getErr != nil && !errors.Is(getErr, repository.ErrNotFound) {
			return admin{}, getErr
		}
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return admin{}, err
	}

	if s.settings.FallbackAdminEmail == "" {
		return admin{}, ErrNoFallbackAdmin
	}
	a, err := s.repo.GetAgentByEmail(ctx, s.settings.FallbackAdminEmail)
	if err == nil {
		id := a.ID
		return admin{ID: &id, Name: a.DisplayName(), Email: a.Email}, nil
	}
	return admin{Email: s.settings.FallbackAdminEmail}, nil
}

// activePool resolves the language pool from a preloaded snapshot.
func activePool(pools map[string]domain.RoundRobinConfig, agents map[uuid.UUID]domain.Agent, language string) ([]domain.Agent, error) {
	cfg, ok := pools[language]
	if !ok || !cfg.IsActive {
		return nil, errors.New(domain.UnroutableNoConfig)
	}
	pool := cfg.ActivePool(agents)
	if len(pool) == 0 {
		return nil, errors.New(domain.UnroutableEmptyPool)
	}
	return pool, nil
}

func (s *Service) loadSnapshot(ctx context.Context) (map[string]domain.RoundRobinConfig, map[uuid.UUID]domain.Agent, error) {
	configs, err := s.repo.ListRoundRobinConfigs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list round-robin configs: %w", err)
	}
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list agents: %w", err)
	}
	pools := make(map[string]domain.RoundRobinConfig, len(configs))
	for _, c := range configs {
		pools[c.Language] = c
	}
	byID := make(map[uuid.UUID]domain.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	return pools, byID, nil
}

func (s *Service) notifyAgent(ctx context.Context, agentID uuid.UUID, leadID uuid.UUID, kind, title, content string) {
	if s.inapp == nil {
		return
	}
	lead := leadID
	if _, err := s.inapp.Create(ctx, inapp.CreateParams{
		AgentID: agentID,
		LeadID:  &lead,
		Kind:    kind,
		Title:   title,
		Content: content,
	}); err != nil {
		s.log.Warn("in-app notification failed", "leadId", leadID, "agentId", agentID, "kind", kind, "error", err)
	}
}

func (s *Service) addActivity(ctx context.Context, a domain.Activity) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now()
	}
	if err := s.repo.AddActivity(ctx, a); err != nil {
		s.log.Warn("activity write failed", "leadId", a.LeadID, "action", a.Action, "error", err)
	}
}
