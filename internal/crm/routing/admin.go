package routing

import (
	"context"
	"errors"
	"strings"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	opRules  = "crm.routing.rules"
	opPools  = "crm.routing.pools"
	opAgents = "crm.routing.agents"
)

func storeError(err error, op, missing string) error {
	if errors.Is(err, repository.ErrNotFound) {
		if missing == "" {
			missing = "not found"
		}
		return apperr.NotFound(missing).WithOp(op)
	}
	return apperr.Wrap(apperr.KindInternal, "routing store failed", err).WithOp(op)
}

// ListRules returns every rule in evaluation order.
func (s *Service) ListRules(ctx context.Context) ([]domain.RoutingRule, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return nil, storeError(err, opRules, "")
	}
	return rules, nil
}

// GetRule returns one rule.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (domain.RoutingRule, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return domain.RoutingRule{}, storeError(err, opRules, "rule not found")
	}
	return rule, nil
}

// CreateRule validates and stores a new rule.
func (s *Service) CreateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error) {
	if err := s.validateRule(ctx, &rule); err != nil {
		return domain.RoutingRule{}, err
	}
	created, err := s.repo.CreateRule(ctx, rule)
	if err != nil {
		return domain.RoutingRule{}, storeError(err, opRules, "rule not found")
	}
	s.log.Info("routing rule created", "ruleId", created.ID, "priority", created.Priority)
	return created, nil
}

// UpdateRule replaces a rule's fields.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, rule domain.RoutingRule) (domain.RoutingRule, error) {
	rule.ID = id
	if err := s.validateRule(ctx, &rule); err != nil {
		return domain.RoutingRule{}, err
	}
	updated, err := s.repo.UpdateRule(ctx, rule)
	if err != nil {
		return domain.RoutingRule{}, storeError(err, opRules, "rule not found")
	}
	return updated, nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return storeError(err, opRules, "rule not found")
	}
	return nil
}

func (s *Service) validateRule(ctx context.Context, rule *domain.RoutingRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.MatchLanguage = normalizeList(rule.MatchLanguage, true)
	rule.MatchBudgetRange = normalizeList(rule.MatchBudgetRange, false)
	rule.MatchLeadSource = normalizeList(rule.MatchLeadSource, false)
	rule.MatchLeadSegment = normalizeList(rule.MatchLeadSegment, false)
	rule.MatchPageType = normalizeList(rule.MatchPageType, false)

	if rule.TargetAgentID == nil {
		if !rule.FallbackToBroadcast {
			return apperr.Validation("a rule without broadcast fallback needs a target agent").WithOp(opRules)
		}
		return nil
	}
	if _, err := s.repo.GetAgent(ctx, *rule.TargetAgentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Validation("target agent does not exist").WithOp(opRules)
		}
		return storeError(err, opRules, "")
	}
	return nil
}

func normalizeList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ListPools returns every round-robin config.
func (s *Service) ListPools(ctx context.Context) ([]domain.RoundRobinConfig, error) {
	pools, err := s.repo.ListRoundRobinConfigs(ctx)
	if err != nil {
		return nil, storeError(err, opPools, "")
	}
	return pools, nil
}

// GetPool returns the config for one language.
func (s *Service) GetPool(ctx context.Context, language string) (domain.RoundRobinConfig, error) {
	cfg, err := s.repo.GetRoundRobinConfig(ctx, strings.ToLower(language))
	if err != nil {
		return domain.RoundRobinConfig{}, storeError(err, opPools, "no round-robin config for language")
	}
	return cfg, nil
}

// UpsertPool creates or replaces a language pool. The rotation cursor is kept.
func (s *Service) UpsertPool(ctx context.Context, cfg domain.RoundRobinConfig) (domain.RoundRobinConfig, error) {
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	if cfg.Language == "" {
		return domain.RoundRobinConfig{}, apperr.Validation("language is required").WithOp(opPools)
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeBroadcast
	}

	seen := make(map[uuid.UUID]bool, len(cfg.AgentIDs))
	agents := make([]uuid.UUID, 0, len(cfg.AgentIDs))
	for _, id := range cfg.AgentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.repo.GetAgent(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.RoundRobinConfig{}, apperr.Validation("pool agent " + id.String() + " does not exist").WithOp(opPools)
			}
			return domain.RoundRobinConfig{}, storeError(err, opPools, "")
		}
		agents = append(agents, id)
	}
	cfg.AgentIDs = agents

	if cfg.FallbackAdminID != nil {
		adm, err := s.repo.GetAgent(ctx, *cfg.FallbackAdminID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.RoundRobinConfig{}, apperr.Validation("fallback admin does not exist").WithOp(opPools)
			}
			return domain.RoundRobinConfig{}, storeError(err, opPools, "")
		}
		if adm.Role != domain.RoleAdmin {
			return domain.RoundRobinConfig{}, apperr.Validation("fallback admin must have the admin role").WithOp(opPools)
		}
	}

	saved, err := s.repo.UpsertRoundRobinConfig(ctx, cfg)
	if err != nil {
		return domain.RoundRobinConfig{}, storeError(err, opPools, "")
	}
	s.log.Info("round-robin pool saved", "language", saved.Language, "agents", len(saved.AgentIDs), "mode", saved.Mode)
	return saved, nil
}

// ListAgents returns every agent with their running lead count.
func (s *Service) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.repo.ListAgents(ctx)
	if err != nil {
		return nil, storeError(err, opAgents, "")
	}
	return agents, nil
}

// SetAgentActive toggles whether an agent receives routed leads.
func (s *Service) SetAgentActive(ctx context.Context, id uuid.UUID, active bool) (domain.Agent, error) {
	agent, err := s.repo.SetAgentActive(ctx, id, active)
	if err != nil {
		return domain.Agent{}, storeError(err, opAgents, "agent not found")
	}
	return agent, nil
}
