package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document loaded by crm-seed.
type SeedFile struct {
	Agents []AgentSeed `yaml:"agents"`
	Rules  []RuleSeed  `yaml:"rules"`
	Pools  []PoolSeed  `yaml:"pools"`
}

type AgentSeed struct {
	Email  string `yaml:"email"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Active *bool  `yaml:"active"`
}

// RuleSeed references its target agent by email. Rules are matched to
// existing rows by name.
type RuleSeed struct {
	Name                string   `yaml:"name"`
	Priority            int      `yaml:"priority"`
	Languages           []string `yaml:"languages"`
	BudgetRanges        []string `yaml:"budgetRanges"`
	LeadSources         []string `yaml:"leadSources"`
	LeadSegments        []string `yaml:"leadSegments"`
	PageTypes           []string `yaml:"pageTypes"`
	TargetAgent         string   `yaml:"targetAgent"`
	FallbackToBroadcast bool     `yaml:"fallbackToBroadcast"`
	Active              *bool    `yaml:"active"`
}

type PoolSeed struct {
	Language      string   `yaml:"language"`
	Agents        []string `yaml:"agents"`
	FallbackAdmin string   `yaml:"fallbackAdmin"`
	Mode          string   `yaml:"mode"`
	Active        *bool    `yaml:"active"`
}

// SeedStore is the persistence surface the seeder writes through.
type SeedStore interface {
	UpsertAgent(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	ListRules(ctx context.Context) ([]domain.RoutingRule, error)
	CreateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error)
	UpdateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error)
	UpsertRoundRobinConfig(ctx context.Context, cfg domain.RoundRobinConfig) (domain.RoundRobinConfig, error)
}

// Summary counts what a seed run wrote.
type Summary struct {
	Agents       int
	RulesCreated int
	RulesUpdated int
	Pools        int
}

func decodeSeed(r io.Reader) (SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return SeedFile{}, fmt.Errorf("decode seed file: %w", err)
	}
	return seed, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// applySeed writes agents first so rules and pools can resolve emails to ids.
// Running it twice with the same file is a no-op apart from timestamps.
func applySeed(ctx context.Context, store SeedStore, seed SeedFile) (Summary, error) {
	var sum Summary
	byEmail := make(map[string]uuid.UUID, len(seed.Agents))

	for _, a := range seed.Agents {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email == "" {
			return sum, fmt.Errorf("agent without email")
		}
		role := domain.AgentRole(a.Role)
		switch role {
		case "":
			role = domain.RoleAgent
		case domain.RoleAgent, domain.RoleAdmin:
		default:
			return sum, fmt.Errorf("agent %s: unknown role %q", email, a.Role)
		}
		saved, err := store.UpsertAgent(ctx, domain.Agent{
			Email:    email,
			Name:     a.Name,
			Role:     role,
			IsActive: boolOr(a.Active, true),
		})
		if err != nil {
			return sum, fmt.Errorf("upsert agent %s: %w", email, err)
		}
		byEmail[email] = saved.ID
		sum.Agents++
	}

	resolve := func(email string) (uuid.UUID, error) {
		id, ok := byEmail[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return uuid.Nil, fmt.Errorf("agent %q is not defined in the seed file", email)
		}
		return id, nil
	}

	existing, err := store.ListRules(ctx)
	if err != nil {
		return sum, fmt.Errorf("list rules: %w", err)
	}
	rulesByName := make(map[string]domain.RoutingRule, len(existing))
	for _, r := range existing {
		rulesByName[r.Name] = r
	}

	for _, rs := range seed.Rules {
		if rs.Name == "" {
			return sum, fmt.Errorf("rule without name")
		}
		rule := domain.RoutingRule{
			Name:                rs.Name,
			Priority:            rs.Priority,
			MatchLanguage:       rs.Languages,
			MatchBudgetRange:    rs.BudgetRanges,
			MatchLeadSource:     rs.LeadSources,
			MatchLeadSegment:    rs.LeadSegments,
			MatchPageType:       rs.PageTypes,
			FallbackToBroadcast: rs.FallbackToBroadcast,
			IsActive:            boolOr(rs.Active, true),
		}
		if rs.TargetAgent != "" {
			id, err := resolve(rs.TargetAgent)
			if err != nil {
				return sum, fmt.Errorf("rule %s: %w", rs.Name, err)
			}
			rule.TargetAgentID = &id
		}

		if prev, ok := rulesByName[rs.Name]; ok {
			rule.ID = prev.ID
			if _, err := store.UpdateRule(ctx, rule); err != nil {
				return sum, fmt.Errorf("update rule %s: %w", rs.Name, err)
			}
			sum.RulesUpdated++
			continue
		}
		if _, err := store.CreateRule(ctx, rule); err != nil {
			return sum, fmt.Errorf("create rule %s: %w", rs.Name, err)
		}
		sum.RulesCreated++
	}

	for _, ps := range seed.Pools {
		language := strings.ToLower(strings.TrimSpace(ps.Language))
		if language == "" {
			return sum, fmt.Errorf("pool without language")
		}
		mode, err := domain.ParseRoundRobinMode(ps.Mode)
		if err != nil {
			return sum, fmt.Errorf("pool %s: %w", language, err)
		}
		cfg := domain.RoundRobinConfig{
			Language: language,
			Mode:     mode,
			IsActive: boolOr(ps.Active, true),
		}
		for _, email := range ps.Agents {
			id, err := resolve(email)
			if err != nil {
				return sum, fmt.Errorf("pool %s: %w", language, err)
			}
			cfg.AgentIDs = append(cfg.AgentIDs, id)
		}
		if ps.FallbackAdmin != "" {
			id, err := resolve(ps.FallbackAdmin)
			if err != nil {
				return sum, fmt.Errorf("pool %s: %w", language, err)
			}
			cfg.FallbackAdminID = &id
		}
		if _, err := store.UpsertRoundRobinConfig(ctx, cfg); err != nil {
			return sum, fmt.Errorf("upsert pool %s: %w", language, err)
		}
		sum.Pools++
	}
	return sum, nil
}
