package domain

import (
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LeadAttributes are the lead fields routing rules match against.
type LeadAttributes struct {
	Language    string `json:"language"`
	BudgetRange string `json:"budgetRange,omitempty"`
	Source      string `json:"source,omitempty"`
	Segment     string `json:"segment,omitempty"`
	PageType    string `json:"pageType,omitempty"`
}

// RoutingRule directs matching leads to a target agent or to broadcast.
// Empty match arrays are wildcards.
type RoutingRule struct {
	ID                  uuid.UUID
	Name                string
	Priority            int
	MatchLanguage       []string
	MatchBudgetRange    []string
	MatchLeadSource     []string
	MatchLeadSegment    []string
	MatchPageType       []string
	TargetAgentID       *uuid.UUID
	IsActive            bool
	FallbackToBroadcast bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Matches reports whether every non-empty criterion contains the lead's value.
// An absent attribute never satisfies a non-empty criterion.
func (r RoutingRule) Matches(a LeadAttributes) bool {
	return criterionMatches(r.MatchLanguage, a.Language) &&
		criterionMatches(r.MatchBudgetRange, a.BudgetRange) &&
		criterionMatches(r.MatchLeadSource, a.Source) &&
		criterionMatches(r.MatchLeadSegment, a.Segment) &&
		criterionMatches(r.MatchPageType, a.PageType)
}

func criterionMatches(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	if value == "" {
		return false
	}
	return slices.Contains(allowed, value)
}

// EvaluateRules returns the first active rule, by descending priority, that
// matches a. Rules with equal priority keep the order they were given in.
func EvaluateRules(rules []RoutingRule, a LeadAttributes) (RoutingRule, bool) {
	active := make([]RoutingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	for _, r := range active {
		if r.Matches(a) {
			return r, true
		}
	}
	return RoutingRule{}, false
}

// RoundRobinConfig is the per-language agent pool.
type RoundRobinConfig struct {
	ID              uuid.UUID
	Language        string
	AgentIDs        []uuid.UUID
	RoundNumber     int64
	FallbackAdminID *uuid.UUID
	Mode            RoundRobinMode
	IsActive        bool
	UpdatedAt       time.Time
}

// ActivePool returns the configured agents that exist and are active, in
// configured order.
func (c RoundRobinConfig) ActivePool(agents map[uuid.UUID]Agent) []Agent {
	pool := make([]Agent, 0, len(c.AgentIDs))
	for _, id := range c.AgentIDs {
		if a, ok := agents[id]; ok && a.IsActive {
			pool = append(pool, a)
		}
	}
	return pool
}

// PickRotation selects the pool member under cursor.
func PickRotation(pool []Agent, cursor int64) (Agent, bool) {
	if len(pool) == 0 {
		return Agent{}, false
	}
	idx := cursor % int64(len(pool))
	if idx < 0 {
		idx += int64(len(pool))
	}
	return pool[idx], true
}

// RouteOutcome is the kind of routing decision.
type RouteOutcome string

const (
	RouteDirect     RouteOutcome = "direct"
	RouteBroadcast  RouteOutcome = "broadcast"
	RouteUnroutable RouteOutcome = "unroutable"
)

// Unroutable reasons.
const (
	UnroutableNoConfig  = "no active round-robin config for language"
	UnroutableEmptyPool = "round-robin pool has no active agents"
)

// RouteDecision is the pure result of routing evaluation.
type RouteDecision struct {
	Outcome     RouteOutcome
	Method      AssignmentMethod
	Agent       *Agent
	Pool        []Agent
	MatchedRule *RoutingRule
	// Rotation is set when the agent came from the rotation cursor.
	Rotation bool
	Reason   string
}

// RoutingSnapshot is everything PlanRoute reads.
type RoutingSnapshot struct {
	Rules  []RoutingRule
	Config *RoundRobinConfig
	Agents map[uuid.UUID]Agent
}

// PlanRoute decides where a lead goes without touching any state.
//
// A matched rule with FallbackToBroadcast=false assigns its target directly.
// A matched rule with FallbackToBroadcast=true is discarded in favour of the
// language pool, as is a rule whose target agent is missing or inactive.
func PlanRoute(snap RoutingSnapshot, a LeadAttributes) RouteDecision {
	var decision RouteDecision

	if rule, ok := EvaluateRules(snap.Rules, a); ok {
		decision.MatchedRule = &rule
		if !rule.FallbackToBroadcast {
			if rule.TargetAgentID != nil {
				if agent, found := snap.Agents[*rule.TargetAgentID]; found && agent.IsActive {
					decision.Outcome = RouteDirect
					decision.Method = MethodRuleMatch
					decision.Agent = &agent
					decision.Reason = "matched rule " + ruleLabel(rule)
					return decision
				}
			}
			decision.Reason = "rule " + ruleLabel(rule) + " target unavailable; "
		}
	}

	cfg := snap.Config
	if cfg == nil || !cfg.IsActive {
		decision.Outcome = RouteUnroutable
		decision.Reason += UnroutableNoConfig
		return decision
	}
	pool := cfg.ActivePool(snap.Agents)
	if len(pool) == 0 {
		decision.Outcome = RouteUnroutable
		decision.Reason += UnroutableEmptyPool
		return decision
	}

	if cfg.Mode == ModeRotate {
		agent, _ := PickRotation(pool, cfg.RoundNumber)
		decision.Outcome = RouteDirect
		decision.Method = MethodRoundRobin
		decision.Agent = &agent
		decision.Pool = pool
		decision.Rotation = true
		decision.Reason += "rotation cursor"
		return decision
	}

	decision.Outcome = RouteBroadcast
	decision.Method = MethodBroadcastClaim
	decision.Pool = pool
	decision.Reason += "broadcast to language pool"
	return decision
}

func ruleLabel(r RoutingRule) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID.String()
}
