package transport

import (
	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/routing"

	"github.com/google/uuid"
)

func ToLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:                    l.ID,
		Language:              l.Language,
		Source:                l.Source,
		Segment:               l.Segment,
		BudgetRange:           l.BudgetRange,
		PageType:              l.PageType,
		FullName:              l.FullName,
		Email:                 l.Email,
		Phone:                 l.Phone,
		Message:               l.Message,
		State:                 string(l.State()),
		AssignedAgentID:       l.AssignedAgentID,
		PreviousAgentID:       l.PreviousAgentID,
		AssignmentMethod:      string(l.AssignmentMethod),
		AssignedAt:            l.AssignedAt,
		LeadClaimed:           l.LeadClaimed,
		ReassignmentCount:     l.ReassignmentCount,
		ReassignmentReason:    string(l.ReassignmentReason),
		ReassignedAt:          l.ReassignedAt,
		ClaimTimerStartedAt:   l.ClaimTimerStartedAt,
		ClaimTimerExpiresAt:   l.ClaimTimerExpiresAt,
		ClaimSLABreached:      l.ClaimSLABreached,
		ContactTimerStartedAt: l.ContactTimerStartedAt,
		ContactTimerExpiresAt: l.ContactTimerExpiresAt,
		ContactSLABreached:    l.ContactSLABreached,
		FirstActionCompleted:  l.FirstActionCompleted,
		FirstActionAt:         l.FirstActionAt,
		LastAlarmLevel:        int(l.LastAlarmLevel),
		Unroutable:            l.Unroutable,
		RoutingError:          l.RoutingError,
		Archived:              l.Archived,
		CreatedAt:             l.CreatedAt,
		UpdatedAt:             l.UpdatedAt,
	}
}

func ToLeadList(leads []domain.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, ToLeadResponse(l))
	}
	return out
}

func ToRouteResult(r routing.Result) RouteResultResponse {
	return RouteResultResponse{
		Outcome:       string(r.Outcome),
		Method:        string(r.Method),
		AgentID:       r.AgentID,
		PoolAgentIDs:  r.PoolAgentIDs,
		MatchedRuleID: r.MatchedRuleID,
		Reason:        r.Reason,
	}
}

func ToActivityList(items []domain.Activity) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, ActivityResponse{
			ID:        a.ID,
			ActorID:   a.ActorID,
			Action:    string(a.Action),
			Note:      a.Note,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		})
	}
	return out
}

func ToReassignment(r domain.Reassignment) ReassignmentResponse {
	return ReassignmentResponse{
		ID:           r.ID,
		LeadID:       r.LeadID,
		FromAgentID:  r.FromAgentID,
		ToAgentID:    r.ToAgentID,
		ReassignedBy: r.ReassignedBy,
		Reason:       string(r.Reason),
		Stage:        string(r.Stage),
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
	}
}

func ToReassignmentList(records []domain.Reassignment) []ReassignmentResponse {
	out := make([]ReassignmentResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ToReassignment(r))
	}
	return out
}

// ToRule maps a request onto a rule. New rules are active unless told otherwise.
func (r RoutingRuleRequest) ToRule() domain.RoutingRule {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return domain.RoutingRule{
		Name:                r.Name,
		Priority:            r.Priority,
		MatchLanguage:       r.MatchLanguage,
		MatchBudgetRange:    r.MatchBudgetRange,
		MatchLeadSource:     r.MatchLeadSource,
		MatchLeadSegment:    r.MatchLeadSegment,
		MatchPageType:       r.MatchPageType,
		TargetAgentID:       r.TargetAgentID,
		IsActive:            active,
		FallbackToBroadcast: r.FallbackToBroadcast,
	}
}

func ToRule(r domain.RoutingRule) RoutingRuleResponse {
	return RoutingRuleResponse{
		ID:                  r.ID,
		Name:                r.Name,
		Priority:            r.Priority,
		MatchLanguage:       nonNil(r.MatchLanguage),
		MatchBudgetRange:    nonNil(r.MatchBudgetRange),
		MatchLeadSource:     nonNil(r.MatchLeadSource),
		MatchLeadSegment:    nonNil(r.MatchLeadSegment),
		MatchPageType:       nonNil(r.MatchPageType),
		TargetAgentID:       r.TargetAgentID,
		IsActive:            r.IsActive,
		FallbackToBroadcast: r.FallbackToBroadcast,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func ToRuleList(rules []domain.RoutingRule) []RoutingRuleResponse {
	out := make([]RoutingRuleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, ToRule(r))
	}
	return out
}

// ToConfig maps a request onto a pool for language. Pools are active unless
// told otherwise.
func (r RoundRobinRequest) ToConfig(language string) domain.RoundRobinConfig {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	mode, _ := domain.ParseRoundRobinMode(r.Mode)
	return domain.RoundRobinConfig{
		Language:        language,
		AgentIDs:        r.AgentIDs,
		FallbackAdminID: r.FallbackAdminID,
		Mode:            mode,
		IsActive:        active,
	}
}

func ToPool(c domain.RoundRobinConfig) RoundRobinResponse {
	ids := c.AgentIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return RoundRobinResponse{
		ID:              c.ID,
		Language:        c.Language,
		AgentIDs:        ids,
		RoundNumber:     c.RoundNumber,
		FallbackAdminID: c.FallbackAdminID,
		Mode:            string(c.Mode),
		IsActive:        c.IsActive,
		UpdatedAt:       c.UpdatedAt,
	}
}

func ToPoolList(configs []domain.RoundRobinConfig) []RoundRobinResponse {
	out := make([]RoundRobinResponse, 0, len(configs))
	for _, c := range configs {
		out = append(out, ToPool(c))
	}
	return out
}

func ToAgent(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Role:             string(a.Role),
		IsActive:         a.IsActive,
		CurrentLeadCount: a.CurrentLeadCount,
	}
}

func ToAgentList(agents []domain.Agent) []AgentResponse {
	out := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, ToAgent(a))
	}
	return out
}

func (r RoutingTestRequest) Attributes() domain.LeadAttributes {
	return domain.LeadAttributes{
		Language:    r.Language,
		BudgetRange: r.BudgetRange,
		Source:      r.Source,
		Segment:     r.Segment,
		PageType:    r.PageType,
	}
}

func ToPreview(p routing.Preview) RoutingPreviewResponse {
	resp := RoutingPreviewResponse{
		Outcome:  string(p.Outcome),
		Method:   string(p.Method),
		Rotation: p.Rotation,
		Reason:   p.Reason,
	}
	if p.Agent != nil {
		a := ToAgent(*p.Agent)
		resp.Agent = &a
	}
	if len(p.Pool) > 0 {
		resp.Pool = ToAgentList(p.Pool)
	}
	if p.MatchedRule != nil {
		r := ToRule(*p.MatchedRule)
		resp.MatchedRule = &r
	}
	return resp
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
