// Package transport holds the JSON request and response shapes of the CRM API.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type CaptureLeadRequest struct {
	FullName    string `json:"fullName" validate:"max=200"`
	Email       string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
	Language    string `json:"language" validate:"required,alpha,len=2"`
	Source      string `json:"source,omitempty" validate:"max=100"`
	Segment     string `json:"segment,omitempty" validate:"max=100"`
	BudgetRange string `json:"budgetRange,omitempty" validate:"max=100"`
	PageType    string `json:"pageType,omitempty" validate:"max=100"`
	Message     string `json:"message,omitempty" validate:"max=4000"`
}

type ReassignLeadRequest struct {
	ToAgentID uuid.UUID `json:"toAgentId" validate:"required"`
	Reason    string    `json:"reason" validate:"required,oneof=unclaimed no_contact manual"`
	Notes     string    `json:"notes,omitempty" validate:"max=2000"`
}

type RoutingRuleRequest struct {
	Name                string     `json:"name" validate:"required,max=120"`
	Priority            int        `json:"priority" validate:"min=0,max=10000"`
	MatchLanguage       []string   `json:"matchLanguage" validate:"omitempty,dive,alpha,len=2"`
	MatchBudgetRange    []string   `json:"matchBudgetRange" validate:"omitempty,dive,max=100"`
	MatchLeadSource     []string   `json:"matchLeadSource" validate:"omitempty,dive,max=100"`
	MatchLeadSegment    []string   `json:"matchLeadSegment" validate:"omitempty,dive,max=100"`
	MatchPageType       []string   `json:"matchPageType" validate:"omitempty,dive,max=100"`
	TargetAgentID       *uuid.UUID `json:"targetAgentId,omitempty"`
	IsActive            *bool      `json:"isActive,omitempty"`
	FallbackToBroadcast bool       `json:"fallbackToBroadcast"`
}

type RoundRobinRequest struct {
	AgentIDs        []uuid.UUID `json:"agentIds" validate:"max=100"`
	FallbackAdminID *uuid.UUID  `json:"fallbackAdminId,omitempty"`
	Mode            string      `json:"mode,omitempty" validate:"omitempty,oneof=broadcast rotate"`
	IsActive        *bool       `json:"isActive,omitempty"`
}

type RoutingTestRequest struct {
	Language    string `json:"language" validate:"required,alpha,len=2"`
	BudgetRange string `json:"budgetRange,omitempty"`
	Source      string `json:"source,omitempty"`
	Segment     string `json:"segment,omitempty"`
	PageType    string `json:"pageType,omitempty"`
}

type SetAgentActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// Response DTOs

type LeadResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Language              string     `json:"language"`
	Source                string     `json:"source,omitempty"`
	Segment               string     `json:"segment,omitempty"`
	BudgetRange           string     `json:"budgetRange,omitempty"`
	PageType              string     `json:"pageType,omitempty"`
	FullName              string     `json:"fullName,omitempty"`
	Email                 string     `json:"email,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	Message               string     `json:"message,omitempty"`
	State                 string     `json:"state"`
	AssignedAgentID       *uuid.UUID `json:"assignedAgentId,omitempty"`
	PreviousAgentID       *uuid.UUID `json:"previousAgentId,omitempty"`
	AssignmentMethod      string     `json:"assignmentMethod,omitempty"`
	AssignedAt            *time.Time `json:"assignedAt,omitempty"`
	LeadClaimed           bool       `json:"leadClaimed"`
	ReassignmentCount     int        `json:"reassignmentCount"`
	ReassignmentReason    string     `json:"reassignmentReason,omitempty"`
	ReassignedAt          *time.Time `json:"reassignedAt,omitempty"`
	ClaimTimerStartedAt   *time.Time `json:"claimTimerStartedAt,omitempty"`
	ClaimTimerExpiresAt   *time.Time `json:"claimTimerExpiresAt,omitempty"`
	ClaimSLABreached      bool       `json:"claimSlaBreached"`
	ContactTimerStartedAt *time.Time `json:"contactTimerStartedAt,omitempty"`
	ContactTimerExpiresAt *time.Time `json:"contactTimerExpiresAt,omitempty"`
	ContactSLABreached    bool       `json:"contactSlaBreached"`
	FirstActionCompleted  bool       `json:"firstActionCompleted"`
	FirstActionAt         *time.Time `json:"firstActionAt,omitempty"`
	LastAlarmLevel        int        `json:"lastAlarmLevel"`
	Unroutable            bool       `json:"unroutable"`
	RoutingError          string     `json:"routingError,omitempty"`
	Archived              bool       `json:"archived"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

type RouteResultResponse struct {
	Outcome       string      `json:"outcome"`
	Method        string      `json:"method,omitempty"`
	AgentID       *uuid.UUID  `json:"agentId,omitempty"`
	PoolAgentIDs  []uuid.UUID `json:"poolAgentIds,omitempty"`
	MatchedRuleID *uuid.UUID  `json:"matchedRuleId,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

type CaptureLeadResponse struct {
	Lead    LeadResponse         `json:"lead"`
	Routing *RouteResultResponse `json:"routing,omitempty"`
	Queued  bool                 `json:"queued"`
}

type RouteLeadResponse struct {
	Lead    LeadResponse        `json:"lead"`
	Routing RouteResultResponse `json:"routing"`
}

type ClaimResponse struct {
	Status string       `json:"status"`
	Lead   LeadResponse `json:"lead"`
}

type ActivityResponse struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   *uuid.UUID     `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	Note      string         `json:"note,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type ReassignmentResponse struct {
	ID           uuid.UUID  `json:"id"`
	LeadID       uuid.UUID  `json:"leadId"`
	FromAgentID  *uuid.UUID `json:"fromAgentId,omitempty"`
	ToAgentID    uuid.UUID  `json:"toAgentId"`
	ReassignedBy uuid.UUID  `json:"reassignedBy"`
	Reason       string     `json:"reason"`
	Stage        string     `json:"stage"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type ReassignLeadResponse struct {
	Lead     LeadResponse         `json:"lead"`
	Record   ReassignmentResponse `json:"record"`
	Warnings []string             `json:"warnings,omitempty"`
}

type RoutingRuleResponse struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Priority            int        `json:"priority"`
	MatchLanguage       []string   `json:"matchLanguage"`
	MatchBudgetRange    []string   `json:"matchBudgetRange"`
	MatchLeadSource     []string   `json:"matchLeadSource"`
	MatchLeadSegment    []string   `json:"matchLeadSegment"`
	MatchPageType       []string   `json:"matchPageType"`
	TargetAgentID       *uuid.UUID `json:"targetAgentId,omitempty"`
	IsActive            bool       `json:"isActive"`
	FallbackToBroadcast bool       `json:"fallbackToBroadcast"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type RoundRobinResponse struct {
	ID              uuid.UUID   `json:"id"`
	Language        string      `json:"language"`
	AgentIDs        []uuid.UUID `json:"agentIds"`
	RoundNumber     int64       `json:"roundNumber"`
	FallbackAdminID *uuid.UUID  `json:"fallbackAdminId,omitempty"`
	Mode            string      `json:"mode"`
	IsActive        bool        `json:"isActive"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type AgentResponse struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	IsActive         bool      `json:"isActive"`
	CurrentLeadCount int       `json:"currentLeadCount"`
}

type RoutingPreviewResponse struct {
	Outcome     string               `json:"outcome"`
	Method      string               `json:"method,omitempty"`
	Agent       *AgentResponse       `json:"agent,omitempty"`
	Pool        []AgentResponse      `json:"pool,omitempty"`
	MatchedRule *RoutingRuleResponse `json:"matchedRule,omitempty"`
	Rotation    bool                 `json:"rotation"`
	Reason      string               `json:"reason,omitempty"`
}
