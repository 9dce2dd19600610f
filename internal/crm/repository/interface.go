package repository

import (
	"context"
	"time"

	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListUnroutable(ctx context.Context, limit int) ([]domain.Lead, error)
}

// LeadWriter creates, flags and archives leads.
type LeadWriter interface {
	CreateLead(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	MarkUnroutable(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	ArchiveLead(ctx context.Context, id uuid.UUID, at time.Time) (domain.Lead, error)
}

// TimerStore owns the claim/contact window transitions.
type TimerStore interface {
	StartBroadcast(ctx context.Context, params BroadcastParams) (domain.Lead, error)
	AssignDirect(ctx context.Context, params AssignParams) (domain.Lead, error)
	ClaimLead(ctx context.Context, params ClaimParams) (domain.Lead, bool, error)
	MarkFirstAction(ctx context.Context, id uuid.UUID, at time.Time) (domain.Lead, bool, error)
}

// BreachStore finds and flags missed SLA windows.
type BreachStore interface {
	ListClaimBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
	MarkClaimBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListContactBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
	MarkContactBreached(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// AlarmStore drives the escalation ladder.
type AlarmStore interface {
	ListAlarmDue(ctx context.Context, level domain.AlarmLevel, startedBefore time.Time, limit int) ([]domain.Lead, error)
	AdvanceAlarmLevel(ctx context.Context, id uuid.UUID, from, to domain.AlarmLevel, at time.Time) (bool, error)
}

// RuleStore manages routing rules.
type RuleStore interface {
	ListRules(ctx context.Context) ([]domain.RoutingRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (domain.RoutingRule, error)
	CreateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error)
	UpdateRule(ctx context.Context, rule domain.RoutingRule) (domain.RoutingRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// PoolStore manages per-language round-robin configs.
type PoolStore interface {
	GetRoundRobinConfig(ctx context.Context, language string) (domain.RoundRobinConfig, error)
	ListRoundRobinConfigs(ctx context.Context) ([]domain.RoundRobinConfig, error)
	UpsertRoundRobinConfig(ctx context.Context, cfg domain.RoundRobinConfig) (domain.RoundRobinConfig, error)
	// AdvanceRoundRobin atomically bumps the cursor and returns the value before the bump.
	AdvanceRoundRobin(ctx context.Context, language string) (int64, error)
}

// AgentStore reads agents and maintains their lead counters.
type AgentStore interface {
	GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error)
	GetAgentByEmail(ctx context.Context, email string) (domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	UpsertAgent(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	SetAgentActive(ctx context.Context, id uuid.UUID, active bool) (domain.Agent, error)
	AdjustLeadCount(ctx context.Context, id uuid.UUID, delta int) error
}

// ReassignmentStore commits ownership moves with their audit record.
type ReassignmentStore interface {
	ApplyReassignment(ctx context.Context, params ReassignParams) (domain.Lead, domain.Reassignment, error)
	ListReassignments(ctx context.Context, leadID uuid.UUID) ([]domain.Reassignment, error)
}

// ActivityLogger records the lead timeline.
type ActivityLogger interface {
	AddActivity(ctx context.Context, activity domain.Activity) error
	ListActivities(ctx context.Context, leadID uuid.UUID) ([]domain.Activity, error)
}

// =====================================
// Composite Interface
// =====================================

// CRMRepository is the full store surface.
type CRMRepository interface {
	LeadReader
	LeadWriter
	TimerStore
	BreachStore
	AlarmStore
	RuleStore
	PoolStore
	AgentStore
	ReassignmentStore
	ActivityLogger
}

// Ensure Repository implements CRMRepository
var _ CRMRepository = (*Repository)(nil)

// CreateLeadParams are the captured fields of a new lead.
type CreateLeadParams struct {
	Language    string
	Source      string
	Segment     string
	BudgetRange string
	PageType    string
	FullName    string
	Email       string
	Phone       string
	Message     string
	CreatedAt   time.Time
}

// BroadcastParams starts a claim window.
type BroadcastParams struct {
	LeadID    uuid.UUID
	StartedAt time.Time
	ExpiresAt time.Time
}

// AssignParams assigns an unclaimed lead straight to one agent.
type AssignParams struct {
	LeadID           uuid.UUID
	AgentID          uuid.UUID
	Method           domain.AssignmentMethod
	At               time.Time
	ContactExpiresAt time.Time
}

// ClaimParams is one agent's claim attempt.
type ClaimParams struct {
	LeadID           uuid.UUID
	AgentID          uuid.UUID
	At               time.Time
	ContactExpiresAt time.Time
}

// ReassignParams carries the already transitioned lead plus the optimistic
// concurrency guard taken from the row the caller read.
type ReassignParams struct {
	Lead            domain.Lead
	ExpectedAgentID *uuid.UUID
	ExpectedCount   int
	Record          domain.Reassignment
}
