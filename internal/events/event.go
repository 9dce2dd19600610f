// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"estate_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// NewBaseEventAt re-exports the platform constructor.
var NewBaseEventAt = events.NewBaseEventAt

// =============================================================================
// CRM Lead Lifecycle Events
// =============================================================================

// LeadCaptured is published when a public form submission becomes a lead.
type LeadCaptured struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	Language string    `json:"language"`
	Source   string    `json:"source,omitempty"`
}

func (e LeadCaptured) EventName() string { return "crm.lead.captured" }

// LeadBroadcast is published when a lead is offered to a whole agent pool.
type LeadBroadcast struct {
	BaseEvent
	LeadID         uuid.UUID   `json:"leadId"`
	Language       string      `json:"language"`
	PoolAgentIDs   []uuid.UUID `json:"poolAgentIds"`
	ClaimExpiresAt string      `json:"claimExpiresAt"`
}

func (e LeadBroadcast) EventName() string { return "crm.lead.broadcast" }

// LeadAssigned is published when routing assigns a lead directly to one agent.
type LeadAssigned struct {
	BaseEvent
	LeadID           uuid.UUID `json:"leadId"`
	AgentID          uuid.UUID `json:"agentId"`
	AssignmentMethod string    `json:"assignmentMethod"`
}

func (e LeadAssigned) EventName() string { return "crm.lead.assigned" }

// LeadClaimed is published when an agent wins a broadcast claim.
type LeadClaimed struct {
	BaseEvent
	LeadID       uuid.UUID   `json:"leadId"`
	AgentID      uuid.UUID   `json:"agentId"`
	PoolAgentIDs []uuid.UUID `json:"poolAgentIds,omitempty"`
}

func (e LeadClaimed) EventName() string { return "crm.lead.claimed" }

// LeadContacted is published when the assigned agent records first contact.
type LeadContacted struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	AgentID uuid.UUID `json:"agentId"`
}

func (e LeadContacted) EventName() string { return "crm.lead.contacted" }

// EscalationAlarmSent is published after a ladder alarm reached the pool.
type EscalationAlarmSent struct {
	BaseEvent
	LeadID       uuid.UUID   `json:"leadId"`
	Level        int         `json:"level"`
	PoolAgentIDs []uuid.UUID `json:"poolAgentIds"`
}

func (e EscalationAlarmSent) EventName() string { return "crm.escalation.alarm_sent" }

// SLABreached is published when a claim or contact deadline is marked breached.
type SLABreached struct {
	BaseEvent
	LeadID  uuid.UUID  `json:"leadId"`
	Kind    string     `json:"kind"` // claim | contact
	AgentID *uuid.UUID `json:"agentId,omitempty"`
	AdminID *uuid.UUID `json:"adminId,omitempty"`
}

func (e SLABreached) EventName() string { return "crm.sla.breached" }

// LeadReassigned is published after a committed reassignment.
type LeadReassigned struct {
	BaseEvent
	LeadID       uuid.UUID  `json:"leadId"`
	FromAgentID  *uuid.UUID `json:"fromAgentId,omitempty"`
	ToAgentID    uuid.UUID  `json:"toAgentId"`
	Reason       string     `json:"reason"`
	ReassignedBy uuid.UUID  `json:"reassignedBy"`
}

func (e LeadReassigned) EventName() string { return "crm.lead.reassigned" }

// LeadUnroutable is published when no rule or pool could place a lead.
type LeadUnroutable struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	Language string    `json:"language"`
	Reason   string    `json:"reason"`
}

func (e LeadUnroutable) EventName() string { return "crm.lead.unroutable" }
