package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lead is the single source of truth for assignment and timer state.
// Absent routing attributes are empty strings.
type Lead struct {
	ID          uuid.UUID
	Language    string
	Source      string
	Segment     string
	BudgetRange string
	PageType    string

	FullName string
	Email    string
	Phone    string
	Message  string

	AssignedAgentID    *uuid.UUID
	PreviousAgentID    *uuid.UUID
	AssignmentMethod   AssignmentMethod
	AssignedAt         *time.Time
	LeadClaimed        bool
	ReassignmentCount  int
	ReassignmentReason ReassignReason
	ReassignedAt       *time.Time

	ClaimTimerStartedAt *time.Time
	ClaimTimerExpiresAt *time.Time
	ClaimSLABreached    bool

	ContactTimerStartedAt *time.Time
	ContactTimerExpiresAt *time.Time
	ContactSLABreached    bool
	FirstActionCompleted  bool
	FirstActionAt         *time.Time

	LastAlarmLevel AlarmLevel

	Unroutable   bool
	RoutingError string

	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attributes returns the routing-relevant view of the lead.
func (l Lead) Attributes() LeadAttributes {
	return LeadAttributes{
		Language:    l.Language,
		BudgetRange: l.BudgetRange,
		Source:      l.Source,
		Segment:     l.Segment,
		PageType:    l.PageType,
	}
}

// State derives the lifecycle position from the stored flags.
func (l Lead) State() LeadState {
	switch {
	case l.FirstActionCompleted:
		return StateContacted
	case l.LeadClaimed && l.ContactSLABreached:
		return StateContactBreached
	case l.LeadClaimed:
		return StateClaimed
	case l.ClaimSLABreached:
		return StateClaimBreached
	case l.ClaimTimerStartedAt != nil:
		return StateBroadcastPending
	default:
		return StateUnassigned
	}
}

// IsAssignedTo reports whether agentID currently owns the lead.
func (l Lead) IsAssignedTo(agentID uuid.UUID) bool {
	return l.AssignedAgentID != nil && *l.AssignedAgentID == agentID
}

// Invariant violations reported by CheckInvariants.
var (
	ErrBothTimersRunning     = errors.New("claim and contact timers both running")
	ErrContactBeforeClaim    = errors.New("contact timer running on an unclaimed lead")
	ErrAlarmLevelOutOfRange  = errors.New("alarm level outside 0..4")
	ErrClaimedWithoutOwner   = errors.New("claimed lead has no assigned agent")
	ErrFirstActionUnclaimed  = errors.New("first action recorded on an unclaimed lead")
	ErrNegativeReassignCount = errors.New("negative reassignment count")
)

// CheckInvariants validates the structural rules every persisted lead obeys.
func (l Lead) CheckInvariants() error {
	var errs []error
	if l.ClaimTimerStartedAt != nil && l.ContactTimerStartedAt != nil {
		errs = append(errs, ErrBothTimersRunning)
	}
	if l.ContactTimerStartedAt != nil && !l.LeadClaimed {
		errs = append(errs, ErrContactBeforeClaim)
	}
	if !l.LastAlarmLevel.Valid() {
		errs = append(errs, ErrAlarmLevelOutOfRange)
	}
	if l.LeadClaimed && l.AssignedAgentID == nil {
		errs = append(errs, ErrClaimedWithoutOwner)
	}
	if l.FirstActionCompleted && !l.LeadClaimed {
		errs = append(errs, ErrFirstActionUnclaimed)
	}
	if l.ReassignmentCount < 0 {
		errs = append(errs, ErrNegativeReassignCount)
	}
	return errors.Join(errs...)
}

// Agent is a member of the sales team.
type Agent struct {
	ID               uuid.UUID
	Email            string
	Name             string
	Role             AgentRole
	IsActive         bool
	CurrentLeadCount int
	CreatedAt        time.Time
}

// DisplayName falls back to the email when no name is on file.
func (a Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// Reassignment is an append-only audit record of an ownership move.
type Reassignment struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	FromAgentID  *uuid.UUID
	ToAgentID    uuid.UUID
	ReassignedBy uuid.UUID
	Reason       ReassignReason
	Stage        LeadState
	Notes        string
	CreatedAt    time.Time
}

// ActivityAction classifies lead timeline entries.
type ActivityAction string

const (
	ActivityCaptured        ActivityAction = "lead_captured"
	ActivityAssigned        ActivityAction = "lead_assigned"
	ActivityBroadcast       ActivityAction = "broadcast_started"
	ActivityClaimed         ActivityAction = "lead_claimed"
	ActivityFirstAction     ActivityAction = "first_action"
	ActivityEscalationAlarm ActivityAction = "escalation_alarm"
	ActivityClaimBreached   ActivityAction = "claim_sla_breached"
	ActivityContactBreached ActivityAction = "contact_sla_breached"
	ActivityReassigned      ActivityAction = "reassigned"
	ActivityUnroutable      ActivityAction = "unroutable"
	ActivityArchived        ActivityAction = "archived"
	ActivityNoticeFailed    ActivityAction = "admin_notice_failed"
)

// Activity is an append-only lead timeline note.
type Activity struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	ActorID   *uuid.UUID
	Action    ActivityAction
	Note      string
	Metadata  map[string]any
	CreatedAt time.Time
}
