package domain

import (
	"time"

	"github.com/google/uuid"
)

// SLAPolicy holds the claim/contact windows and the alarm spacing.
type SLAPolicy struct {
	ClaimWindow   time.Duration
	ContactWindow time.Duration
	AlarmInterval time.Duration
}

// DefaultSLAPolicy is five-minute windows with alarms every minute.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		ClaimWindow:   5 * time.Minute,
		ContactWindow: 5 * time.Minute,
		AlarmInterval: time.Minute,
	}
}

// AlarmThreshold is the latest claim-timer start that makes level due at now.
func (p SLAPolicy) AlarmThreshold(level AlarmLevel, now time.Time) time.Time {
	return now.Add(-time.Duration(level) * p.AlarmInterval)
}

// expired treats a deadline equal to now as passed.
func expired(deadline *time.Time, now time.Time) bool {
	return deadline != nil && !deadline.After(now)
}

// ClaimBreachDue mirrors the claim-breach sweep predicate.
func (l Lead) ClaimBreachDue(now time.Time) bool {
	return !l.Archived && !l.LeadClaimed && !l.ClaimSLABreached && expired(l.ClaimTimerExpiresAt, now)
}

// ContactBreachDue mirrors the contact-breach sweep predicate.
func (l Lead) ContactBreachDue(now time.Time) bool {
	return !l.Archived && l.LeadClaimed && !l.FirstActionCompleted && !l.ContactSLABreached &&
		expired(l.ContactTimerExpiresAt, now)
}

// AlarmDue mirrors the escalation sweep predicate for one ladder level.
func (l Lead) AlarmDue(level AlarmLevel, now time.Time, p SLAPolicy) bool {
	if l.Archived || l.LeadClaimed || l.ClaimSLABreached || l.ClaimTimerStartedAt == nil {
		return false
	}
	if l.LastAlarmLevel != level-1 {
		return false
	}
	return !l.ClaimTimerStartedAt.After(p.AlarmThreshold(level, now))
}

// WithBroadcast starts the claim window on an unowned lead.
func (l Lead) WithBroadcast(now time.Time, p SLAPolicy) Lead {
	expires := now.Add(p.ClaimWindow)
	l.AssignedAgentID = nil
	l.AssignmentMethod = MethodBroadcastClaim
	l.AssignedAt = nil
	l.LeadClaimed = false
	l.ClaimTimerStartedAt = &now
	l.ClaimTimerExpiresAt = &expires
	l.ContactTimerStartedAt = nil
	l.ContactTimerExpiresAt = nil
	l.LastAlarmLevel = AlarmNone
	l.Unroutable = false
	l.RoutingError = ""
	l.UpdatedAt = now
	return l
}

// WithDirectAssignment gives the lead to agentID and starts the contact window.
func (l Lead) WithDirectAssignment(agentID uuid.UUID, method AssignmentMethod, now time.Time, p SLAPolicy) Lead {
	l = l.withOwner(agentID, now, p)
	l.AssignmentMethod = method
	l.Unroutable = false
	l.RoutingError = ""
	return l
}

// WithClaim applies a successful broadcast claim. The claim breach flag is
// kept so late claims stay visible in reporting.
func (l Lead) WithClaim(agentID uuid.UUID, now time.Time, p SLAPolicy) Lead {
	return l.withOwner(agentID, now, p)
}

func (l Lead) withOwner(agentID uuid.UUID, now time.Time, p SLAPolicy) Lead {
	owner := agentID
	contactExpires := now.Add(p.ContactWindow)
	l.AssignedAgentID = &owner
	l.AssignedAt = &now
	l.LeadClaimed = true
	l.ClaimTimerStartedAt = nil
	l.ClaimTimerExpiresAt = nil
	l.ContactTimerStartedAt = &now
	l.ContactTimerExpiresAt = &contactExpires
	l.LastAlarmLevel = AlarmNone
	l.UpdatedAt = now
	return l
}

// WithFirstAction records the terminal contact transition.
func (l Lead) WithFirstAction(now time.Time) Lead {
	l.FirstActionCompleted = true
	l.FirstActionAt = &now
	l.UpdatedAt = now
	return l
}

// WithReassignment applies the reason-dependent timer policy and ownership move.
func (l Lead) WithReassignment(to uuid.UUID, reason ReassignReason, now time.Time, p SLAPolicy) Lead {
	previous := l.AssignedAgentID
	owner := to

	switch reason {
	case ReasonUnclaimed:
		l.LeadClaimed = true
		l.ClaimTimerStartedAt = nil
		l.ClaimTimerExpiresAt = nil
		l.ClaimSLABreached = true
		l = l.withFreshContactTimer(now, p)
	case ReasonNoContact:
		l = l.withFreshContactTimer(now, p)
	case ReasonManual:
	}

	l.AssignedAgentID = &owner
	l.PreviousAgentID = previous
	l.AssignmentMethod = MethodAdminReassignment
	l.ReassignmentCount++
	l.ReassignmentReason = reason
	l.ReassignedAt = &now
	l.UpdatedAt = now
	return l
}

func (l Lead) withFreshContactTimer(now time.Time, p SLAPolicy) Lead {
	expires := now.Add(p.ContactWindow)
	l.ContactTimerStartedAt = &now
	l.ContactTimerExpiresAt = &expires
	l.ContactSLABreached = false
	l.FirstActionCompleted = false
	l.FirstActionAt = nil
	l.LastAlarmLevel = AlarmNone
	return l
}
