package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestBroadcastThenClaimSequencesTimers(t *testing.T) {
	p := DefaultSLAPolicy()
	agent := uuid.New()

	lead := Lead{ID: uuid.New(), Language: "fr"}.WithBroadcast(t0, p)
	require.NoError(t, lead.CheckInvariants())
	assert.Equal(t, StateBroadcastPending, lead.State())
	assert.Nil(t, lead.ContactTimerStartedAt)
	assert.Equal(t, t0.Add(5*time.Minute), *lead.ClaimTimerExpiresAt)

	claimedAt := t0.Add(2 * time.Minute)
	lead.LastAlarmLevel = 2
	lead = lead.WithClaim(agent, claimedAt, p)
	require.NoError(t, lead.CheckInvariants())
	assert.Equal(t, StateClaimed, lead.State())
	assert.Nil(t, lead.ClaimTimerStartedAt)
	assert.Equal(t, claimedAt.Add(5*time.Minute), *lead.ContactTimerExpiresAt)
	assert.Equal(t, AlarmNone, lead.LastAlarmLevel)
	assert.True(t, lead.IsAssignedTo(agent))
}

func TestClaimBreachDueUsesInclusiveDeadline(t *testing.T) {
	lead := Lead{}.WithBroadcast(t0, DefaultSLAPolicy())

	assert.False(t, lead.ClaimBreachDue(t0.Add(5*time.Minute-time.Second)))
	assert.True(t, lead.ClaimBreachDue(t0.Add(5*time.Minute)))

	lead.ClaimSLABreached = true
	assert.False(t, lead.ClaimBreachDue(t0.Add(time.Hour)))
}

func TestContactBreachDue(t *testing.T) {
	lead := Lead{}.WithClaim(uuid.New(), t0, DefaultSLAPolicy())
	deadline := t0.Add(5 * time.Minute)

	assert.False(t, lead.ContactBreachDue(deadline.Add(-time.Nanosecond)))
	assert.True(t, lead.ContactBreachDue(deadline))

	contacted := lead.WithFirstAction(t0.Add(time.Minute))
	assert.False(t, contacted.ContactBreachDue(deadline))
	assert.Equal(t, StateContacted, contacted.State())

	archived := lead
	archived.Archived = true
	assert.False(t, archived.ContactBreachDue(deadline))
}

func TestAlarmDueIsStrictlySequential(t *testing.T) {
	p := DefaultSLAPolicy()
	lead := Lead{}.WithBroadcast(t0, p)
	now := t0.Add(3 * time.Minute)

	assert.True(t, lead.AlarmDue(1, now, p))
	assert.False(t, lead.AlarmDue(3, now, p), "cannot jump from level 0 to 3")

	lead.LastAlarmLevel = 1
	assert.True(t, lead.AlarmDue(2, now, p))
	assert.False(t, lead.AlarmDue(2, t0.Add(90*time.Second), p), "level 2 waits for +2 minutes")
}

func TestReassignmentTimerPolicies(t *testing.T) {
	p := DefaultSLAPolicy()
	agentA, agentB, now := uuid.New(), uuid.New(), t0.Add(20*time.Minute)

	t.Run("unclaimed treats lead as claimed now", func(t *testing.T) {
		lead := Lead{}.WithBroadcast(t0, p)
		lead.ClaimSLABreached = true

		got := lead.WithReassignment(agentB, ReasonUnclaimed, now, p)
		require.NoError(t, got.CheckInvariants())
		assert.True(t, got.LeadClaimed)
		assert.True(t, got.ClaimSLABreached)
		assert.Nil(t, got.ClaimTimerStartedAt)
		assert.Equal(t, now.Add(5*time.Minute), *got.ContactTimerExpiresAt)
		assert.Nil(t, got.PreviousAgentID)
	})

	t.Run("no_contact restarts contact window only", func(t *testing.T) {
		lead := Lead{}.WithClaim(agentA, t0, p)
		lead.ContactSLABreached = true
		lead.ClaimSLABreached = true

		got := lead.WithReassignment(agentB, ReasonNoContact, now, p)
		assert.Equal(t, now.Add(5*time.Minute), *got.ContactTimerExpiresAt)
		assert.False(t, got.ContactSLABreached)
		assert.False(t, got.FirstActionCompleted)
		assert.True(t, got.ClaimSLABreached)
		assert.Equal(t, agentA, *got.PreviousAgentID)
		assert.Equal(t, MethodAdminReassignment, got.AssignmentMethod)
		assert.Equal(t, 1, got.ReassignmentCount)
	})

	t.Run("manual leaves timers untouched", func(t *testing.T) {
		lead := Lead{}.WithClaim(agentA, t0, p)
		lead.ContactSLABreached = true

		got := lead.WithReassignment(agentB, ReasonManual, now, p)
		assert.Equal(t, lead.ContactTimerExpiresAt, got.ContactTimerExpiresAt)
		assert.True(t, got.ContactSLABreached)
		assert.Equal(t, agentB, *got.AssignedAgentID)
		assert.Equal(t, now, *got.ReassignedAt)
	})
}

func TestCheckInvariantsFlagsContactWithoutClaim(t *testing.T) {
	lead := Lead{ContactTimerStartedAt: &t0, LastAlarmLevel: 5}
	err := lead.CheckInvariants()
	assert.ErrorIs(t, err, ErrContactBeforeClaim)
	assert.ErrorIs(t, err, ErrAlarmLevelOutOfRange)
}

func TestParseReassignReason(t *testing.T) {
	r, err := ParseReassignReason("no_contact")
	require.NoError(t, err)
	assert.True(t, r.StartsContactTimer())
	assert.False(t, ReasonManual.StartsContactTimer())

	_, err = ParseReassignReason("bored")
	assert.Error(t, err)
}

func TestAlarmLevelNext(t *testing.T) {
	next, ok := AlarmLevel(3).Next()
	assert.True(t, ok)
	assert.True(t, next.IsFinal())

	_, ok = AlarmFinal.Next()
	assert.False(t, ok)
}
