package timers_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"estate_portal_backend/internal/crm/crmtest"
	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/escalation"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/crm/timers"
	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store  *crmtest.Store
	outbox *crmtest.Outbox
	inapp  *crmtest.InApp
	bus    *crmtest.Bus
	clock  *clock.Manual
	esc    *escalation.Service
	svc    *timers.Service

	admin domain.Agent
	alice domain.Agent
	bob   domain.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  crmtest.NewStore(),
		outbox: crmtest.NewOutbox(),
		inapp:  crmtest.NewInApp(),
		bus:    &crmtest.Bus{},
		clock:  clock.NewManual(start),
	}
	f.admin = f.store.AddAgent("Admin", domain.RoleAdmin)
	f.alice = f.store.AddAgent("Alice", domain.RoleAgent)
	f.bob = f.store.AddAgent("Bob", domain.RoleAgent)

	adminID := f.admin.ID
	_, err := f.store.UpsertRoundRobinConfig(context.Background(), domain.RoundRobinConfig{
		Language:        "en",
		AgentIDs:        []uuid.UUID{f.alice.ID, f.bob.ID},
		FallbackAdminID: &adminID,
		Mode:            domain.ModeBroadcast,
		IsActive:        true,
	})
	require.NoError(t, err)

	log := logger.NewWithWriter("test", io.Discard)
	policy := domain.DefaultSLAPolicy()
	f.esc = escalation.New(escalation.Deps{
		Repo:     f.store,
		Sender:   f.outbox,
		InApp:    f.inapp,
		Bus:      f.bus,
		Clock:    f.clock,
		Policy:   policy,
		Settings: escalation.Settings{AppBaseURL: "https://crm.test"},
		Log:      log,
	})
	f.svc = timers.New(timers.Deps{
		Repo:     f.store,
		Notifier: f.esc,
		Bus:      f.bus,
		Clock:    f.clock,
		Policy:   policy,
		Log:      log,
	})
	return f
}

func (f *fixture) pool() []domain.Agent { return []domain.Agent{f.alice, f.bob} }

func (f *fixture) newLead(t *testing.T) domain.Lead {
	t.Helper()
	lead, err := f.store.CreateLead(context.Background(), repository.CreateLeadParams{
		Language:  "en",
		FullName:  "Jan de Vries",
		Email:     "jan@example.com",
		Source:    "website",
		CreatedAt: f.clock.Now(),
	})
	require.NoError(t, err)
	return lead
}

func (f *fixture) broadcast(t *testing.T) domain.Lead {
	t.Helper()
	lead, err := f.svc.StartBroadcast(context.Background(), f.newLead(t), f.pool())
	require.NoError(t, err)
	return lead
}

func TestStartBroadcastOpensOnlyTheClaimWindow(t *testing.T) {
	f := newFixture(t)

	lead := f.broadcast(t)

	require.NotNil(t, lead.ClaimTimerExpiresAt)
	assert.Equal(t, start.Add(5*time.Minute), *lead.ClaimTimerExpiresAt)
	assert.Nil(t, lead.ContactTimerStartedAt)
	assert.Nil(t, lead.AssignedAgentID)
	assert.Equal(t, domain.MethodBroadcastClaim, lead.AssignmentMethod)

	offers := f.outbox.Sent(escalation.TriggerBroadcastOffer)
	require.Len(t, offers, 1)
	assert.ElementsMatch(t, []string{f.alice.Email, f.bob.Email}, offers[0].To)
	assert.Len(t, f.inapp.For(f.alice.ID, inapp.KindBroadcastOffer), 1)
	assert.Len(t, f.inapp.For(f.bob.ID, inapp.KindBroadcastOffer), 1)
	assert.Len(t, f.bus.Named("crm.lead.broadcast"), 1)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityBroadcast), 1)
}

func TestStartBroadcastSurvivesEmailFailure(t *testing.T) {
	f := newFixture(t)
	f.outbox.FailFor(f.bob.Email)

	lead := f.broadcast(t)

	assert.NotNil(t, lead.ClaimTimerStartedAt)
	assert.Empty(t, f.outbox.Sent(escalation.TriggerBroadcastOffer))
}

func TestAssignDirectStartsContactTimer(t *testing.T) {
	f := newFixture(t)

	lead, err := f.svc.AssignDirect(context.Background(), f.newLead(t), f.alice, domain.MethodRuleMatch)
	require.NoError(t, err)

	assert.True(t, lead.IsAssignedTo(f.alice.ID))
	assert.True(t, lead.LeadClaimed)
	assert.Nil(t, lead.ClaimTimerStartedAt)
	assert.Equal(t, start.Add(5*time.Minute), *lead.ContactTimerExpiresAt)
	assert.Equal(t, 1, f.store.Agent(f.alice.ID).CurrentLeadCount)
	assert.Len(t, f.outbox.Sent(escalation.TriggerDirectAssigned), 1)
	assert.Len(t, f.inapp.For(f.alice.ID, inapp.KindAssigned), 1)
}

func TestClaimLeadConcurrentCallersHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	lead := f.broadcast(t)

	const attempts = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []timers.ClaimResult
		winners []uuid.UUID
	)
	for i := range attempts {
		agent := f.alice
		if i%2 == 1 {
			agent = f.bob
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ClaimLead(context.Background(), lead.ID, agent.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			if res.Status == domain.ClaimWon {
				winners = append(winners, agent.ID)
			}
		}()
	}
	wg.Wait()

	require.Len(t, results, attempts)
	require.Len(t, winners, 1)

	stored := f.store.Lead(lead.ID)
	assert.True(t, stored.IsAssignedTo(winners[0]))
	assert.Equal(t, 1, f.store.Agent(winners[0]).CurrentLeadCount)
	assert.Equal(t, 1, f.store.Agent(f.alice.ID).CurrentLeadCount+f.store.Agent(f.bob.ID).CurrentLeadCount)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityClaimed), 1)
	assert.Len(t, f.bus.Named("crm.lead.claimed"), 1)
	for _, r := range results {
		if r.Status != domain.ClaimWon {
			assert.Contains(t, []domain.ClaimStatus{domain.ClaimAlreadyClaimed, domain.ClaimAlreadyYours}, r.Status)
		}
	}
}

func TestClaimLeadStartsContactTimerAtClaimTime(t *testing.T) {
	f := newFixture(t)
	lead := f.broadcast(t)
	f.clock.Advance(2 * time.Minute)

	res, err := f.svc.ClaimLead(context.Background(), lead.ID, f.alice.ID)
	require.NoError(t, err)

	claimedAt := start.Add(2 * time.Minute)
	assert.Equal(t, domain.ClaimWon, res.Status)
	require.NotNil(t, res.Lead.ContactTimerStartedAt)
	assert.Equal(t, claimedAt, *res.Lead.ContactTimerStartedAt)
	assert.Equal(t, claimedAt.Add(5*time.Minute), *res.Lead.ContactTimerExpiresAt)
	assert.Nil(t, res.Lead.ClaimTimerExpiresAt)
}

func TestClaimLeadRepeatReportsAlreadyYours(t *testing.T) {
	f := newFixture(t)
	lead := f.broadcast(t)

	_, err := f.svc.ClaimLead(context.Background(), lead.ID, f.alice.ID)
	require.NoError(t, err)

	again, err := f.svc.ClaimLead(context.Background(), lead.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAlreadyYours, again.Status)

	other, err := f.svc.ClaimLead(context.Background(), lead.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAlreadyClaimed, other.Status)
	assert.Equal(t, 1, f.store.Agent(f.alice.ID).CurrentLeadCount)
}

func TestClaimLeadLosesToManualReassignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)
	carol := f.store.AddAgent("Carol", domain.RoleAgent)

	f.clock.Advance(time.Minute)
	f.store.PutLead(lead.WithReassignment(carol.ID, domain.ReasonManual, f.clock.Now(), domain.DefaultSLAPolicy()))
	require.NoError(t, f.store.AdjustLeadCount(ctx, carol.ID, 1))

	res, err := f.svc.ClaimLead(ctx, lead.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAlreadyClaimed, res.Status)

	mine, err := f.svc.ClaimLead(ctx, lead.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimAlreadyYours, mine.Status)

	_, won, err := f.store.ClaimLead(ctx, repository.ClaimParams{
		LeadID:           lead.ID,
		AgentID:          f.bob.ID,
		At:               f.clock.Now(),
		ContactExpiresAt: f.clock.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, won)

	stored := f.store.Lead(lead.ID)
	assert.True(t, stored.IsAssignedTo(carol.ID))
	assert.Equal(t, 1, f.store.Agent(carol.ID).CurrentLeadCount)
	assert.Zero(t, f.store.Agent(f.alice.ID).CurrentLeadCount)
	assert.Zero(t, f.store.Agent(f.bob.ID).CurrentLeadCount)
	assert.Empty(t, f.store.ActivitiesOf(lead.ID, domain.ActivityClaimed))
}

func TestClaimLeadRejectsCallersOutsideThePool(t *testing.T) {
	f := newFixture(t)
	lead := f.broadcast(t)
	carol := f.store.AddAgent("Carol", domain.RoleAgent)

	_, err := f.svc.ClaimLead(context.Background(), lead.ID, carol.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.svc.ClaimLead(context.Background(), lead.ID, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.store.SetAgentActive(context.Background(), f.bob.ID, false)
	require.NoError(t, err)
	_, err = f.svc.ClaimLead(context.Background(), lead.ID, f.bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.False(t, f.store.Lead(lead.ID).LeadClaimed)
}

func TestClaimLeadUnknownLeadIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ClaimLead(context.Background(), uuid.New(), f.alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMarkFirstActionOwnershipAndIdempotence(t *testing.T) {
	f := newFixture(t)
	lead := f.broadcast(t)
	ctx := context.Background()

	_, err := f.svc.MarkFirstAction(ctx, lead.ID, f.alice.ID, false)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "unclaimed lead has no contact timer")

	_, err = f.svc.ClaimLead(ctx, lead.ID, f.alice.ID)
	require.NoError(t, err)

	_, err = f.svc.MarkFirstAction(ctx, lead.ID, f.bob.ID, false)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	f.clock.Advance(90 * time.Second)
	updated, err := f.svc.MarkFirstAction(ctx, lead.ID, f.alice.ID, false)
	require.NoError(t, err)
	assert.True(t, updated.FirstActionCompleted)
	assert.Equal(t, start.Add(90*time.Second), *updated.FirstActionAt)

	f.clock.Advance(time.Minute)
	again, err := f.svc.MarkFirstAction(ctx, lead.ID, f.admin.ID, true)
	require.NoError(t, err)
	assert.Equal(t, start.Add(90*time.Second), *again.FirstActionAt)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityFirstAction), 1)
	assert.Len(t, f.bus.Named("crm.lead.contacted"), 1)
}

func TestMarkFirstActionOnArchivedLeadConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)
	_, err := f.svc.ClaimLead(ctx, lead.ID, f.alice.ID)
	require.NoError(t, err)
	_, err = f.store.ArchiveLead(ctx, lead.ID, f.clock.Now())
	require.NoError(t, err)

	_, err = f.svc.MarkFirstAction(ctx, lead.ID, f.alice.ID, false)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, changed, err := f.store.MarkFirstAction(ctx, lead.ID, f.clock.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, f.store.Lead(lead.ID).FirstActionCompleted)
	assert.Empty(t, f.bus.Named("crm.lead.contacted"))
}

func TestCheckClaimBreachesNotifiesAdminOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)

	f.clock.Advance(4 * time.Minute)
	report, err := f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	f.clock.Advance(time.Minute)
	report, err = f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Errors)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)

	notices := f.outbox.Sent(escalation.TriggerClaimBreach)
	require.Len(t, notices, 1)
	assert.Equal(t, []string{f.admin.Email}, notices[0].To)
	assert.Len(t, f.inapp.For(f.admin.ID, inapp.KindClaimBreach), 1)
	assert.True(t, f.store.Lead(lead.ID).ClaimSLABreached)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityClaimBreached), 1)
	assert.Len(t, f.bus.Named("crm.sla.breached"), 1)

	f.clock.Advance(10 * time.Minute)
	report, err = f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Len(t, f.outbox.Sent(escalation.TriggerClaimBreach), 1)
}

func TestCheckClaimBreachesKeepsFlagWhenNoticeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)
	f.outbox.FailFor(f.admin.Email)
	f.clock.Advance(6 * time.Minute)

	report, err := f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Errors)
	assert.False(t, report.Results[0].Success)
	assert.True(t, f.store.Lead(lead.ID).ClaimSLABreached)

	f.outbox.Recover()
	report, err = f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Empty(t, f.outbox.Sent(escalation.TriggerClaimBreach))
}

func TestLateClaimAfterBreachKeepsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)
	f.clock.Advance(6 * time.Minute)
	_, err := f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	res, err := f.svc.ClaimLead(ctx, lead.ID, f.bob.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimWon, res.Status)
	assert.True(t, res.Lead.ClaimSLABreached)
	assert.Equal(t, start.Add(12*time.Minute), *res.Lead.ContactTimerExpiresAt)
	claimed := f.store.ActivitiesOf(lead.ID, domain.ActivityClaimed)
	require.Len(t, claimed, 1)
	assert.Contains(t, claimed[0].Note, "after the claim window closed")
}

func TestCheckClaimBreachesReturnsLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SetFailure("ListClaimBreaches", errors.New("connection refused"))

	_, err := f.svc.CheckClaimBreaches(context.Background())
	assert.Error(t, err)
}

func TestUnclaimedLeadWalksTheLadderThenBreaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)

	for minute := 1; minute <= 5; minute++ {
		f.clock.Set(start.Add(time.Duration(minute) * time.Minute))
		_, err := f.esc.SendEscalatingAlarms(ctx)
		require.NoError(t, err)
		_, err = f.svc.CheckClaimBreaches(ctx)
		require.NoError(t, err)

		stored := f.store.Lead(lead.ID)
		if minute <= 4 {
			assert.Equal(t, domain.AlarmLevel(minute), stored.LastAlarmLevel, "minute %d", minute)
			assert.False(t, stored.ClaimSLABreached, "minute %d", minute)
		} else {
			assert.Equal(t, domain.AlarmFinal, stored.LastAlarmLevel)
			assert.True(t, stored.ClaimSLABreached)
		}
	}

	assert.Len(t, f.outbox.Sent(escalation.TriggerClaimBreach), 1)
	for level := 1; level <= 4; level++ {
		assert.Len(t, f.outbox.Sent(fmt.Sprintf("escalation_alarm_%d", level)), 1)
	}
}

func TestClaimStopsTheLadder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.broadcast(t)

	f.clock.Set(start.Add(2 * time.Minute))
	_, err := f.esc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	_, err = f.svc.ClaimLead(ctx, lead.ID, f.alice.ID)
	require.NoError(t, err)

	f.clock.Set(start.Add(10 * time.Minute))
	report, err := f.esc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	report, err = f.svc.CheckClaimBreaches(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Equal(t, domain.AlarmNone, f.store.Lead(lead.ID).LastAlarmLevel)
}
