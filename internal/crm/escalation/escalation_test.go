package escalation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"estate_portal_backend/internal/crm/crmtest"
	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/escalation"
	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *crmtest.Store
	outbox  *crmtest.Outbox
	inapp   *crmtest.InApp
	bus     *crmtest.Bus
	clock   *clock.Manual
	metrics *metrics.Metrics
	policy  domain.SLAPolicy

	admin domain.Agent
	alice domain.Agent
	bob   domain.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   crmtest.NewStore(),
		outbox:  crmtest.NewOutbox(),
		inapp:   crmtest.NewInApp(),
		bus:     &crmtest.Bus{},
		clock:   clock.NewManual(t0),
		metrics: metrics.New(prometheus.NewRegistry()),
		policy:  domain.DefaultSLAPolicy(),
	}
	f.admin = f.store.AddAgent("Admin", domain.RoleAdmin)
	f.alice = f.store.AddAgent("Alice", domain.RoleAgent)
	f.bob = f.store.AddAgent("Bob", domain.RoleAgent)
	f.setPool(t, "en", &f.admin.ID)
	return f
}

func (f *fixture) setPool(t *testing.T, language string, fallbackAdmin *uuid.UUID) {
	t.Helper()
	_, err := f.store.UpsertRoundRobinConfig(context.Background(), domain.RoundRobinConfig{
		Language:        language,
		AgentIDs:        []uuid.UUID{f.alice.ID, f.bob.ID},
		FallbackAdminID: fallbackAdmin,
		Mode:            domain.ModeBroadcast,
		IsActive:        true,
	})
	require.NoError(t, err)
}

func (f *fixture) service(settings escalation.Settings) *escalation.Service {
	settings.AppBaseURL = "https://crm.test/"
	return escalation.New(escalation.Deps{
		Repo:     f.store,
		Sender:   f.outbox,
		InApp:    f.inapp,
		Bus:      f.bus,
		Clock:    f.clock,
		Policy:   f.policy,
		Settings: settings,
		Metrics:  f.metrics,
		Log:      logger.NewWithWriter("test", io.Discard),
	})
}

// broadcastLead stores an unclaimed lead whose claim timer started at t0.
func (f *fixture) broadcastLead(language string) domain.Lead {
	lead := domain.Lead{
		ID:        uuid.New(),
		Language:  language,
		FullName:  "Marie Dubois",
		Email:     "marie@example.com",
		CreatedAt: t0,
	}.WithBroadcast(t0, f.policy)
	f.store.PutLead(lead)
	return lead
}

func (f *fixture) claimedLead(agent domain.Agent) domain.Lead {
	lead := domain.Lead{
		ID:        uuid.New(),
		Language:  "en",
		FullName:  "Piet Jansen",
		Phone:     "+31612345678",
		CreatedAt: t0,
	}.WithBroadcast(t0, f.policy).WithClaim(agent.ID, t0, f.policy)
	f.store.PutLead(lead)
	return lead
}

func TestSendEscalatingAlarmsClimbsOneLevelPerSweep(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.broadcastLead("en")
	ctx := context.Background()

	// Every level is already due by wall clock; each sweep still moves one rung.
	f.clock.Set(t0.Add(10 * time.Minute))
	previous := domain.AlarmNone
	for want := domain.AlarmLevel(1); want <= domain.AlarmFinal; want++ {
		report, err := svc.SendEscalatingAlarms(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Processed, "level %d", want)
		assert.Zero(t, report.Errors)
		assert.Equal(t, int(want), report.Results[0].Level)

		level := f.store.Lead(lead.ID).LastAlarmLevel
		assert.Equal(t, want, level)
		assert.Greater(t, level, previous)
		previous = level
	}

	report, err := svc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	for level := 1; level <= 4; level++ {
		sent := f.outbox.Sent(fmt.Sprintf("escalation_alarm_%d", level))
		require.Len(t, sent, 1, "level %d", level)
		assert.ElementsMatch(t, []string{f.alice.Email, f.bob.Email}, sent[0].To)
	}
	assert.Contains(t, f.outbox.Sent("escalation_alarm_4")[0].Subject, "[FINAL WARNING]")
	assert.Len(t, f.inapp.For(f.alice.ID, inapp.KindEscalation), 4)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityEscalationAlarm), 4)
	assert.Len(t, f.bus.Named("crm.escalation.alarm_sent"), 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AlarmsSent.WithLabelValues("4", "success")))
}

func TestSendEscalatingAlarmsWaitsForTheInterval(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.broadcastLead("en")
	ctx := context.Background()

	f.clock.Set(t0.Add(59 * time.Second))
	report, err := svc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	f.clock.Set(t0.Add(90 * time.Second))
	_, err = svc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	report, err = svc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed, "level 2 is not due before two minutes")
	assert.Equal(t, domain.AlarmLevel(1), f.store.Lead(lead.ID).LastAlarmLevel)
}

func TestSendEscalatingAlarmsRetriesWhenDeliveryFails(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.broadcastLead("en")
	ctx := context.Background()
	f.clock.Set(t0.Add(time.Minute))
	f.outbox.FailFor(f.bob.Email)

	report, err := svc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, domain.AlarmNone, f.store.Lead(lead.ID).LastAlarmLevel)

	f.outbox.Recover()
	report, err = svc.SendEscalatingAlarms(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Errors)
	assert.Equal(t, domain.AlarmLevel(1), f.store.Lead(lead.ID).LastAlarmLevel)
	assert.Len(t, f.outbox.Sent("escalation_alarm_1"), 1)
}

func TestSendEscalatingAlarmsIgnoresClaimedAndBreachedLeads(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	f.claimedLead(f.alice)
	breached := f.broadcastLead("en")
	breached.ClaimSLABreached = true
	f.store.PutLead(breached)
	f.clock.Set(t0.Add(10 * time.Minute))

	report, err := svc.SendEscalatingAlarms(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Empty(t, f.outbox.Sent(""))
}

func TestSendEscalatingAlarmsReportsMissingPool(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.broadcastLead("de")
	f.clock.Set(t0.Add(time.Minute))

	report, err := svc.SendEscalatingAlarms(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Errors)
	assert.Equal(t, lead.ID, report.Results[0].LeadID)
	assert.Equal(t, domain.UnroutableNoConfig, report.Results[0].Error)
	assert.Equal(t, domain.AlarmNone, f.store.Lead(lead.ID).LastAlarmLevel)
}

func TestSendEscalatingAlarmsRecordsLevelWriteFailure(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	f.broadcastLead("en")
	f.clock.Set(t0.Add(time.Minute))
	f.store.SetFailure("AdvanceAlarmLevel", errors.New("deadlock detected"))

	report, err := svc.SendEscalatingAlarms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Contains(t, report.Results[0].Error, "level not recorded")
	assert.Len(t, f.outbox.Sent("escalation_alarm_1"), 1)
}

func TestCheckContactWindowExpiryNotifiesAdminOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.claimedLead(f.alice)
	ctx := context.Background()

	f.clock.Set(t0.Add(4 * time.Minute))
	report, err := svc.CheckContactWindowExpiry(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	f.clock.Set(t0.Add(5 * time.Minute))
	report, err = svc.CheckContactWindowExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Errors)

	notices := f.outbox.Sent(escalation.TriggerContactBreach)
	require.Len(t, notices, 1)
	assert.Equal(t, []string{f.admin.Email}, notices[0].To)
	assert.Contains(t, notices[0].Subject, "Alice")
	assert.Len(t, f.inapp.For(f.admin.ID, inapp.KindContactBreach), 1)
	assert.True(t, f.store.Lead(lead.ID).ContactSLABreached)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityContactBreached), 1)

	f.clock.Advance(time.Hour)
	report, err = svc.CheckContactWindowExpiry(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Len(t, f.outbox.Sent(escalation.TriggerContactBreach), 1)
	assert.True(t, f.store.Lead(lead.ID).IsAssignedTo(f.alice.ID), "no automatic reassignment")
}

func TestCheckContactWindowExpirySkipsContactedLeads(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.claimedLead(f.alice).WithFirstAction(t0.Add(time.Minute))
	f.store.PutLead(lead)
	f.clock.Set(t0.Add(time.Hour))

	report, err := svc.CheckContactWindowExpiry(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestContactBreachRecordsUndeliveredNotice(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.claimedLead(f.alice)
	f.outbox.FailFor(f.admin.Email)
	f.clock.Set(t0.Add(6 * time.Minute))

	report, err := svc.CheckContactWindowExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)

	assert.True(t, f.store.Lead(lead.ID).ContactSLABreached)
	assert.Len(t, f.inapp.For(f.admin.ID, inapp.KindContactBreach), 1)
	failed := f.store.ActivitiesOf(lead.ID, domain.ActivityNoticeFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Note, f.admin.Email)
	assert.Equal(t, escalation.TriggerContactBreach, failed[0].Metadata["trigger"])
}

func TestBreachNoticeFallsBackToEnvironmentAdmin(t *testing.T) {
	f := newFixture(t)
	f.setPool(t, "en", nil)
	svc := f.service(escalation.Settings{FallbackAdminEmail: "ops@estate.test"})
	f.claimedLead(f.bob)
	f.clock.Set(t0.Add(6 * time.Minute))

	report, err := svc.CheckContactWindowExpiry(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Errors)

	notices := f.outbox.Sent(escalation.TriggerContactBreach)
	require.Len(t, notices, 1)
	assert.Equal(t, []string{"ops@estate.test"}, notices[0].To)
	assert.Empty(t, f.inapp.For(f.admin.ID, ""))
}

func TestBreachWithoutAnyAdminIsReportedButMarked(t *testing.T) {
	f := newFixture(t)
	f.setPool(t, "en", nil)
	svc := f.service(escalation.Settings{})
	lead := f.claimedLead(f.bob)
	f.clock.Set(t0.Add(6 * time.Minute))

	report, err := svc.CheckContactWindowExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, escalation.ErrNoFallbackAdmin.Error(), report.Results[0].Error)
	assert.True(t, f.store.Lead(lead.ID).ContactSLABreached)
	assert.Len(t, f.bus.Named("crm.sla.breached"), 1)
}

func TestNotifyReassignedMentionsNewContactTimer(t *testing.T) {
	f := newFixture(t)
	svc := f.service(escalation.Settings{})
	lead := f.claimedLead(f.alice)

	err := svc.NotifyReassigned(context.Background(), lead, f.bob, domain.ReasonNoContact, "Alice is on leave")
	require.NoError(t, err)

	sent := f.outbox.Sent(escalation.TriggerReassigned)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{f.bob.Email}, sent[0].To)
	assert.Contains(t, sent[0].HTML, "5-minute contact timer")
	assert.Contains(t, sent[0].HTML, "https://crm.test/crm/leads/"+lead.ID.String())
}
