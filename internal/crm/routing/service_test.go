package routing_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"estate_portal_backend/internal/crm/crmtest"
	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/crm/routing"
	"estate_portal_backend/internal/crm/timers"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store  *crmtest.Store
	bus    *crmtest.Bus
	clock  *clock.Manual
	timers *timers.Service
	svc    *routing.Service

	admin domain.Agent
	a     domain.Agent
	b     domain.Agent
	c     domain.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: crmtest.NewStore(),
		bus:   &crmtest.Bus{},
		clock: clock.NewManual(t0),
	}
	f.admin = f.store.AddAgent("Admin", domain.RoleAdmin)
	f.a = f.store.AddAgent("Amelie", domain.RoleAgent)
	f.b = f.store.AddAgent("Bastien", domain.RoleAgent)
	f.c = f.store.AddAgent("Chloe", domain.RoleAgent)

	log := logger.NewWithWriter("test", io.Discard)
	f.timers = timers.New(timers.Deps{
		Repo:   f.store,
		Bus:    f.bus,
		Clock:  f.clock,
		Policy: domain.DefaultSLAPolicy(),
		Log:    log,
	})
	f.svc = routing.New(f.store, f.timers, f.bus, f.clock, nil, log)
	return f
}

func (f *fixture) pool(t *testing.T, mode domain.RoundRobinMode) {
	t.Helper()
	_, err := f.svc.UpsertPool(context.Background(), domain.RoundRobinConfig{
		Language: "fr",
		AgentIDs: []uuid.UUID{f.a.ID, f.b.ID, f.c.ID},
		Mode:     mode,
		IsActive: true,
	})
	require.NoError(t, err)
}

func (f *fixture) lead(t *testing.T, language, budget string) domain.Lead {
	t.Helper()
	lead, err := f.store.CreateLead(context.Background(), repository.CreateLeadParams{
		Language:    language,
		BudgetRange: budget,
		FullName:    "Camille Martin",
		Email:       "camille@example.com",
		CreatedAt:   t0,
	})
	require.NoError(t, err)
	return lead
}

func (f *fixture) premiumRule(t *testing.T, fallback bool) domain.RoutingRule {
	t.Helper()
	target := f.a.ID
	rule, err := f.svc.CreateRule(context.Background(), domain.RoutingRule{
		Name:                "French premium",
		Priority:            10,
		MatchLanguage:       []string{"FR"},
		MatchBudgetRange:    []string{"€500K-€1M"},
		TargetAgentID:       &target,
		IsActive:            true,
		FallbackToBroadcast: fallback,
	})
	require.NoError(t, err)
	return rule
}

func TestRouteLeadMatchedRuleAssignsDirectly(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeBroadcast)
	rule := f.premiumRule(t, false)
	lead := f.lead(t, "fr", "€500K-€1M")

	res, err := f.svc.RouteLead(context.Background(), lead.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteDirect, res.Outcome)
	assert.Equal(t, domain.MethodRuleMatch, res.Method)
	require.NotNil(t, res.AgentID)
	assert.Equal(t, f.a.ID, *res.AgentID)
	assert.Equal(t, rule.ID, *res.MatchedRuleID)

	stored := f.store.Lead(lead.ID)
	assert.True(t, stored.IsAssignedTo(f.a.ID))
	assert.Equal(t, domain.MethodRuleMatch, stored.AssignmentMethod)
	assert.NotNil(t, stored.ContactTimerStartedAt)
	assert.Nil(t, stored.ClaimTimerStartedAt)
	assert.Equal(t, 1, f.store.Agent(f.a.ID).CurrentLeadCount)
}

func TestRouteLeadWithoutMatchBroadcastsToPool(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeBroadcast)
	f.premiumRule(t, false)
	lead := f.lead(t, "fr", "€200K-€500K")
	ctx := context.Background()

	res, err := f.svc.RouteLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteBroadcast, res.Outcome)
	assert.Equal(t, []uuid.UUID{f.a.ID, f.b.ID, f.c.ID}, res.PoolAgentIDs)
	assert.Nil(t, res.AgentID)
	assert.Nil(t, res.MatchedRuleID)

	won, err := f.timers.ClaimLead(ctx, lead.ID, f.b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimWon, won.Status)
	for _, other := range []domain.Agent{f.a, f.c} {
		lost, err := f.timers.ClaimLead(ctx, lead.ID, other.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimAlreadyClaimed, lost.Status)
	}
	assert.True(t, f.store.Lead(lead.ID).IsAssignedTo(f.b.ID))
}

func TestRouteLeadFallbackRuleIsPureBroadcast(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeBroadcast)
	rule := f.premiumRule(t, true)
	lead := f.lead(t, "fr", "€500K-€1M")

	res, err := f.svc.RouteLead(context.Background(), lead.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteBroadcast, res.Outcome)
	assert.Equal(t, rule.ID, *res.MatchedRuleID)
	assert.Len(t, res.PoolAgentIDs, 3)
	assert.Nil(t, f.store.Lead(lead.ID).AssignedAgentID)
}

func TestRouteLeadInactiveRuleTargetFallsBackToPool(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeBroadcast)
	f.premiumRule(t, false)
	_, err := f.svc.SetAgentActive(context.Background(), f.a.ID, false)
	require.NoError(t, err)
	lead := f.lead(t, "fr", "€500K-€1M")

	res, err := f.svc.RouteLead(context.Background(), lead.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteBroadcast, res.Outcome)
	assert.Equal(t, []uuid.UUID{f.b.ID, f.c.ID}, res.PoolAgentIDs)
	assert.Contains(t, res.Reason, "target unavailable")
}

func TestRouteLeadRotateModeCyclesThePool(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeRotate)
	ctx := context.Background()

	var got []uuid.UUID
	for range 4 {
		res, err := f.svc.RouteLead(ctx, f.lead(t, "fr", "").ID)
		require.NoError(t, err)
		require.Equal(t, domain.RouteDirect, res.Outcome)
		assert.Equal(t, domain.MethodRoundRobin, res.Method)
		got = append(got, *res.AgentID)
	}

	assert.Equal(t, []uuid.UUID{f.a.ID, f.b.ID, f.c.ID, f.a.ID}, got)
	cfg, err := f.svc.GetPool(ctx, "FR")
	require.NoError(t, err)
	assert.Equal(t, int64(4), cfg.RoundNumber)
	assert.Equal(t, 2, f.store.Agent(f.a.ID).CurrentLeadCount)
}

func TestRouteLeadWithoutPoolIsUnroutable(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, "de", "")
	ctx := context.Background()

	res, err := f.svc.RouteLead(ctx, lead.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteUnroutable, res.Outcome)
	assert.Equal(t, domain.UnroutableNoConfig, res.Reason)
	assert.True(t, res.Lead.Unroutable)

	queue, err := f.store.ListUnroutable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, lead.ID, queue[0].ID)
	assert.Len(t, f.store.ActivitiesOf(lead.ID, domain.ActivityUnroutable), 1)
	assert.Len(t, f.bus.Named("crm.lead.unroutable"), 1)
}

func TestRouteLeadWithEmptyPoolIsUnroutable(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeBroadcast)
	ctx := context.Background()
	for _, agent := range []domain.Agent{f.a, f.b, f.c} {
		_, err := f.svc.SetAgentActive(ctx, agent.ID, false)
		require.NoError(t, err)
	}

	res, err := f.svc.RouteLead(ctx, f.lead(t, "fr", "").ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteUnroutable, res.Outcome)
	assert.Equal(t, domain.UnroutableEmptyPool, res.Reason)
}

func TestRouteLeadRetryAfterPoolIsConfigured(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, "fr", "")
	ctx := context.Background()

	_, err := f.svc.RouteLead(ctx, lead.ID)
	require.NoError(t, err)
	f.pool(t, domain.ModeBroadcast)

	res, err := f.svc.RouteLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteBroadcast, res.Outcome)
	assert.False(t, f.store.Lead(lead.ID).Unroutable)

	_, err = f.svc.RouteLead(ctx, lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "lead already awaits a claim")
}

func TestRouteLeadUnknownLead(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RouteLead(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRouteLeadConfigLoadFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, "fr", "")
	f.store.SetFailure("GetRoundRobinConfig", errors.New("too many connections"))

	_, err := f.svc.RouteLead(context.Background(), lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.False(t, f.store.Lead(lead.ID).Unroutable)
}

func TestPreviewRouteHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.pool(t, domain.ModeRotate)
	ctx := context.Background()
	attrs := domain.LeadAttributes{Language: "fr"}

	first, err := f.svc.PreviewRoute(ctx, attrs)
	require.NoError(t, err)
	second, err := f.svc.PreviewRoute(ctx, attrs)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteDirect, first.Outcome)
	assert.True(t, first.Rotation)
	assert.Equal(t, first.Agent.ID, second.Agent.ID)
	cfg, err := f.svc.GetPool(ctx, "fr")
	require.NoError(t, err)
	assert.Zero(t, cfg.RoundNumber)
	assert.Empty(t, f.bus.Named("crm.lead.assigned"))

	_, err = f.svc.PreviewRoute(ctx, domain.LeadAttributes{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRuleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ghost := uuid.New()

	_, err := f.svc.CreateRule(ctx, domain.RoutingRule{Name: "no target", IsActive: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.CreateRule(ctx, domain.RoutingRule{Name: "ghost", TargetAgentID: &ghost, IsActive: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	rule, err := f.svc.CreateRule(ctx, domain.RoutingRule{
		Name:                " Spanish ",
		MatchLanguage:       []string{" ES ", ""},
		FallbackToBroadcast: true,
		IsActive:            true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Spanish", rule.Name)
	assert.Equal(t, []string{"es"}, rule.MatchLanguage)

	rule.Priority = 50
	updated, err := f.svc.UpdateRule(ctx, rule.ID, rule)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Priority)

	require.NoError(t, f.svc.DeleteRule(ctx, rule.ID))
	assert.True(t, apperr.Is(f.svc.DeleteRule(ctx, rule.ID), apperr.KindNotFound))
}

func TestUpsertPoolValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agentAsAdmin := f.a.ID
	adminID := f.admin.ID

	_, err := f.svc.UpsertPool(ctx, domain.RoundRobinConfig{Language: "fr", AgentIDs: []uuid.UUID{uuid.New()}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpsertPool(ctx, domain.RoundRobinConfig{Language: "fr", FallbackAdminID: &agentAsAdmin})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpsertPool(ctx, domain.RoundRobinConfig{Language: " "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	saved, err := f.svc.UpsertPool(ctx, domain.RoundRobinConfig{
		Language:        "FR",
		AgentIDs:        []uuid.UUID{f.a.ID, f.b.ID, f.a.ID},
		FallbackAdminID: &adminID,
		IsActive:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "fr", saved.Language)
	assert.Equal(t, []uuid.UUID{f.a.ID, f.b.ID}, saved.AgentIDs)
	assert.Equal(t, domain.ModeBroadcast, saved.Mode)
}
