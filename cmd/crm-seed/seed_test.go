package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"estate_portal_backend/internal/crm/crmtest"
	"estate_portal_backend/internal/crm/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestSeed(t *testing.T) SeedFile {
	t.Helper()
	f, err := os.Open("testdata/seed.yaml")
	require.NoError(t, err)
	defer f.Close()

	seed, err := decodeSeed(f)
	require.NoError(t, err)
	return seed
}

func TestApplySeedWritesEverything(t *testing.T) {
	store := crmtest.NewStore()
	ctx := context.Background()

	sum, err := applySeed(ctx, store, loadTestSeed(t))
	require.NoError(t, err)
	assert.Equal(t, Summary{Agents: 4, RulesCreated: 2, Pools: 2}, sum)

	ana, err := store.GetAgentByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	admin, err := store.GetAgentByEmail(ctx, "admin.es@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	retired, err := store.GetAgentByEmail(ctx, "retired@example.com")
	require.NoError(t, err)
	assert.False(t, retired.IsActive)

	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, r := range rules {
		if r.Name == "Luxury Spanish leads" {
			require.NotNil(t, r.TargetAgentID)
			assert.Equal(t, ana.ID, *r.TargetAgentID)
		}
	}

	es, err := store.GetRoundRobinConfig(ctx, "es")
	require.NoError(t, err)
	assert.Len(t, es.AgentIDs, 2)
	assert.Equal(t, domain.ModeBroadcast, es.Mode)
	require.NotNil(t, es.FallbackAdminID)
	assert.Equal(t, admin.ID, *es.FallbackAdminID)

	en, err := store.GetRoundRobinConfig(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeRotate, en.Mode)
}

func TestApplySeedIsIdempotent(t *testing.T) {
	store := crmtest.NewStore()
	ctx := context.Background()
	seed := loadTestSeed(t)

	_, err := applySeed(ctx, store, seed)
	require.NoError(t, err)
	sum, err := applySeed(ctx, store, seed)
	require.NoError(t, err)

	assert.Equal(t, 0, sum.RulesCreated)
	assert.Equal(t, 2, sum.RulesUpdated)
	agents, err := store.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 4)
	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestApplySeedRejectsUnknownAgentReference(t *testing.T) {
	seed := SeedFile{
		Pools: []PoolSeed{{Language: "fr", Agents: []string{"ghost@example.com"}}},
	}
	_, err := applySeed(context.Background(), crmtest.NewStore(), seed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost@example.com")
}

func TestDecodeSeedRejectsUnknownFields(t *testing.T) {
	_, err := decodeSeed(strings.NewReader("agents:\n  - email: a@example.com\n    nickname: A\n"))
	assert.Error(t, err)
}
