package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/rules"
)

func TestRulesRepository_CreateAndGet(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	repo := rules.NewRepository(infra.PostgresDB)

	rule := createTestFilterRule("newsletter", `subject:unsubscribe`, 10, true)
	rule.UpdatedBy = "alice"
	require.NoError(t, repo.CreateFilterRule(ctx, rule))

	assert.NotEmpty(t, rule.ID)
	assert.NotZero(t, rule.Seq)

	got, err := repo.GetFilterRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "newsletter", got.Name)
	assert.Equal(t, `subject:unsubscribe`, got.Query)
	assert.Equal(t, 10, got.Priority)
	assert.True(t, got.Enabled)
	assert.Equal(t, "alice", got.UpdatedBy)
}

func TestRulesRepository_NamesNotUnique(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	repo := rules.NewRepository(infra.PostgresDB)

	first := createTestFilterRule("dupe", "from:a@example.com", 0, true)
	second := createTestFilterRule("dupe", "from:b@example.com", 5, true)
	require.NoError(t, repo.CreateFilterRule(ctx, first))
	require.NoError(t, repo.CreateFilterRule(ctx, second))

	listed, err := repo.ListFilterRules(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestRulesRepository_ListOrdering(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	repo := rules.NewRepository(infra.PostgresDB)

	// Same priority resolves by insertion order, lower priority wins overall.
	for _, r := range []*rules.FilterRule{
		createTestFilterRule("tie-first", "subject:a", 10, true),
		createTestFilterRule("tie-second", "subject:b", 10, true),
		createTestFilterRule("urgent", "subject:c", 1, true),
	} {
		require.NoError(t, repo.CreateFilterRule(ctx, r))
		time.Sleep(timestampDelay)
	}

	listed, err := repo.ListFilterRules(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "urgent", listed[0].Name)
	assert.Equal(t, "tie-first", listed[1].Name)
	assert.Equal(t, "tie-second", listed[2].Name)
}

func TestRulesRepository_UpdateAndDelete(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	repo := rules.NewRepository(infra.PostgresDB)

	rule := createTestFilterRule("mutable", "label:spam", 3, true)
	require.NoError(t, repo.CreateFilterRule(ctx, rule))

	rule.Query = "label:junk"
	rule.Enabled = false
	rule.UpdatedBy = "bob"
	require.NoError(t, repo.UpdateFilterRule(ctx, rule))

	got, err := repo.GetFilterRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "label:junk", got.Query)
	assert.False(t, got.Enabled)
	assert.Equal(t, "bob", got.UpdatedBy)

	require.NoError(t, repo.DeleteFilterRule(ctx, rule.ID))

	_, err = repo.GetFilterRule(ctx, rule.ID)
	assert.Error(t, err)
}
