package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/evaluator"
	"mailgate/internal/rules"
	"mailgate/pkg/models"
)

func TestEvaluatorRepository_GetActiveRules(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()

	rulesRepo := rules.NewRepository(infra.PostgresDB)
	for _, r := range []*rules.FilterRule{
		createTestFilterRule("active-low", "subject:invoice", 10, true),
		createTestFilterRule("active-high", "subject:urgent", 1, true),
		createTestFilterRule("disabled", "subject:draft", 0, false),
	} {
		require.NoError(t, rulesRepo.CreateFilterRule(ctx, r))
		time.Sleep(timestampDelay)
	}

	evalRepo := evaluator.NewRepository(infra.PostgresDB)
	active, err := evalRepo.GetActiveRules(ctx)
	require.NoError(t, err)

	require.Len(t, active, 2)
	assert.Equal(t, "active-high", active[0].Name)
	assert.Equal(t, "active-low", active[1].Name)
}

func TestEvaluatorService_FirstMatchAgainstStoredRules(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()

	rulesRepo := rules.NewRepository(infra.PostgresDB)
	broad := createTestFilterRule("broad", `subject.lowerAscii().contains("report")`, 20, true)
	narrow := createTestFilterRule("narrow", `from == "ceo@example.com"`, 5, true)
	require.NoError(t, rulesRepo.CreateFilterRule(ctx, broad))
	require.NoError(t, rulesRepo.CreateFilterRule(ctx, narrow))

	svc, err := evaluator.NewService(evaluator.NewRepository(infra.PostgresDB), createTestEvaluatorConfig(), createTestLogger())
	require.NoError(t, err)
	require.NoError(t, svc.ReloadRules(ctx))

	match, err := svc.Evaluate(ctx, models.MailMessage{
		ID:      "msg-1",
		From:    "ceo@example.com",
		Subject: "Weekly Report",
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, narrow.ID, match.RuleID)
	assert.Equal(t, "narrow", match.RuleName)

	match, err = svc.Evaluate(ctx, models.MailMessage{
		ID:      "msg-2",
		From:    "intern@example.com",
		Subject: "expense report",
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "broad", match.RuleName)

	match, err = svc.Evaluate(ctx, models.MailMessage{
		ID:      "msg-3",
		From:    "intern@example.com",
		Subject: "lunch",
	})
	require.NoError(t, err)
	assert.Nil(t, match)
}
