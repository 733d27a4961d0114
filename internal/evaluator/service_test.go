package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/config"
	"mailgate/internal/logger"
	"mailgate/pkg/models"
)

type fakeRepository struct {
	rules []Rule
	err   error
}

func (f *fakeRepository) GetActiveRules(_ context.Context) ([]Rule, error) {
	return f.rules, f.err
}

func newTestService(t *testing.T, cfg config.EvaluatorConfig, rules ...Rule) *Service {
	t.Helper()

	svc, err := NewService(&fakeRepository{rules: rules}, cfg, logger.NopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.ReloadRules(context.Background()))
	return svc
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	svc := newTestService(t, config.EvaluatorConfig{},
		Rule{ID: "r1", Name: "catch-invoices", Query: `subject:invoice`, Priority: 1, Seq: 1},
		Rule{ID: "r2", Name: "catch-billing", Query: `from:billing@example.com`, Priority: 2, Seq: 2},
	)

	// Message satisfies both rules; the lower-priority one must win.
	match, err := svc.Evaluate(context.Background(), models.MailMessage{
		ID:      "m1",
		From:    "billing@example.com",
		Subject: "Invoice #7",
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "r1", match.RuleID)
}

func TestEvaluateSeqBreaksPriorityTies(t *testing.T) {
	svc := newTestService(t, config.EvaluatorConfig{},
		Rule{ID: "older", Query: `subject:report`, Priority: 5, Seq: 10},
		Rule{ID: "newer", Query: `subject:report`, Priority: 5, Seq: 11},
	)

	match, err := svc.Evaluate(context.Background(), models.MailMessage{
		ID:      "m1",
		Subject: "weekly report",
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "older", match.RuleID)
}

func TestEvaluateNoMatch(t *testing.T) {
	svc := newTestService(t, config.EvaluatorConfig{},
		Rule{ID: "r1", Query: `subject:invoice`, Priority: 1, Seq: 1},
	)

	match, err := svc.Evaluate(context.Background(), models.MailMessage{
		ID:      "m1",
		Subject: "lunch plans",
	})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestEvaluateEmptySnapshot(t *testing.T) {
	svc := newTestService(t, config.EvaluatorConfig{})

	match, err := svc.Evaluate(context.Background(), models.MailMessage{ID: "m1"})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestEvaluateErrorFallbackSkip(t *testing.T) {
	// headers.list_id errors on messages without that header; with the
	// default fallback the next rule still gets a chance.
	svc := newTestService(t, config.EvaluatorConfig{},
		Rule{ID: "r1", Query: `headers.list_id == "x"`, Priority: 1, Seq: 1},
		Rule{ID: "r2", Query: `subject:invoice`, Priority: 2, Seq: 2},
	)

	match, err := svc.Evaluate(context.Background(), models.MailMessage{
		ID:      "m1",
		Subject: "Invoice",
	})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "r2", match.RuleID)
}

func TestEvaluateErrorFallbackFail(t *testing.T) {
	svc := newTestService(t, config.EvaluatorConfig{
		Fallback: config.FallbackConfig{OnError: "fail"},
	},
		Rule{ID: "r1", Query: `headers.list_id == "x"`, Priority: 1, Seq: 1},
		Rule{ID: "r2", Query: `subject:invoice`, Priority: 2, Seq: 2},
	)

	_, err := svc.Evaluate(context.Background(), models.MailMessage{
		ID:      "m1",
		Subject: "Invoice",
	})
	require.Error(t, err)
}

func TestReloadRulesSwapsSnapshot(t *testing.T) {
	repo := &fakeRepository{rules: []Rule{
		{ID: "r1", Query: `subject:alpha`, Priority: 1, Seq: 1},
	}}

	svc, err := NewService(repo, config.EvaluatorConfig{}, logger.NopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.ReloadRules(context.Background()))

	match, err := svc.Evaluate(context.Background(), models.MailMessage{ID: "m1", Subject: "alpha"})
	require.NoError(t, err)
	require.NotNil(t, match)

	repo.rules = []Rule{
		{ID: "r2", Query: `subject:beta`, Priority: 1, Seq: 2},
	}
	require.NoError(t, svc.ReloadRules(context.Background()))

	match, err = svc.Evaluate(context.Background(), models.MailMessage{ID: "m2", Subject: "alpha"})
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = svc.Evaluate(context.Background(), models.MailMessage{ID: "m3", Subject: "beta"})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "r2", match.RuleID)
}

func TestReloadSkipsUncompilableRule(t *testing.T) {
	svc, err := NewService(&fakeRepository{rules: []Rule{
		{ID: "bad", Query: `subject ==`, Priority: 1, Seq: 1},
		{ID: "good", Query: `subject:ok`, Priority: 2, Seq: 2},
	}}, config.EvaluatorConfig{}, logger.NopLogger())
	require.NoError(t, err)
	require.NoError(t, svc.ReloadRules(context.Background()))

	match, err := svc.Evaluate(context.Background(), models.MailMessage{ID: "m1", Subject: "ok"})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "good", match.RuleID)
}
