package rules

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/constants"
	pkgerrors "mailgate/pkg/errors"
	"mailgate/pkg/logging"
)

type fakeRepository struct {
	mu    sync.Mutex
	rules map[string]FilterRule
	seq   int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rules: make(map[string]FilterRule)}
}

func (f *fakeRepository) CreateFilterRule(_ context.Context, rule *FilterRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	f.seq++
	rule.Seq = f.seq
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeRepository) ListFilterRules(_ context.Context) ([]FilterRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rules []FilterRule
	for _, r := range f.rules {
		rules = append(rules, r)
	}
	return rules, nil
}

func (f *fakeRepository) ListEnabledFilterRules(ctx context.Context) ([]FilterRule, error) {
	all, _ := f.ListFilterRules(ctx)
	var rules []FilterRule
	for _, r := range all {
		if r.Enabled {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

func (f *fakeRepository) GetFilterRule(_ context.Context, id string) (*FilterRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rule, ok := f.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule not found")
	}
	return &rule, nil
}

func (f *fakeRepository) UpdateFilterRule(_ context.Context, rule *FilterRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rules[rule.ID]; !ok {
		return fmt.Errorf("rule not found")
	}
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeRepository) DeleteFilterRule(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rules[id]; !ok {
		return fmt.Errorf("rule not found")
	}
	delete(f.rules, id)
	return nil
}

func TestCreateFilterRule(t *testing.T) {
	svc := NewService(newFakeRepository())

	rule, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:     "invoices",
		Query:    `subject:invoice`,
		Priority: 10,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "invoices", rule.Name)
	assert.True(t, rule.Enabled, "enabled should default to true")
	assert.Equal(t, "system", rule.UpdatedBy)
}

func TestCreateFilterRuleValidation(t *testing.T) {
	svc := NewService(newFakeRepository())

	tests := []struct {
		name string
		req  CreateFilterRuleRequest
	}{
		{
			name: "missing name",
			req:  CreateFilterRuleRequest{Query: `subject:a`},
		},
		{
			name: "missing query",
			req:  CreateFilterRuleRequest{Name: "r"},
		},
		{
			name: "malformed CEL query",
			req:  CreateFilterRuleRequest{Name: "r", Query: `subject ==`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateFilterRule(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestCreateFilterRuleNegativePriority(t *testing.T) {
	svc := NewService(newFakeRepository())

	// Priority carries no sign restriction; negative values just sort
	// ahead of zero.
	rule, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:     "drop-first",
		Query:    `subject:spam`,
		Priority: -5,
	})
	require.NoError(t, err)
	assert.Equal(t, -5, rule.Priority)
}

func TestCreateFilterRuleNamesNotUnique(t *testing.T) {
	svc := NewService(newFakeRepository())

	first, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:  "receipts",
		Query: `subject:receipt`,
	})
	require.NoError(t, err)

	second, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:  "receipts",
		Query: `label:receipts`,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUpdateFilterRulePartial(t *testing.T) {
	svc := NewService(newFakeRepository())

	created, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:     "alerts",
		Query:    `from:alerts@example.com`,
		Priority: 5,
	})
	require.NoError(t, err)

	newPriority := 1
	updated, err := svc.UpdateFilterRule(context.Background(), created.ID, UpdateFilterRuleRequest{
		Priority: &newPriority,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, updated.Priority)
	assert.Equal(t, "alerts", updated.Name, "unset fields keep their value")
	assert.Equal(t, created.Query, updated.Query)
}

func TestUpdateFilterRuleAttribution(t *testing.T) {
	svc := NewService(newFakeRepository())

	created, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:  "attributed",
		Query: `subject:x`,
	})
	require.NoError(t, err)

	ctx := logging.WithAdminUser(context.Background(), "ops@example.com")
	enabled := false
	updated, err := svc.UpdateFilterRule(ctx, created.ID, UpdateFilterRuleRequest{
		Enabled: &enabled,
	})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", updated.UpdatedBy)
	assert.False(t, updated.Enabled)
}

func TestUpdateFilterRuleNotFound(t *testing.T) {
	svc := NewService(newFakeRepository())

	name := "x"
	_, err := svc.UpdateFilterRule(context.Background(), uuid.New().String(), UpdateFilterRuleRequest{
		Name: &name,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDeleteFilterRule(t *testing.T) {
	svc := NewService(newFakeRepository())

	created, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:  "doomed",
		Query: `subject:x`,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFilterRule(context.Background(), created.ID))

	_, err = svc.GetFilterRule(context.Background(), created.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDeleteFilterRuleNotFound(t *testing.T) {
	svc := NewService(newFakeRepository())

	err := svc.DeleteFilterRule(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestConcurrentPartialUpdates(t *testing.T) {
	svc := NewService(newFakeRepository())

	created, err := svc.CreateFilterRule(context.Background(), CreateFilterRuleRequest{
		Name:     "contended",
		Query:    `subject:x`,
		Priority: 3,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			priority := i
			_, err := svc.UpdateFilterRule(context.Background(), created.ID, UpdateFilterRuleRequest{
				Priority: &priority,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Whatever won, the record must still be internally consistent.
	rule, err := svc.GetFilterRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "contended", rule.Name)
	assert.Equal(t, created.Query, rule.Query)
	assert.GreaterOrEqual(t, rule.Priority, 0)
	assert.Less(t, rule.Priority, 10)
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, constants.DefaultEventLimit, parseLimit(""))
	assert.Equal(t, constants.DefaultEventLimit, parseLimit("abc"))
	assert.Equal(t, constants.DefaultEventLimit, parseLimit("-1"))
	assert.Equal(t, 25, parseLimit("25"))
	assert.Equal(t, constants.MaxEventLimit, parseLimit("5000"))
}

func TestSharedQueryEvaluatorReused(t *testing.T) {
	first, err := sharedQueryEvaluator()
	require.NoError(t, err)
	second, err := sharedQueryEvaluator()
	require.NoError(t, err)
	assert.Same(t, first, second)
}
