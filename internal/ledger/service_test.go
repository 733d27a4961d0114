package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/constants"
	"mailgate/internal/logger"
	pkgerrors "mailgate/pkg/errors"
)

type fakeRepository struct {
	mu           sync.Mutex
	events       []Event
	failuresLeft int
	lastLimit    int
}

func (f *fakeRepository) InsertEvent(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failuresLeft > 0 {
		f.failuresLeft--
		return fmt.Errorf("connection reset")
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeRepository) ListRecentEvents(_ context.Context, limit int) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastLimit = limit

	sorted := make([]Event, len(f.events))
	copy(sorted, f.events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func TestAppend(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo, logger.NopLogger())

	filterID := "rule-1"
	event, err := svc.Append(context.Background(), "msg-1", &filterID, StatusOK, "")
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "msg-1", event.MessageID)
	assert.Equal(t, StatusOK, event.Status)
	require.NotNil(t, event.FilterID)
	assert.Equal(t, "rule-1", *event.FilterID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestAppendTimestampsStrictlyIncrease(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo, logger.NopLogger())

	var events []*Event
	for i := 0; i < 100; i++ {
		event, err := svc.Append(context.Background(), fmt.Sprintf("msg-%d", i), nil, StatusOK, "")
		require.NoError(t, err)
		events = append(events, event)
	}

	for i := 1; i < len(events); i++ {
		assert.True(t, events[i].CreatedAt.After(events[i-1].CreatedAt),
			"event %d timestamp must be after event %d", i, i-1)
	}
}

func TestAppendRetriesTransientFailure(t *testing.T) {
	repo := &fakeRepository{failuresLeft: 2}
	svc := NewService(repo, logger.NopLogger())

	event, err := svc.Append(context.Background(), "msg-1", nil, StatusError, "evaluation failed")
	require.NoError(t, err)
	assert.Equal(t, StatusError, event.Status)
	assert.Len(t, repo.events, 1)
}

func TestAppendSurfacesPersistentFailure(t *testing.T) {
	repo := &fakeRepository{failuresLeft: 100}
	svc := NewService(repo, logger.NopLogger())

	_, err := svc.Append(context.Background(), "msg-1", nil, StatusOK, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsTransient(err))
	assert.Empty(t, repo.events)
}

func TestRecentNewestFirst(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo, logger.NopLogger())

	for i := 0; i < 5; i++ {
		_, err := svc.Append(context.Background(), fmt.Sprintf("msg-%d", i), nil, StatusOK, "")
		require.NoError(t, err)
	}

	events, err := svc.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "msg-4", events[0].MessageID)
	assert.Equal(t, "msg-3", events[1].MessageID)
	assert.Equal(t, "msg-2", events[2].MessageID)
}

func TestRecentLimitClamped(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo, logger.NopLogger())

	_, err := svc.Append(context.Background(), "msg-1", nil, StatusOK, "")
	require.NoError(t, err)

	events, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = svc.Recent(context.Background(), -5)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, constants.DefaultEventLimit, repo.lastLimit)

	// An over-max request clamps to the maximum, not back to the default.
	_, err = svc.Recent(context.Background(), constants.MaxEventLimit+1)
	require.NoError(t, err)
	assert.Equal(t, constants.MaxEventLimit, repo.lastLimit)
}
