package actions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/evaluator"
	"mailgate/internal/ledger"
	"mailgate/internal/logger"
	"mailgate/internal/upstream"
	pkgerrors "mailgate/pkg/errors"
	"mailgate/pkg/models"
)

type fakeUpstream struct {
	mu          sync.Mutex
	watchCalls  int32
	watchErr    error
	fetchCalls  int32
	fetchErr    error
	messages    []models.MailMessage
	watchResult upstream.WatchRegistration
	block       chan struct{}
}

func (f *fakeUpstream) RenewWatch(_ context.Context) (*upstream.WatchRegistration, error) {
	atomic.AddInt32(&f.watchCalls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	result := f.watchResult
	return &result, nil
}

func (f *fakeUpstream) FetchWindow(_ context.Context, _ time.Time) ([]models.MailMessage, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.messages, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	events    []ledger.Event
	appendErr error
}

func (f *fakeLedger) Append(_ context.Context, messageID string, filterID *string, status, errMsg string) (*ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return nil, f.appendErr
	}

	event := ledger.Event{
		MessageID: messageID,
		FilterID:  filterID,
		Status:    status,
		Error:     errMsg,
		CreatedAt: time.Now(),
	}
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := make([]ledger.Event, len(f.events))
	copy(events, f.events)
	return events, nil
}

type fakeEvaluator struct {
	matchRuleID string
	err         error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ models.MailMessage) (*evaluator.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.matchRuleID == "" {
		return nil, nil
	}
	return &evaluator.Match{RuleID: f.matchRuleID}, nil
}

type fakeGuard struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: make(map[string]bool)}
}

func (f *fakeGuard) FirstSeen(_ context.Context, messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[messageID] {
		return false
	}
	f.seen[messageID] = true
	return true
}

func (f *fakeGuard) Release(_ context.Context, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, messageID)
	f.released = append(f.released, messageID)
}

func (f *fakeGuard) releasedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.released))
	copy(ids, f.released)
	return ids
}

type fakeWatchRepo struct {
	mu     sync.Mutex
	status *WatchStatus
}

func (f *fakeWatchRepo) SaveWatchStatus(_ context.Context, status WatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = &status
	return nil
}

func (f *fakeWatchRepo) GetWatchStatus(_ context.Context) (*WatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeLedger) snapshot() []ledger.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]ledger.Event, len(f.events))
	copy(events, f.events)
	return events
}

func (f *fakeWatchRepo) current() *WatchStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func newTestDispatcher(up *fakeUpstream, led *fakeLedger, eval MessageEvaluator, repo WatchRepository) *Dispatcher {
	return NewDispatcher(up, led, eval, repo, nil, 30*time.Second, 24*time.Hour, logger.NopLogger())
}

// idle reports whether no background run is in flight.
func (d *Dispatcher) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight) == 0
}

func TestTriggerUnknownAction(t *testing.T) {
	d := newTestDispatcher(&fakeUpstream{}, &fakeLedger{}, &fakeEvaluator{}, &fakeWatchRepo{})

	_, err := d.Trigger(context.Background(), "defragment")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnknownAction(err))
}

func TestRenewWatchSuccess(t *testing.T) {
	expires := time.Now().Add(7 * 24 * time.Hour)
	up := &fakeUpstream{watchResult: upstream.WatchRegistration{HistoryID: 42, ExpiresAt: expires}}
	repo := &fakeWatchRepo{}
	led := &fakeLedger{}
	d := newTestDispatcher(up, led, &fakeEvaluator{}, repo)

	result, err := d.Trigger(context.Background(), "renew-watch")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	require.Eventually(t, func() bool {
		return repo.current() != nil
	}, time.Second, 10*time.Millisecond, "watch status should be persisted out-of-band")

	status := repo.current()
	assert.Equal(t, int64(42), status.HistoryID)
	require.NotNil(t, status.ExpiresAt)

	require.Eventually(t, d.idle, time.Second, 10*time.Millisecond)
	assert.Empty(t, led.snapshot(), "successful renewal should not append events")
}

func TestRenewWatchFailureLandsOnLedger(t *testing.T) {
	up := &fakeUpstream{watchErr: fmt.Errorf("upstream returned 503")}
	led := &fakeLedger{}
	d := newTestDispatcher(up, led, &fakeEvaluator{}, &fakeWatchRepo{})

	result, err := d.Trigger(context.Background(), "renew-watch")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	require.Eventually(t, func() bool {
		return len(led.snapshot()) == 1
	}, time.Second, 10*time.Millisecond, "failure should land on the ledger")

	events := led.snapshot()
	assert.Equal(t, "renew-watch", events[0].MessageID)
	assert.Equal(t, ledger.StatusError, events[0].Status)
	assert.Contains(t, events[0].Error, "503")
}

func TestResyncReplaysMessages(t *testing.T) {
	up := &fakeUpstream{messages: []models.MailMessage{
		{ID: "m1", Subject: "invoice"},
		{ID: "m2", Subject: "newsletter"},
	}}
	led := &fakeLedger{}
	d := newTestDispatcher(up, led, &fakeEvaluator{matchRuleID: "rule-7"}, &fakeWatchRepo{})

	result, err := d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	require.Eventually(t, func() bool {
		return len(led.snapshot()) == 2
	}, time.Second, 10*time.Millisecond, "both messages should be replayed onto the ledger")

	for _, event := range led.snapshot() {
		assert.Equal(t, ledger.StatusOK, event.Status)
		require.NotNil(t, event.FilterID)
		assert.Equal(t, "rule-7", *event.FilterID)
	}
}

func TestResyncFetchFailureLandsOnLedger(t *testing.T) {
	up := &fakeUpstream{fetchErr: fmt.Errorf("upstream returned 503")}
	led := &fakeLedger{}
	d := newTestDispatcher(up, led, &fakeEvaluator{}, &fakeWatchRepo{})

	result, err := d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	require.Eventually(t, func() bool {
		return len(led.snapshot()) == 1
	}, time.Second, 10*time.Millisecond, "fetch failure should land on the ledger")

	events := led.snapshot()
	assert.Equal(t, "resync", events[0].MessageID)
	assert.Equal(t, ledger.StatusError, events[0].Status)
	assert.Contains(t, events[0].Error, "503")
}

func TestResyncReleasesClaimWhenReplayFails(t *testing.T) {
	up := &fakeUpstream{messages: []models.MailMessage{{ID: "m1", Subject: "invoice"}}}
	led := &fakeLedger{appendErr: fmt.Errorf("insert failed")}
	guard := newFakeGuard()
	d := newTestDispatcher(up, led, &fakeEvaluator{matchRuleID: "rule-7"}, &fakeWatchRepo{})
	d.guard = guard

	result, err := d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	// The claim must come back so the next resync can retry the message.
	require.Eventually(t, func() bool {
		return len(guard.releasedIDs()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"m1"}, guard.releasedIDs())

	require.Eventually(t, d.idle, time.Second, 10*time.Millisecond)
	assert.True(t, guard.FirstSeen(context.Background(), "m1"),
		"released message should be claimable again")
}

func TestResyncEvaluationErrorRecorded(t *testing.T) {
	up := &fakeUpstream{messages: []models.MailMessage{{ID: "m1"}}}
	led := &fakeLedger{}
	d := newTestDispatcher(up, led, &fakeEvaluator{err: fmt.Errorf("rule blew up")}, &fakeWatchRepo{})

	result, err := d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	require.Eventually(t, func() bool {
		return len(led.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	events := led.snapshot()
	assert.Equal(t, ledger.StatusError, events[0].Status)
	assert.Contains(t, events[0].Error, "rule blew up")
}

func TestCooldownSuppressesRepeatRuns(t *testing.T) {
	up := &fakeUpstream{}
	d := newTestDispatcher(up, &fakeLedger{}, &fakeEvaluator{}, &fakeWatchRepo{})

	var mu sync.Mutex
	current := time.Now()
	d.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(delta time.Duration) {
		mu.Lock()
		current = current.Add(delta)
		mu.Unlock()
	}

	result, err := d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)
	require.Eventually(t, d.idle, time.Second, 10*time.Millisecond)

	advance(5 * time.Second)
	result, err = d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusCooldown, result.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&up.fetchCalls))

	advance(time.Minute)
	result, err = d.Trigger(context.Background(), "resync")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&up.fetchCalls) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentTriggersCoalesce(t *testing.T) {
	block := make(chan struct{})
	up := &fakeUpstream{block: block}
	d := newTestDispatcher(up, &fakeLedger{}, &fakeEvaluator{}, &fakeWatchRepo{})

	result, err := d.Trigger(context.Background(), "renew-watch")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	// Wait for the background run to park on the upstream call, then pile
	// repeat triggers onto it.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&up.watchCalls) == 1
	}, time.Second, 10*time.Millisecond)

	for i := 0; i < 4; i++ {
		result, err = d.Trigger(context.Background(), "renew-watch")
		require.NoError(t, err)
		assert.Equal(t, StatusCoalesced, result.Status)
	}

	close(block)
	require.Eventually(t, d.idle, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&up.watchCalls), "only one upstream call should happen")
}
