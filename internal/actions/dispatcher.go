package actions

import (
	"context"
	"sync"
	"time"

	"mailgate/internal/constants"
	"mailgate/internal/evaluator"
	"mailgate/internal/ledger"
	"mailgate/internal/logger"
	"mailgate/internal/upstream"
	pkgerrors "mailgate/pkg/errors"
	"mailgate/pkg/metrics"
	"mailgate/pkg/models"
)

const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCoalesced = "coalesced"
	StatusCooldown  = "cooldown"
)

type ActionResult struct {
	Action  string                 `json:"action"`
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type MessageEvaluator interface {
	Evaluate(ctx context.Context, msg models.MailMessage) (*evaluator.Match, error)
}

type replayGuard interface {
	FirstSeen(ctx context.Context, messageID string) bool
	Release(ctx context.Context, messageID string)
}

// Dispatcher runs maintenance actions in the background. Trigger only
// acknowledges: the work itself finishes out-of-band and its outcome
// shows up on the ledger. Triggers of an action already in flight
// coalesce onto that run, and a finished run opens a cooldown window
// during which repeat triggers are acknowledged without work.
type Dispatcher struct {
	upstream     upstream.Client
	ledger       ledger.Service
	evaluator    MessageEvaluator
	watchRepo    WatchRepository
	guard        replayGuard
	cooldown     time.Duration
	resyncWindow time.Duration
	logger       logger.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	lastRun  map[string]time.Time
	now      func() time.Time
}

func NewDispatcher(
	upstreamClient upstream.Client,
	ledgerService ledger.Service,
	messageEvaluator MessageEvaluator,
	watchRepo WatchRepository,
	guard *ResyncGuard,
	cooldown time.Duration,
	resyncWindow time.Duration,
	log logger.Logger,
) *Dispatcher {
	if cooldown <= 0 {
		cooldown = constants.DefaultActionCooldown
	}
	if resyncWindow <= 0 {
		resyncWindow = constants.DefaultResyncWindow
	}

	d := &Dispatcher{
		upstream:     upstreamClient,
		ledger:       ledgerService,
		evaluator:    messageEvaluator,
		watchRepo:    watchRepo,
		cooldown:     cooldown,
		resyncWindow: resyncWindow,
		logger:       log,
		inFlight:     make(map[string]bool),
		lastRun:      make(map[string]time.Time),
		now:          time.Now,
	}
	if guard != nil {
		d.guard = guard
	}
	return d
}

func (d *Dispatcher) Trigger(ctx context.Context, action string) (*ActionResult, error) {
	switch action {
	case constants.ActionRenewWatch, constants.ActionResync:
	default:
		return nil, pkgerrors.ErrUnknownAction.WithDetail("action", action)
	}

	if remaining, cooling := d.inCooldown(action); cooling {
		metrics.ActionRunsTotal.WithLabelValues(action, StatusCooldown).Inc()
		return &ActionResult{
			Action: action,
			Status: StatusCooldown,
			Details: map[string]interface{}{
				"retry_after_seconds": int(remaining.Seconds()) + 1,
			},
		}, nil
	}

	d.mu.Lock()
	if d.inFlight[action] {
		d.mu.Unlock()
		metrics.ActionRunsTotal.WithLabelValues(action, StatusCoalesced).Inc()
		return &ActionResult{Action: action, Status: StatusCoalesced}, nil
	}
	d.inFlight[action] = true
	d.mu.Unlock()

	// The request context dies with the HTTP response, so the run gets
	// its own time-bounded one.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultActionTimeout)
		defer cancel()

		actionResult := d.run(runCtx, action)
		metrics.ActionRunsTotal.WithLabelValues(action, actionResult.Status).Inc()

		// The cooldown window opens when the run finishes, so triggers
		// arriving mid-run coalesce instead of bouncing off it.
		d.markRun(action)
		d.mu.Lock()
		delete(d.inFlight, action)
		d.mu.Unlock()
	}()

	metrics.ActionRunsTotal.WithLabelValues(action, StatusAccepted).Inc()
	return &ActionResult{Action: action, Status: StatusAccepted}, nil
}

func (d *Dispatcher) WatchStatus(ctx context.Context) (*WatchStatus, error) {
	if d.watchRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "watch status not available")
	}
	status, err := d.watchRepo.GetWatchStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if status == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", "watch has never been renewed")
	}
	return status, nil
}

func (d *Dispatcher) inCooldown(action string) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.lastRun[action]
	if !ok {
		return 0, false
	}
	elapsed := d.now().Sub(last)
	if elapsed < d.cooldown {
		return d.cooldown - elapsed, true
	}
	return 0, false
}

func (d *Dispatcher) markRun(action string) {
	d.mu.Lock()
	d.lastRun[action] = d.now()
	d.mu.Unlock()
}

func (d *Dispatcher) run(ctx context.Context, action string) *ActionResult {
	switch action {
	case constants.ActionRenewWatch:
		return d.runRenewWatch(ctx)
	case constants.ActionResync:
		return d.runResync(ctx)
	}
	return &ActionResult{Action: action, Status: StatusFailed}
}

func (d *Dispatcher) runRenewWatch(ctx context.Context) *ActionResult {
	registration, err := d.upstream.RenewWatch(ctx)
	if err != nil {
		d.logger.ErrorwCtx(ctx, "Watch renewal failed", "error", err)
		// The failure lands on the ledger so the dashboard surfaces it.
		_, _ = d.ledger.Append(ctx, constants.RenewWatchMessageID, nil, ledger.StatusError, err.Error())
		return &ActionResult{
			Action: constants.ActionRenewWatch,
			Status: StatusFailed,
			Details: map[string]interface{}{
				"error": err.Error(),
			},
		}
	}

	status := WatchStatus{
		HistoryID: registration.HistoryID,
		RenewedAt: d.now().UTC(),
	}
	if !registration.ExpiresAt.IsZero() {
		expiresAt := registration.ExpiresAt
		status.ExpiresAt = &expiresAt
	}

	if d.watchRepo != nil {
		if err := d.watchRepo.SaveWatchStatus(ctx, status); err != nil {
			d.logger.ErrorwCtx(ctx, "Failed to persist watch status", "error", err)
		}
	}

	d.logger.InfowCtx(ctx, "Watch renewed",
		"history_id", registration.HistoryID,
		"expires_at", registration.ExpiresAt,
	)

	return &ActionResult{
		Action: constants.ActionRenewWatch,
		Status: StatusCompleted,
		Details: map[string]interface{}{
			"history_id": registration.HistoryID,
			"expires_at": registration.ExpiresAt,
		},
	}
}

func (d *Dispatcher) runResync(ctx context.Context) *ActionResult {
	since := d.now().Add(-d.resyncWindow)

	messages, err := d.upstream.FetchWindow(ctx, since)
	if err != nil {
		d.logger.ErrorwCtx(ctx, "Resync fetch failed", "error", err)
		// The failure lands on the ledger so the dashboard surfaces it.
		_, _ = d.ledger.Append(ctx, constants.ResyncMessageID, nil, ledger.StatusError, err.Error())
		return &ActionResult{
			Action: constants.ActionResync,
			Status: StatusFailed,
			Details: map[string]interface{}{
				"error": err.Error(),
			},
		}
	}

	var processed, skipped, failed int
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			break
		}

		if d.guard != nil && !d.guard.FirstSeen(ctx, msg.ID) {
			skipped++
			continue
		}

		if err := d.replayMessage(ctx, msg); err != nil {
			// Give the claim back so a re-triggered resync can retry
			// the message instead of skipping it for the guard TTL.
			if d.guard != nil {
				d.guard.Release(ctx, msg.ID)
			}
			failed++
			continue
		}
		processed++
	}

	d.logger.InfowCtx(ctx, "Resync finished",
		"fetched", len(messages),
		"processed", processed,
		"skipped", skipped,
		"failed", failed,
	)

	return &ActionResult{
		Action: constants.ActionResync,
		Status: StatusCompleted,
		Details: map[string]interface{}{
			"fetched":   len(messages),
			"processed": processed,
			"skipped":   skipped,
			"failed":    failed,
		},
	}
}

func (d *Dispatcher) replayMessage(ctx context.Context, msg models.MailMessage) error {
	match, err := d.evaluator.Evaluate(ctx, msg)
	if err != nil {
		_, appendErr := d.ledger.Append(ctx, msg.ID, nil, ledger.StatusError, err.Error())
		if appendErr != nil {
			return appendErr
		}
		return nil
	}

	var filterID *string
	if match != nil {
		filterID = &match.RuleID
	}
	_, err = d.ledger.Append(ctx, msg.ID, filterID, ledger.StatusOK, "")
	return err
}
