package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailgate/internal/constants"
	"mailgate/internal/logger"
	pkgerrors "mailgate/pkg/errors"
	"mailgate/pkg/metrics"
	"mailgate/pkg/retry"
)

type Service interface {
	Append(ctx context.Context, messageID string, filterID *string, status, errMsg string) (*Event, error)
	Recent(ctx context.Context, limit int) ([]Event, error)
}

type service struct {
	repo   Repository
	logger logger.Logger
	policy retry.Policy

	// Ledger timestamps must be strictly increasing even when the wall
	// clock stalls or steps backwards within the process.
	clockMu  sync.Mutex
	lastTime time.Time
}

func NewService(repo Repository, log logger.Logger) Service {
	return &service{
		repo:   repo,
		logger: log,
		policy: retry.DefaultPolicy(),
	}
}

func (s *service) Append(ctx context.Context, messageID string, filterID *string, status, errMsg string) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		MessageID: messageID,
		FilterID:  filterID,
		Status:    status,
		Error:     errMsg,
		CreatedAt: s.nextTimestamp(),
	}

	attempts := 0
	err := retry.Retry(ctx, s.policy, func() error {
		attempts++
		if attempts > 1 {
			metrics.LedgerAppendRetriesTotal.Inc()
		}
		return s.repo.InsertEvent(ctx, event)
	})
	if err != nil {
		metrics.EventsAppendedTotal.WithLabelValues("failed").Inc()
		s.logger.ErrorwCtx(ctx, "Failed to append ledger event",
			"message_id", messageID,
			"status", status,
			"error", err,
		)
		return nil, pkgerrors.ErrTransient.WithCause(err).WithDetail("message", "event could not be persisted")
	}

	metrics.EventsAppendedTotal.WithLabelValues(status).Inc()
	return event, nil
}

func (s *service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = constants.DefaultEventLimit
	}
	if limit > constants.MaxEventLimit {
		limit = constants.MaxEventLimit
	}

	events, err := s.repo.ListRecentEvents(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func (s *service) nextTimestamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Microsecond)
	}
	s.lastTime = now
	return now
}
