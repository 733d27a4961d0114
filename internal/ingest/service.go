package ingest

import (
	"context"
	"encoding/json"

	"mailgate/internal/evaluator"
	"mailgate/internal/ledger"
	"mailgate/internal/logger"
	"mailgate/pkg/models"
)

type MessageEvaluator interface {
	Evaluate(ctx context.Context, msg models.MailMessage) (*evaluator.Match, error)
}

type EventAppender interface {
	Append(ctx context.Context, messageID string, filterID *string, status, errMsg string) (*ledger.Event, error)
}

// Service is the consume side of the pipeline: each inbound message is
// evaluated against the rule snapshot and the outcome is appended to
// the ledger exactly once.
type Service struct {
	evaluator MessageEvaluator
	ledger    EventAppender
	logger    logger.Logger
}

func NewService(messageEvaluator MessageEvaluator, eventAppender EventAppender, log logger.Logger) *Service {
	return &Service{
		evaluator: messageEvaluator,
		ledger:    eventAppender,
		logger:    log,
	}
}

// HandleMessage implements broker.HandlerFunc. A returned error makes
// the consumer retry the record, so only failures to persist the
// outcome propagate; evaluation errors are themselves an outcome.
func (s *Service) HandleMessage(ctx context.Context, key, value []byte) error {
	var msg models.MailMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		s.logger.ErrorwCtx(ctx, "Dropping undecodable message",
			"key", string(key),
			"error", err,
		)
		return nil
	}

	if msg.ID == "" {
		s.logger.WarnwCtx(ctx, "Dropping message without id")
		return nil
	}

	match, err := s.evaluator.Evaluate(ctx, msg)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Message evaluation failed",
			"message_id", msg.ID,
			"error", err,
		)
		_, appendErr := s.ledger.Append(ctx, msg.ID, nil, ledger.StatusError, err.Error())
		return appendErr
	}

	var filterID *string
	if match != nil {
		filterID = &match.RuleID
		s.logger.DebugwCtx(ctx, "Message matched rule",
			"message_id", msg.ID,
			"rule_id", match.RuleID,
			"rule_name", match.RuleName,
		)
	}

	_, err = s.ledger.Append(ctx, msg.ID, filterID, ledger.StatusOK, "")
	return err
}
