package config_handler

import (
	"context"
	"encoding/json"

	"mailgate/internal/logger"
	"mailgate/pkg/models"
)

type RuleReloader interface {
	ReloadRules(ctx context.Context) error
}

// Handler reacts to rule-change events on the rule-update topic by
// refreshing the evaluator snapshot.
type Handler struct {
	expectedEventType string
	reloader          RuleReloader
	logger            logger.Logger
}

func NewHandler(expectedEventType string, reloader RuleReloader, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType: expectedEventType,
		reloader:          reloader,
		logger:            log,
	}
}

func (h *Handler) HandleRuleChangeEvent(ctx context.Context, key, value []byte) error {
	var event models.RuleChangeEvent
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to unmarshal rule change event",
			"error", err,
			"key", string(key),
		)
		// Malformed events are dropped rather than retried.
		return nil
	}

	if event.EventType != h.expectedEventType {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received rule change event",
		"event_type", event.EventType,
		"action", event.Action,
		"rule_id", event.RuleID,
		"changed_by", event.ChangedBy,
	)

	if h.reloader == nil {
		return nil
	}

	if err := h.reloader.ReloadRules(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload rules after change event",
			"error", err,
		)
		return err
	}

	return nil
}
