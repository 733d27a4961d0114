package integration

import (
	"time"

	"github.com/google/uuid"

	"mailgate/internal/config"
	"mailgate/internal/ledger"
	"mailgate/internal/logger"
	"mailgate/internal/rules"
)

const timestampDelay = 10 * time.Millisecond

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestEvaluatorConfig() config.EvaluatorConfig {
	return config.EvaluatorConfig{
		Fallback: config.FallbackConfig{
			OnError: "skip",
		},
		Reload: config.ReloadConfig{
			IntervalSeconds: 60,
		},
	}
}

func createTestFilterRule(name, query string, priority int, enabled bool) *rules.FilterRule {
	return &rules.FilterRule{
		Name:     name,
		Query:    query,
		Priority: priority,
		Enabled:  enabled,
	}
}

func createTestEvent(messageID, status, errMsg string, filterID *string, createdAt time.Time) *ledger.Event {
	return &ledger.Event{
		ID:        uuid.New().String(),
		MessageID: messageID,
		FilterID:  filterID,
		Status:    status,
		Error:     errMsg,
		CreatedAt: createdAt,
	}
}
