package rules

import (
	"context"
	"time"

	"mailgate/internal/broker"
	"mailgate/pkg/models"
)

// RuleEventProducer announces rule mutations on the rule-update topic
// so evaluator snapshots can reload without waiting for the periodic
// refresh.
type RuleEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewRuleEventProducer(producer broker.Producer, topic string) *RuleEventProducer {
	return &RuleEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *RuleEventProducer) PublishRuleEvent(ctx context.Context, action, ruleID, changedBy string) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}

	event := models.RuleChangeEvent{
		EventType: models.EventTypeFilterRuleUpdated,
		RuleID:    ruleID,
		Action:    action,
		Timestamp: time.Now(),
		ChangedBy: changedBy,
	}

	return p.producer.Publish(ctx, p.topic, ruleID, event)
}
