package models

import "time"

// RuleChangeEvent is published on the rule-update topic after every
// successful rule mutation so running evaluators can reload their snapshot.
type RuleChangeEvent struct {
	EventType string    `json:"event_type"`
	RuleID    string    `json:"rule_id,omitempty"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	ChangedBy string    `json:"changed_by,omitempty"`
}

const (
	EventTypeFilterRuleUpdated = "filter_rule_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)
