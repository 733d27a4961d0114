package rules

import "time"

// FilterRule is a stored mail filter. Evaluation order is priority
// ascending, then seq ascending, so two rules with equal priority keep
// their insertion order.
type FilterRule struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Query     string    `json:"query" db:"query"`
	Priority  int       `json:"priority" db:"priority"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	Seq       int64     `json:"-" db:"seq"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateFilterRuleRequest struct {
	Name     string `json:"name" binding:"required"`
	Query    string `json:"query" binding:"required"`
	Priority int    `json:"priority"`
	Enabled  *bool  `json:"enabled"`
}

type UpdateFilterRuleRequest struct {
	Name     *string `json:"name"`
	Query    *string `json:"query"`
	Priority *int    `json:"priority"`
	Enabled  *bool   `json:"enabled"`
}

type AuditLog struct {
	ID        string                 `json:"id"`
	RuleID    *string                `json:"rule_id,omitempty"`
	Action    string                 `json:"action"`
	OldValue  map[string]interface{} `json:"old_value,omitempty"`
	NewValue  map[string]interface{} `json:"new_value,omitempty"`
	ChangedBy string                 `json:"changed_by"`
	CreatedAt time.Time              `json:"created_at"`
}
