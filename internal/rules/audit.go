package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AuditLogger struct {
	db *sql.DB
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

func (a *AuditLogger) LogRuleChange(ctx context.Context, entry AuditLogEntry) error {
	query := `
		INSERT INTO rule_audit_logs (id, rule_id, action, old_value, new_value, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	id := uuid.New().String()
	if entry.ID != "" {
		id = entry.ID
	}

	oldValueJSON, _ := json.Marshal(entry.OldValue)
	newValueJSON, _ := json.Marshal(entry.NewValue)

	var ruleID *string
	if entry.RuleID != "" {
		ruleID = &entry.RuleID
	}

	timestamp := time.Now()
	if !entry.Timestamp.IsZero() {
		timestamp = entry.Timestamp
	}

	_, err := a.db.ExecContext(ctx, query,
		id, ruleID, entry.Action,
		oldValueJSON, newValueJSON,
		entry.ChangedBy, timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}

	return nil
}

func (a *AuditLogger) GetAuditLogs(ctx context.Context, ruleID *string, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, rule_id, action, old_value, new_value, changed_by, created_at
		FROM rule_audit_logs
	`
	args := []interface{}{}
	if ruleID != nil {
		query += ` WHERE rule_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, *ruleID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var (
			entry        AuditLog
			oldValueJSON []byte
			newValueJSON []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.RuleID, &entry.Action,
			&oldValueJSON, &newValueJSON,
			&entry.ChangedBy, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if len(oldValueJSON) > 0 {
			_ = json.Unmarshal(oldValueJSON, &entry.OldValue)
		}
		if len(newValueJSON) > 0 {
			_ = json.Unmarshal(newValueJSON, &entry.NewValue)
		}

		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

type AuditLogEntry struct {
	ID        string
	RuleID    string
	Action    string
	OldValue  interface{}
	NewValue  interface{}
	ChangedBy string
	Timestamp time.Time
}
