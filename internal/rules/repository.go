package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateFilterRule(ctx context.Context, rule *FilterRule) error
	ListFilterRules(ctx context.Context) ([]FilterRule, error)
	ListEnabledFilterRules(ctx context.Context) ([]FilterRule, error)
	GetFilterRule(ctx context.Context, id string) (*FilterRule, error)
	UpdateFilterRule(ctx context.Context, rule *FilterRule) error
	DeleteFilterRule(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const ruleColumns = "id, name, query, priority, enabled, seq, updated_by, created_at, updated_at"

func (r *PostgresRepository) CreateFilterRule(ctx context.Context, rule *FilterRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO filter_rules (id, name, query, priority, enabled, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`

	err := r.db.QueryRowContext(ctx, query,
		rule.ID, rule.Name, rule.Query,
		rule.Priority, rule.Enabled, rule.UpdatedBy,
		rule.CreatedAt, rule.UpdatedAt,
	).Scan(&rule.Seq)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetFilterRule(ctx context.Context, id string) (*FilterRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM filter_rules WHERE id = $1`, ruleColumns)

	row := r.db.QueryRowContext(ctx, query, id)

	var rule FilterRule
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Query,
		&rule.Priority, &rule.Enabled, &rule.Seq,
		&rule.UpdatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return &rule, nil
}

func (r *PostgresRepository) ListFilterRules(ctx context.Context) ([]FilterRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM filter_rules ORDER BY priority ASC, seq ASC`, ruleColumns)
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) ListEnabledFilterRules(ctx context.Context) ([]FilterRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM filter_rules WHERE enabled ORDER BY priority ASC, seq ASC`, ruleColumns)
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string) ([]FilterRule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []FilterRule
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		var rule FilterRule
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Query,
			&rule.Priority, &rule.Enabled, &rule.Seq,
			&rule.UpdatedBy, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func (r *PostgresRepository) UpdateFilterRule(ctx context.Context, rule *FilterRule) error {
	rule.UpdatedAt = time.Now()

	query := `
		UPDATE filter_rules
		SET name = $1, query = $2, priority = $3, enabled = $4, updated_by = $5, updated_at = $6
		WHERE id = $7
	`

	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.Query,
		rule.Priority, rule.Enabled, rule.UpdatedBy, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("rule not found")
	}

	return nil
}

func (r *PostgresRepository) DeleteFilterRule(ctx context.Context, id string) error {
	query := `DELETE FROM filter_rules WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("rule not found")
	}

	return nil
}
