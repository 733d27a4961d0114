package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	AggregateDaily(ctx context.Context, timezone string, since time.Time) ([]DailyStat, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) AggregateDaily(ctx context.Context, timezone string, since time.Time) ([]DailyStat, error) {
	query := `
		SELECT to_char(created_at AT TIME ZONE $1, 'YYYY-MM-DD') AS day,
		       COUNT(*) AS received,
		       COUNT(*) FILTER (WHERE status = 'ok') AS processed_ok,
		       COUNT(*) FILTER (WHERE status = 'error') AS processed_error,
		       MAX(created_at) AS last_event_at
		FROM events
		WHERE created_at >= $2
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.QueryContext(ctx, query, timezone, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer rows.Close()

	var daily []DailyStat
	for rows.Next() {
		var (
			stat        DailyStat
			lastEventAt sql.NullTime
		)
		if err := rows.Scan(
			&stat.Day, &stat.Received,
			&stat.ProcessedOK, &stat.ProcessedError,
			&lastEventAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		if lastEventAt.Valid {
			t := lastEventAt.Time
			stat.LastEventAt = &t
		}
		daily = append(daily, stat)
	}

	return daily, rows.Err()
}
