package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	InsertEvent(ctx context.Context, event *Event) error
	ListRecentEvents(ctx context.Context, limit int) ([]Event, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (id, message_id, filter_id, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.MessageID, event.FilterID,
		event.Status, event.Error, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListRecentEvents(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, message_id, filter_id, status, error, created_at
		FROM events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(
			&event.ID, &event.MessageID, &event.FilterID,
			&event.Status, &event.Error, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
