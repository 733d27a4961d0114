package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WatchStatus is the singleton record of the last successful watch
// renewal against the mail source.
type WatchStatus struct {
	HistoryID int64      `json:"history_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RenewedAt time.Time  `json:"renewed_at"`
}

type WatchRepository interface {
	SaveWatchStatus(ctx context.Context, status WatchStatus) error
	GetWatchStatus(ctx context.Context) (*WatchStatus, error)
}

type PostgresWatchRepository struct {
	db *sql.DB
}

func NewWatchRepository(db *sql.DB) WatchRepository {
	return &PostgresWatchRepository{db: db}
}

func (r *PostgresWatchRepository) SaveWatchStatus(ctx context.Context, status WatchStatus) error {
	query := `
		INSERT INTO watch_status (id, history_id, expires_at, renewed_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET history_id = EXCLUDED.history_id,
		    expires_at = EXCLUDED.expires_at,
		    renewed_at = EXCLUDED.renewed_at
	`

	_, err := r.db.ExecContext(ctx, query, status.HistoryID, status.ExpiresAt, status.RenewedAt)
	if err != nil {
		return fmt.Errorf("failed to save watch status: %w", err)
	}
	return nil
}

func (r *PostgresWatchRepository) GetWatchStatus(ctx context.Context) (*WatchStatus, error) {
	query := `SELECT history_id, expires_at, renewed_at FROM watch_status WHERE id = 1`

	var status WatchStatus
	err := r.db.QueryRowContext(ctx, query).Scan(&status.HistoryID, &status.ExpiresAt, &status.RenewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watch status: %w", err)
	}
	return &status, nil
}
