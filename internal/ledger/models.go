package ledger

import "time"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Event is one append-only ledger entry describing the outcome of
// processing a single message (or a maintenance action).
type Event struct {
	ID        string    `json:"id" db:"id"`
	MessageID string    `json:"message_id" db:"message_id"`
	FilterID  *string   `json:"filter_id,omitempty" db:"filter_id"`
	Status    string    `json:"status" db:"status"`
	Error     string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
