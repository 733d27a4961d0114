package stats

import "time"

// DailyStat aggregates ledger events for one calendar day in the
// reporting timezone. Days with no events are present with zero counts.
type DailyStat struct {
	Day            string     `json:"day"`
	Received       int64      `json:"received"`
	ProcessedOK    int64      `json:"processed_ok"`
	ProcessedError int64      `json:"processed_error"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
}
