package upstream

import "time"

// WatchRegistration is the mail source's acknowledgement of a push
// notification channel.
type WatchRegistration struct {
	HistoryID int64     `json:"history_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type watchRequest struct {
	TopicName string `json:"topic_name"`
}
