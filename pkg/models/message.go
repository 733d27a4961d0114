package models

import "time"

// MailMessage is the inbound message envelope carried on the broker and
// returned by the upstream mail source. Only queryable attributes travel
// here; message bodies stay upstream.
type MailMessage struct {
	ID         string            `json:"id"`
	From       string            `json:"from"`
	To         []string          `json:"to,omitempty"`
	Subject    string            `json:"subject"`
	Labels     []string          `json:"labels,omitempty"`
	Snippet    string            `json:"snippet,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}
