package cel

// QueryExamples documents the two accepted query forms.
var QueryExamples = map[string]string{
	"search_subject":     `subject:invoice`,
	"search_sender":      `from:billing@example.com`,
	"search_label":       `label:receipts`,
	"search_negation":    `subject:invoice -label:spam`,
	"search_phrase":      `subject:"quarterly report"`,
	"cel_sender_domain":  `from.endsWith("@example.com")`,
	"cel_recipient":      `to.exists(r, r.contains("ops@"))`,
	"cel_header":         `has(headers.list_id) && headers.list_id != ""`,
	"cel_combined":       `subject.contains("invoice") && !("spam" in labels)`,
	"cel_received_after": `received_at > timestamp("2025-01-01T00:00:00Z")`,
}
