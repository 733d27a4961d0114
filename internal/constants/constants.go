package constants

import "time"

const (
	// HTTP defaults for the admin surface.
	DefaultEventLimit = 50
	MaxEventLimit     = 1000

	DefaultStatsWindowDays = 7
	MaxStatsWindowDays     = 90

	AdminUserHeader  = "X-Admin-User"
	DefaultAdminUser = "system"

	// Kafka topics.
	MailMessagesTopic = "mail-messages"
	RuleUpdatesTopic  = "filter-rule-updates"

	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second

	// Action names accepted by the dispatcher.
	ActionRenewWatch = "renew-watch"
	ActionResync     = "resync"

	// Message ids recorded on the ledger for maintenance action outcomes.
	RenewWatchMessageID = "renew-watch"
	ResyncMessageID     = "resync"

	DefaultActionCooldown   = 30 * time.Second
	DefaultActionTimeout    = 5 * time.Minute
	DefaultResyncWindow     = 24 * time.Hour
	ResyncGuardTTL          = 48 * time.Hour
	DefaultUpstreamTimeout  = 15 * time.Second
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultRuleReloadPeriod = 30 * time.Second

	DefaultReportingTimezone = "UTC"
)
