package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_appended_total",
			Help: "Total number of events appended to the ledger (count)",
		},
		[]string{"status"},
	)

	LedgerAppendRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_append_retries_total",
			Help: "Total number of retried ledger appends (count)",
		},
	)

	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of message evaluations against the rule snapshot (count)",
		},
		[]string{"result"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rule_evaluation_duration_ms",
			Help:    "Duration of a full message evaluation in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"result"},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "evaluator_active_rules",
			Help: "Number of enabled rules in the current snapshot (count)",
		},
	)

	ActionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "action_runs_total",
			Help: "Total number of maintenance action runs (count)",
		},
		[]string{"action", "status"},
	)

	RuleMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_mutations_total",
			Help: "Total number of rule store mutations (count)",
		},
		[]string{"action"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests to the upstream mail source (count)",
		},
		[]string{"operation", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_ms",
			Help:    "Duration of upstream mail source requests in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from the broker (count)",
		},
		[]string{"service", "topic"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to the broker (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to the dead letter queue (count)",
		},
		[]string{"service", "topic", "reason"},
	)
)

func RegisterAdminMetrics() {
	prometheus.MustRegister(RuleMutationsTotal)
	prometheus.MustRegister(ActionRunsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamRequestDuration)
	prometheus.MustRegister(CircuitBreakerState)
	registerSharedOnce()
}

func RegisterIngestMetrics() {
	prometheus.MustRegister(BrokerMessagesReadTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	registerSharedOnce()
}

func registerSharedOnce() {
	prometheus.MustRegister(EventsAppendedTotal)
	prometheus.MustRegister(LedgerAppendRetriesTotal)
	prometheus.MustRegister(RuleEvaluationsTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(ActiveRules)
	prometheus.MustRegister(BrokerMessagesWrittenTotal)
}

func ObserveEvaluationDuration(duration time.Duration, result string) {
	EvaluationDuration.WithLabelValues(result).Observe(float64(duration.Milliseconds()))
}

func ObserveUpstreamDuration(operation string, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func SetActiveRules(count int) {
	ActiveRules.Set(float64(count))
}
