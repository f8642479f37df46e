package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger metrics
	LedgerPostings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_ledger_postings_total",
			Help: "Total number of balance mutations committed",
		},
		[]string{"kind"},
	)

	CreditsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_credits_consumed_total",
			Help: "Total credits debited for chat usage",
		},
		[]string{"model"},
	)

	// Billing pipeline metrics
	BillingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_billing_events_total",
			Help: "Total billing events processed",
		},
		[]string{"kind", "status"}, // status: billed, duplicate, dead_lettered
	)

	BillingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatledger_billing_queue_depth",
			Help: "Billing events waiting for a worker",
		},
	)

	BillingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatledger_billing_duration_seconds",
			Help:    "Time spent persisting one billing event",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"kind"},
	)

	// AI collaborator metrics
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_ai_requests_total",
			Help: "Total AI completion requests",
		},
		[]string{"model", "status"},
	)

	AITokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_ai_tokens_total",
			Help: "Total tokens reported by the AI collaborator",
		},
		[]string{"model", "type"}, // type: prompt/completion
	)

	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatledger_ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"model"},
	)

	// Chat surface metrics
	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_commands_total",
			Help: "Total chat commands handled",
		},
		[]string{"command", "status"},
	)

	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatledger_conversations_open",
			Help: "Conversations opened minus conversations closed by this process",
		},
	)

	RewardGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatledger_reward_grants_total",
			Help: "Total scheduled reward grants",
		},
		[]string{"plan", "status"},
	)
)
