package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	broadcastOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_broadcast_recipients_total",
			Help: "Broadcast recipients by outcome (delivered/blocked/deactivated/failed/aborted).",
		},
		[]string{"outcome"},
	)

	broadcastRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subgate_broadcast_rate_limited_total",
			Help: "Deliveries that hit a Telegram flood wait.",
		},
	)

	broadcastJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_broadcast_jobs_total",
			Help: "Broadcast jobs by result (completed/aborted).",
		},
		[]string{"result"},
	)

	subscriptionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_subscription_checks_total",
			Help: "Force-subscribe checks by result (subscribed/not_subscribed/error).",
		},
		[]string{"result"},
	)

	commandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgate_commands_total",
			Help: "Handled bot commands.",
		},
		[]string{"command"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			broadcastOutcomes, broadcastRateLimited, broadcastJobs,
			subscriptionChecks, commandsHandled,
		)
	})
}

// -------- Broadcast helpers --------

func IncBroadcastOutcome(outcome string) {
	broadcastOutcomes.WithLabelValues(outcome).Inc()
}

func IncBroadcastRateLimited() {
	broadcastRateLimited.Inc()
}

func IncBroadcastJob(result string) {
	broadcastJobs.WithLabelValues(result).Inc()
}

// -------- Bot helpers --------

func IncSubscriptionCheck(result string) {
	subscriptionChecks.WithLabelValues(result).Inc()
}

func IncCommand(command string) {
	commandsHandled.WithLabelValues(command).Inc()
}
