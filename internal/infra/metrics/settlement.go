package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		notificationsTotal,
		creditsGrantedTotal,
		reconciliationFlagsTotal,
		settlementDuration,
	)
}

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_notifications_total",
			Help: "Transfer notifications by outcome (settled/duplicate/ignored/...).",
		},
		[]string{"outcome"},
	)

	creditsGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_credits_granted_total",
			Help: "Credits added to wallets by settlement, by payment kind.",
		},
		[]string{"type"},
	)

	reconciliationFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconciliation_flags_total",
			Help: "Notifications routed to manual reconciliation, by reason.",
		},
		[]string{"reason"},
	)

	settlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_duration_seconds",
			Help:    "Webhook handling latency by outcome.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)
)

func ObserveSettlement(outcome string, d time.Duration) {
	notificationsTotal.WithLabelValues(norm(outcome)).Inc()
	settlementDuration.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

func AddCreditsGranted(kind string, credits int64) {
	if credits <= 0 {
		return
	}
	creditsGrantedTotal.WithLabelValues(norm(kind)).Add(float64(credits))
}

func IncReconciliationFlag(reason string) {
	reconciliationFlagsTotal.WithLabelValues(norm(reason)).Inc()
}
