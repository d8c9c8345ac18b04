// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payrank"

// Settlement and refund outcomes.
const (
	OutcomeSettled   = "settled"
	OutcomeDuplicate = "duplicate"
	OutcomeRefunded  = "refunded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeConflict  = "conflict"
)

type Metrics struct {
	Settlements          *prometheus.CounterVec
	Refunds              *prometheus.CounterVec
	SettlementDuration   prometheus.Histogram
	SettlementRetries    prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
	NotificationsFailed  prometheus.Counter
	NotificationsDropped prometheus.Counter
	StreamSubscribers    prometheus.Gauge
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement attempts by outcome.",
		}, []string{"outcome"}),
		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by outcome.",
		}, []string{"outcome"}),
		SettlementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Time spent settling a payment, retries included.",
			Buckets:   prometheus.DefBuckets,
		}),
		SettlementRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_retries_total",
			Help:      "Settlement transactions retried after a concurrent modification.",
		}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Events published by type.",
		}, []string{"type"}),
		NotificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Events that could not be published.",
		}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Events dropped for slow stream subscribers.",
		}),
		StreamSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Connected live stream subscribers.",
		}),
	}
}
