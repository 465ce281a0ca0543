// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCs counts handled RPCs by procedure and Connect code.
	RPCs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tableside",
		Name:      "rpc_requests_total",
		Help:      "RPCs handled, by procedure and result code.",
	}, []string{"procedure", "code"})

	// Payments counts ledger entries appended, by method.
	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tableside",
		Name:      "payments_total",
		Help:      "Ledger entries appended, by payment method.",
	}, []string{"method"})

	// PaymentAmount accumulates the amount appended to ledgers, by method.
	PaymentAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tableside",
		Name:      "payment_amount_total",
		Help:      "Sum of ledger entry amounts, by payment method.",
	}, []string{"method"})

	// OrderTransitions counts order status changes by target status.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tableside",
		Name:      "order_transitions_total",
		Help:      "Order status changes, by new status.",
	}, []string{"status"})

	// ConflictRetries counts internal re-read-and-reapply attempts.
	ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tableside",
		Name:      "conflict_retries_total",
		Help:      "Mutations re-applied after a concurrent modification.",
	})

	// FeedEvents counts change events published, by entity.
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tableside",
		Name:      "feed_events_total",
		Help:      "Change events published, by entity.",
	}, []string{"entity"})

	// FeedSubscribers is the number of live feed subscriptions.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tableside",
		Name:      "feed_subscribers",
		Help:      "Live change feed subscriptions.",
	})
)
