package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges for the settlement and webhook pipeline.
var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_jobs_processed_total",
		Help: "Background jobs processed, by kind and result.",
	}, []string{"kind", "result"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhook_deliveries_total",
		Help: "Webhook delivery attempts, by outcome.",
	}, []string{"outcome"})

	PaymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payments_settled_total",
		Help: "Payments resolved to a terminal state, by status.",
	}, []string{"status"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_queue_depth",
		Help: "Current work queue depth, by bucket.",
	}, []string{"bucket"})
)
