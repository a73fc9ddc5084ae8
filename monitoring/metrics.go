package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_attempts_created_total",
			Help: "Payment attempts opened, per event",
		},
		[]string{"event_id"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Terminal payment transitions by outcome",
		},
		[]string{"outcome", "reason"},
	)

	oversellRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oversell_rejections_total",
			Help: "Commits rejected by the authoritative capacity check",
		},
		[]string{"event_id"},
	)

	ticketsSold = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_sold_total",
			Help: "Tickets credited to the ledger, per event",
		},
		[]string{"event_id"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook deliveries by type and handling result",
		},
		[]string{"type", "result"},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Latency of outbound payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation"},
	)
)

func TrackAttemptCreated(eventID string) {
	attemptsCreated.WithLabelValues(eventID).Inc()
}

func TrackSettlement(outcome, reason string) {
	settlements.WithLabelValues(outcome, reason).Inc()
}

func TrackOversellRejection(eventID string) {
	oversellRejections.WithLabelValues(eventID).Inc()
}

func TrackTicketsSold(eventID string, quantity int) {
	ticketsSold.WithLabelValues(eventID).Add(float64(quantity))
}

func TrackWebhookEvent(eventType, result string) {
	webhookEvents.WithLabelValues(eventType, result).Inc()
}

func ObserveGatewayCall(operation string, d time.Duration) {
	gatewayCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}
