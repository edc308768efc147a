package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_requests_total",
		Help: "Total number of processor webhook deliveries by event type and response status",
	}, []string{"event_type", "status"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Latency of processor webhook handling",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})

	EventsHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_handled_total",
		Help: "Total number of processor events routed to a handler",
	}, []string{"event_type", "result"})

	EventsIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_ignored_total",
		Help: "Total number of acknowledged events with no registered handler",
	}, []string{"event_type"})

	DuplicateEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicate_events_total",
		Help: "Total number of redelivered events that were already processed",
	})

	SilentSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_silent_skips_total",
		Help: "Total number of events acknowledged without writes because correlation data was missing",
	}, []string{"event_type", "reason"})

	RefundsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_refunds_applied_total",
		Help: "Total number of refund amounts accumulated onto bookings",
	})

	BestEffortFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_best_effort_failures_total",
		Help: "Total number of failed secondary writes that were logged and not retried",
	}, []string{"operation"})

	ProcessorLookupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processor_lookup_failures_total",
		Help: "Total number of failed reads against the payment processor API",
	}, []string{"operation"})

	ProcessorLookupLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "processor_lookup_latency_seconds",
		Help:    "Latency of payment processor API reads",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
