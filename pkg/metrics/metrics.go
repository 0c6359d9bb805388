package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Webhook delivery metrics
	WebhookDeliveries        *prometheus.CounterVec
	WebhookDeliveryLatency   *prometheus.HistogramVec
	WebhookRetriesScheduled  prometheus.Counter
	WebhookEndpointsDisabled prometheus.Counter
	WebhookQueueDepth        prometheus.Gauge

	// Retry worker metrics
	RetriesClaimed   prometheus.Counter
	RetryPollLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		WebhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total webhook delivery attempts by event type and outcome",
		}, []string{"event_type", "status"}),
		WebhookDeliveryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_duration_seconds",
			Help:      "Duration of webhook HTTP delivery attempts",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"event_type"}),
		WebhookRetriesScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_retries_scheduled_total",
			Help:      "Total webhook delivery retries scheduled",
		}),
		WebhookEndpointsDisabled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_endpoints_disabled_total",
			Help:      "Total endpoints auto-disabled by the failure threshold",
		}),
		WebhookQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_queue_depth",
			Help:      "Current number of deliveries waiting in the dispatch queue",
		}),
		RetriesClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_retries_claimed_total",
			Help:      "Total due retries claimed by the worker",
		}),
		RetryPollLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_retry_poll_duration_seconds",
			Help:      "Time spent per retry poll cycle",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// New creates an unregistered metrics set for tests, where promauto's
// default-registry registration would collide across packages.
func New(namespace string) *Metrics {
	return &Metrics{
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total webhook delivery attempts by event type and outcome",
		}, []string{"event_type", "status"}),
		WebhookDeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_duration_seconds",
			Help:      "Duration of webhook HTTP delivery attempts",
		}, []string{"event_type"}),
		WebhookRetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_retries_scheduled_total",
			Help:      "Total webhook delivery retries scheduled",
		}),
		WebhookEndpointsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_endpoints_disabled_total",
			Help:      "Total endpoints auto-disabled by the failure threshold",
		}),
		WebhookQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_queue_depth",
			Help:      "Current number of deliveries waiting in the dispatch queue",
		}),
		RetriesClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_retries_claimed_total",
			Help:      "Total due retries claimed by the worker",
		}),
		RetryPollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_retry_poll_duration_seconds",
			Help:      "Time spent per retry poll cycle",
		}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
