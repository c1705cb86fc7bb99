package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sync queue metrics
	OperationsQueued    *prometheus.CounterVec
	OperationsCompleted prometheus.Counter
	OperationsFailed    prometheus.Counter
	OperationsConflict  prometheus.Counter
	OperationRetries    *prometheus.CounterVec
	DrainLatency        prometheus.Histogram
	QueueDepth          prometheus.Gauge

	// Notification metrics
	NotificationsCreated   *prometheus.CounterVec
	NotificationsDelivered *prometheus.CounterVec
	NotificationsDeferred  prometheus.Counter
	ChannelFailures        *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates and registers all application metrics
func New(namespace string) *Metrics {
	return &Metrics{
		OperationsQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_queued_total",
			Help:      "Total number of mutations accepted into the sync queue",
		}, []string{"entity", "priority"}),
		OperationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_completed_total",
			Help:      "Total number of operations applied successfully",
		}),
		OperationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_failed_total",
			Help:      "Total number of operations that exhausted their retries",
		}),
		OperationsConflict: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_conflict_total",
			Help:      "Total number of operations blocked on a conflict",
		}),
		OperationRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_retry_attempts_total",
			Help:      "Total number of retry attempts per entity type",
		}, []string{"entity"}),
		DrainLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Time spent in a single drain pass",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of pending operations",
		}),

		NotificationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"type", "priority"}),
		NotificationsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Total number of notification delivery attempts per channel",
		}, []string{"channel"}),
		NotificationsDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_deferred_total",
			Help:      "Total number of notifications held back by the preference gate",
		}),
		ChannelFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_failures_total",
			Help:      "Total number of delivery channel failures",
		}, []string{"channel"}),

		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// NewUnregistered builds a Metrics set on a private registry, for tests that
// construct more than one instance per process.
func NewUnregistered(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		OperationsQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_queued_total",
			Help:      "Total number of mutations accepted into the sync queue",
		}, []string{"entity", "priority"}),
		OperationsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_completed_total",
			Help:      "Total number of operations applied successfully",
		}),
		OperationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_failed_total",
			Help:      "Total number of operations that exhausted their retries",
		}),
		OperationsConflict: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_conflict_total",
			Help:      "Total number of operations blocked on a conflict",
		}),
		OperationRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_retry_attempts_total",
			Help:      "Total number of retry attempts per entity type",
		}, []string{"entity"}),
		DrainLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Time spent in a single drain pass",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of pending operations",
		}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"type", "priority"}),
		NotificationsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Total number of notification delivery attempts per channel",
		}, []string{"channel"}),
		NotificationsDeferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_deferred_total",
			Help:      "Total number of notifications held back by the preference gate",
		}),
		ChannelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_failures_total",
			Help:      "Total number of delivery channel failures",
		}, []string{"channel"}),
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
