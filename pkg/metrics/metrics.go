package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AlertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_dispatched_total",
			Help: "Total number of alert jobs enqueued (count)",
		},
		[]string{"queue", "status"},
	)

	AlertsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_received_total",
			Help: "Total number of alert jobs picked up by listeners (count)",
		},
		[]string{"category", "severity"},
	)

	AlertOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_outcomes_total",
			Help: "Total number of handled alerts by outcome (count)",
		},
		[]string{"status", "category", "severity"},
	)

	AlertDeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_delivery_attempts_total",
			Help: "Total number of fanout attempts (count)",
		},
		[]string{"severity", "status"},
	)

	AlertEscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_escalations_total",
			Help: "Total number of escalations after terminal delivery failure (count)",
		},
		[]string{"status"},
	)

	AlertProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_processing_duration_ms",
			Help:    "Time from job pickup to outcome in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000, 120000, 600000},
		},
		[]string{"status"},
	)

	RateLimitChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_rate_limit_checks_total",
			Help: "Total number of alert rate-limit checks (count)",
		},
		[]string{"status"},
	)

	RateLimitStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_rate_limit_store_duration_ms",
			Help:    "Duration of rate-limit store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"operation", "status"},
	)

	RateLimitOpenWindows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_rate_limit_open_windows",
			Help: "Number of rate-limit windows currently open in the store",
		},
	)

	NotificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of persisted in-app notifications (count)",
		},
		[]string{"type"},
	)

	EmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_emails_total",
			Help: "Total number of alert email sends by provider (count)",
		},
		[]string{"provider", "status"},
	)

	EmailsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_emails_skipped_total",
			Help: "Total number of alert emails skipped by the preference gate (count)",
		},
		[]string{"reason"},
	)

	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_broadcasts_total",
			Help: "Total number of realtime broadcast publishes (count)",
		},
		[]string{"channel", "status"},
	)

	ObserverEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_events_total",
			Help: "Total number of domain lifecycle events inspected by observers (count)",
		},
		[]string{"observer", "result"},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Number of connected websocket clients (count)",
		},
	)

	RealtimeMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_total",
			Help: "Total number of broadcast messages forwarded to websocket clients (count)",
		},
		[]string{"channel"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of HTTP requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	MessageQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current number of jobs buffered in an in-memory queue (count)",
		},
		[]string{"queue"},
	)

	MessageQueueWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_queue_wait_duration_ms",
			Help:    "Duration jobs wait in queue before processing in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"queue"},
	)
)

// register tolerates collectors shared by several registration groups.
func register(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
}

func RegisterWorkerMetrics() {
	register(
		AlertsReceivedTotal,
		AlertOutcomesTotal,
		AlertDeliveryAttemptsTotal,
		AlertEscalationsTotal,
		AlertProcessingDuration,
		RateLimitChecksTotal,
		RateLimitStoreDuration,
		RateLimitOpenWindows,
		NotificationsCreatedTotal,
		EmailsTotal,
		EmailsSkippedTotal,
		BroadcastsTotal,
		FallbackUsageTotal,
	)
	registerDispatchMetrics()
	registerDatabaseMetrics()
}

func RegisterNotificationServiceMetrics() {
	register(
		RateLimitRequestsTotal,
		RealtimeConnections,
		RealtimeMessagesTotal,
	)
	registerDispatchMetrics()
	registerDatabaseMetrics()
}

func registerDispatchMetrics() {
	register(AlertsDispatchedTotal, ObserverEventsTotal)
}

func registerDatabaseMetrics() {
	register(DatabaseQueriesTotal, DatabaseQueryDuration)
}

func RegisterBrokerMetrics() {
	register(
		RetryAttemptsTotal,
		DLQMessagesTotal,
		KafkaMessagesReadTotal,
		KafkaMessagesWrittenTotal,
		KafkaWriteDuration,
		MessageQueueSize,
		MessageQueueWaitDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	register(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func ObserveAlertProcessingDuration(duration time.Duration, status string) {
	AlertProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveRateLimitStoreDuration(operation, status string, duration time.Duration) {
	RateLimitStoreDuration.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func SetMessageQueueSize(queue string, size int) {
	MessageQueueSize.WithLabelValues(queue).Set(float64(size))
}

func ObserveMessageQueueWaitDuration(queue string, duration time.Duration) {
	MessageQueueWaitDuration.WithLabelValues(queue).Observe(float64(duration.Milliseconds()))
}

// StatusLabel maps an error to the "success"/"error" label pair used by
// store and transport metrics.
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
