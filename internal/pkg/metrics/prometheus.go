package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bifrost_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Execution metrics (C1-C8)
	ExecutionsAdmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_executions_admitted_total",
			Help: "Total number of executions admitted",
		},
		[]string{"organization_id", "trigger_type"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_executions_total",
			Help: "Total number of executions by terminal status",
		},
		[]string{"organization_id", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bifrost_execution_duration_seconds",
			Help:    "Execution duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"workflow_id"},
	)

	ExecutionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bifrost_executions_in_progress",
			Help: "Number of executions currently running",
		},
	)

	// Queue / admission metrics (C3, C4)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bifrost_queue_depth",
			Help: "Number of executions currently pending dispatch",
		},
	)

	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_dispatches_total",
			Help: "Total number of broker dispatch attempts",
		},
		[]string{"status"},
	)

	// Worker pool metrics (C5, C6)
	WorkersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bifrost_workers_active",
			Help: "Number of worker slots by state",
		},
		[]string{"state"},
	)

	// Webhook dispatcher metrics (C10)
	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_webhooks_received_total",
			Help: "Total number of inbound webhook events ingested",
		},
		[]string{"event_source_id"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_webhook_deliveries_total",
			Help: "Total number of webhook subscription deliveries attempted",
		},
		[]string{"status"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bifrost_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bifrost_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Rate limiting
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bifrost_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"organization_id", "endpoint"},
	)
)

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records HTTP metrics for every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordExecutionTerminal records a terminal execution outcome, called
// wherever C8 marks a row terminal.
func RecordExecutionTerminal(organizationID, workflowID, status string, durationSeconds float64) {
	ExecutionsTotal.WithLabelValues(organizationID, status).Inc()
	if durationSeconds > 0 {
		ExecutionDuration.WithLabelValues(workflowID).Observe(durationSeconds)
	}
}

// RecordAdmission records an admission attempt's trigger source.
func RecordAdmission(organizationID, triggerType string) {
	ExecutionsAdmittedTotal.WithLabelValues(organizationID, triggerType).Inc()
}

// RecordWebhookReceived records an inbound webhook ingestion.
func RecordWebhookReceived(eventSourceID string) {
	WebhooksReceivedTotal.WithLabelValues(eventSourceID).Inc()
}

// RecordRateLimitHit records rate limit hits.
func RecordRateLimitHit(organizationID, endpoint string) {
	RateLimitHitsTotal.WithLabelValues(organizationID, endpoint).Inc()
}

// UpdateQueueDepth updates the queue depth gauge.
func UpdateQueueDepth(depth int64) {
	QueueDepth.Set(float64(depth))
}
