package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec
	throttleWaitDuration       prometheus.Histogram

	// Ingestion Metrics
	signaturesDiscoveredTotal *prometheus.CounterVec
	transactionsCachedTotal   *prometheus.CounterVec
	cacheLookupsTotal         *prometheus.CounterVec
	pipelinePhaseDuration     *prometheus.HistogramVec

	// Classification Metrics
	transactionsClassifiedTotal *prometheus.CounterVec
	recordsExportedTotal        *prometheus.CounterVec

	// Workflow Metrics
	syncWorkflowDuration        *prometheus.HistogramVec
	syncWorkflowExecutionsTotal *prometheus.CounterVec
	syncActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),
		throttleWaitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_throttle_wait_seconds",
				Help:    "Time spent waiting on the shared request throttle",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 11, 30},
			},
		),

		// Ingestion Metrics
		signaturesDiscoveredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signatures_discovered_total",
				Help: "Total number of signatures returned by discovery",
			},
			[]string{"stream"},
		),
		transactionsCachedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_cached_total",
				Help: "Total number of transactions fetched and written to the cache",
			},
			[]string{"stream"},
		),
		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_cache_lookups_total",
				Help: "Total number of cache existence checks by result",
			},
			[]string{"stream", "result"},
		),
		pipelinePhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_phase_duration_seconds",
				Help:    "Duration of ingestion pipeline phases in seconds",
				Buckets: []float64{0.1, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"stream", "phase"},
		),

		// Classification Metrics
		transactionsClassifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_classified_total",
				Help: "Total number of transactions classified by outcome",
			},
			[]string{"stream", "kind", "outcome"},
		),
		recordsExportedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_exported_total",
				Help: "Total number of records handed to an export sink",
			},
			[]string{"stream", "sink"},
		),

		// Workflow Metrics
		syncWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_workflow_duration_seconds",
				Help:    "Duration of stream sync workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"stream", "status"},
		),
		syncWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_workflow_executions_total",
				Help: "Total number of stream sync workflow executions",
			},
			[]string{"stream", "status"},
		),
		syncActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_activity_duration_seconds",
				Help:    "Duration of stream sync activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity", "stream"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// RecordThrottleWait records time spent blocked on the shared throttle.
func (m *Metrics) RecordThrottleWait(duration float64) {
	m.throttleWaitDuration.Observe(duration)
}

// Ingestion metric helpers

// RecordSignaturesDiscovered records the size of a completed discovery.
func (m *Metrics) RecordSignaturesDiscovered(stream string, count int) {
	m.signaturesDiscoveredTotal.WithLabelValues(stream).Add(float64(count))
}

// RecordTransactionCached records one fetched-and-cached transaction.
func (m *Metrics) RecordTransactionCached(stream string) {
	m.transactionsCachedTotal.WithLabelValues(stream).Inc()
}

// RecordCacheLookup records a cache existence check ("hit" or "miss").
func (m *Metrics) RecordCacheLookup(stream, result string) {
	m.cacheLookupsTotal.WithLabelValues(stream, result).Inc()
}

// RecordPhaseDuration records how long a pipeline phase took.
func (m *Metrics) RecordPhaseDuration(stream, phase string, duration float64) {
	m.pipelinePhaseDuration.WithLabelValues(stream, phase).Observe(duration)
}

// Classification metric helpers

// RecordClassified records one classification outcome.
func (m *Metrics) RecordClassified(stream, kind, outcome string) {
	m.transactionsClassifiedTotal.WithLabelValues(stream, kind, outcome).Inc()
}

// RecordRecordsExported records records handed to a sink.
func (m *Metrics) RecordRecordsExported(stream, sink string, count int) {
	m.recordsExportedTotal.WithLabelValues(stream, sink).Add(float64(count))
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(stream, status string, duration float64) {
	m.syncWorkflowDuration.WithLabelValues(stream, status).Observe(duration)
	m.syncWorkflowExecutionsTotal.WithLabelValues(stream, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, stream string, duration float64) {
	m.syncActivityDuration.WithLabelValues(activity, stream).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
