package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
)

// MetricsCollector collects and exposes metrics for the activity categorizer
type MetricsCollector struct {
	config *config.MetricsConfig
	logger *zap.Logger

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Categorization metrics
	categorizationsTotal   *prometheus.CounterVec
	categorizationDuration *prometheus.HistogramVec
	lookupFailuresTotal    prometheus.Counter

	// Cache metrics
	cacheOperationsTotal *prometheus.CounterVec
	cacheHitRate         prometheus.Gauge

	// Batch job metrics
	jobRunsTotal       *prometheus.CounterVec
	jobRunDuration     *prometheus.HistogramVec
	jobLastSuccess     *prometheus.GaugeVec
	suggestionsEmitted *prometheus.CounterVec
	suggestionReviews  *prometheus.CounterVec
	ruleMutationsTotal *prometheus.CounterVec
	classifierDuration prometheus.Histogram

	// Internal state
	mu          sync.RWMutex
	cacheHits   int64
	cacheMisses int64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(cfg *config.MetricsConfig, logger *zap.Logger) *MetricsCollector {
	if !cfg.Enabled {
		logger.Info("metrics collection disabled")
		return &MetricsCollector{
			config: cfg,
			logger: logger,
		}
	}

	histogramBuckets := cfg.HistogramBuckets
	if len(histogramBuckets) == 0 {
		histogramBuckets = []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}
	}

	collector := &MetricsCollector{
		config: cfg,
		logger: logger,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_categorizer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: histogramBuckets,
			},
			[]string{"method", "endpoint"},
		),

		categorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_categorizations_total",
				Help: "Total number of activity categorizations",
			},
			[]string{"category", "step"},
		),

		categorizationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_categorizer_categorization_duration_seconds",
				Help:    "Categorization duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"step"},
		),

		lookupFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "activity_categorizer_lookup_failures_total",
				Help: "Categorizations degraded to neutral because a store lookup failed",
			},
		),

		cacheOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_cache_operations_total",
				Help: "Total number of rule cache operations",
			},
			[]string{"operation", "result"}, // operation: get/evict/purge, result: hit/miss/l2_hit/ok/error
		),

		cacheHitRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "activity_categorizer_cache_hit_rate",
				Help: "Rule cache hit rate in percent",
			},
		),

		jobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_job_runs_total",
				Help: "Total number of batch job runs",
			},
			[]string{"job", "result"},
		),

		jobRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_categorizer_job_run_duration_seconds",
				Help:    "Batch job run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"job"},
		),

		jobLastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "activity_categorizer_job_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run per job",
			},
			[]string{"job"},
		),

		suggestionsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_suggestions_emitted_total",
				Help: "Suggestions written by the batch jobs",
			},
			[]string{"source", "category"},
		),

		suggestionReviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_suggestion_reviews_total",
				Help: "Suggestion review attempts",
			},
			[]string{"action", "result"},
		),

		ruleMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_categorizer_rule_mutations_total",
				Help: "Rule table mutations made through the API",
			},
			[]string{"rule", "operation"},
		),

		classifierDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "activity_categorizer_classifier_request_duration_seconds",
				Help:    "External classifier request duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
		),
	}

	collector.registerMetrics()

	logger.Info("metrics collector initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("path", cfg.Path))

	return collector
}

// registerMetrics registers all metrics with Prometheus
func (m *MetricsCollector) registerMetrics() {
	if !m.config.Enabled {
		return
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,

		m.categorizationsTotal,
		m.categorizationDuration,
		m.lookupFailuresTotal,

		m.cacheOperationsTotal,
		m.cacheHitRate,

		m.jobRunsTotal,
		m.jobRunDuration,
		m.jobLastSuccess,
		m.suggestionsEmitted,
		m.suggestionReviews,
		m.ruleMutationsTotal,
		m.classifierDuration,
	)
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCategorization records one resolver call
func (m *MetricsCollector) RecordCategorization(category, step string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.categorizationsTotal.WithLabelValues(category, step).Inc()
	m.categorizationDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordLookupFailure counts a categorization that degraded on a store error
func (m *MetricsCollector) RecordLookupFailure() {
	if !m.config.Enabled {
		return
	}

	m.lookupFailuresTotal.Inc()
}

// RecordCacheOperation records cache operation metrics
func (m *MetricsCollector) RecordCacheOperation(operation, result string) {
	if !m.config.Enabled {
		return
	}

	m.cacheOperationsTotal.WithLabelValues(operation, result).Inc()

	if operation != "get" {
		return
	}

	m.mu.Lock()
	if result == "miss" {
		m.cacheMisses++
	} else {
		m.cacheHits++
	}
	m.mu.Unlock()

	m.updateCacheHitRate()
}

// RecordJobRun records the outcome of a batch job run
func (m *MetricsCollector) RecordJobRun(job string, err error, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	} else {
		m.jobLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}

	m.jobRunsTotal.WithLabelValues(job, result).Inc()
	m.jobRunDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordSuggestionEmitted counts a suggestion written by a batch job
func (m *MetricsCollector) RecordSuggestionEmitted(source, category string) {
	if !m.config.Enabled {
		return
	}

	m.suggestionsEmitted.WithLabelValues(source, category).Inc()
}

// RecordSuggestionReview records a review attempt and its result
func (m *MetricsCollector) RecordSuggestionReview(action, result string) {
	if !m.config.Enabled {
		return
	}

	m.suggestionReviews.WithLabelValues(action, result).Inc()
}

// RecordRuleMutation counts a create/update/delete on a rule table
func (m *MetricsCollector) RecordRuleMutation(rule, operation string) {
	if !m.config.Enabled {
		return
	}

	m.ruleMutationsTotal.WithLabelValues(rule, operation).Inc()
}

// RecordClassifierRequest records the latency of an external classifier call
func (m *MetricsCollector) RecordClassifierRequest(duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.classifierDuration.Observe(duration.Seconds())
}

// updateCacheHitRate calculates and updates cache hit rate
func (m *MetricsCollector) updateCacheHitRate() {
	m.mu.RLock()
	hits := m.cacheHits
	misses := m.cacheMisses
	m.mu.RUnlock()

	total := hits + misses
	if total > 0 {
		m.cacheHitRate.Set(float64(hits) / float64(total) * 100)
	}
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GetStats returns current metrics statistics
func (m *MetricsCollector) GetStats() map[string]interface{} {
	if !m.config.Enabled {
		return map[string]interface{}{
			"metrics_enabled": false,
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hitRate := 0.0
	if total := m.cacheHits + m.cacheMisses; total > 0 {
		hitRate = float64(m.cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"metrics_enabled": true,
		"cache_hits":      m.cacheHits,
		"cache_misses":    m.cacheMisses,
		"cache_hit_rate":  hitRate,
	}
}
