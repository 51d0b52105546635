package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics contains all HTTP-related metrics
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
}

// IngestionMetrics contains metrics for the collection pipeline.
type IngestionMetrics struct {
	ProductsUpserted   *prometheus.CounterVec
	RecordsFailed      *prometheus.CounterVec
	JobsStarted        *prometheus.CounterVec
	JobsCompleted      *prometheus.CounterVec
	JobsFailed         *prometheus.CounterVec
	JobsSkippedRunning *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	DuplicateGroups    prometheus.Gauge
	HTTPRetries        *prometheus.CounterVec
	RateLimitPauses    *prometheus.CounterVec
}

// DatabaseMetrics contains all database-related metrics
type DatabaseMetrics struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	ConnectionsOpen prometheus.Gauge
	ConnectionsIdle prometheus.Gauge
}

// CacheMetrics contains all cache-related metrics
type CacheMetrics struct {
	HitsTotal   prometheus.Counter
	MissesTotal prometheus.Counter
	ErrorsTotal prometheus.Counter
	Latency     prometheus.Histogram
}

var (
	// HTTP is the singleton instance for HTTP metrics
	HTTP *HTTPMetrics

	// Ingestion is the singleton instance for collection pipeline metrics
	Ingestion *IngestionMetrics

	// Database is the singleton instance for database metrics
	Database *DatabaseMetrics

	// Cache is the singleton instance for cache metrics
	Cache *CacheMetrics
)

// Init initializes all metrics
func Init(namespace string) {
	HTTP = initHTTPMetrics(namespace)
	Ingestion = initIngestionMetrics(namespace)
	Database = initDatabaseMetrics(namespace)
	Cache = initCacheMetrics(namespace)
}

func initHTTPMetrics(namespace string) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 7), // 100 bytes to 100MB
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path"},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_errors_total",
				Help:      "Total number of HTTP errors",
			},
			[]string{"method", "path", "error_type"},
		),
	}
}

func initIngestionMetrics(namespace string) *IngestionMetrics {
	return &IngestionMetrics{
		ProductsUpserted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "products_upserted_total",
				Help:      "Total canonical products inserted or updated",
			},
			[]string{"supplier_tag", "op"}, // op = insert|update
		),
		RecordsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_failed_total",
				Help:      "Total raw records that failed normalization or persistence",
			},
			[]string{"supplier_tag", "stage"}, // stage = normalize|persist
		),
		JobsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_jobs_started_total",
				Help:      "Total collection jobs started",
			},
			[]string{"supplier_tag", "mode"},
		),
		JobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_jobs_completed_total",
				Help:      "Total collection jobs that reached Completed",
			},
			[]string{"supplier_tag"},
		),
		JobsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_jobs_failed_total",
				Help:      "Total collection jobs that reached Failed",
			},
			[]string{"supplier_tag"},
		),
		JobsSkippedRunning: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_jobs_skipped_total",
				Help:      "Total scheduled triggers skipped due to single-flight",
			},
			[]string{"supplier_tag"},
		),
		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collection_job_duration_seconds",
				Help:      "Collection job wall-clock duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 180, 600, 1800, 3600},
			},
			[]string{"supplier_tag"},
		),
		DuplicateGroups: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duplicate_groups",
			Help:      "Number of duplicate groups after the last recomputation",
		}),
		HTTPRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_client_retries_total",
				Help:      "Total retries issued by the rate-limited HTTP client",
			},
			[]string{"host"},
		),
		RateLimitPauses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_client_rate_limit_pauses_total",
				Help:      "Total times the token bucket was paused by a 429 or supplier signal",
			},
			[]string{"host"},
		),
	}
}

func initDatabaseMetrics(namespace string) *DatabaseMetrics {
	return &DatabaseMetrics{
		QueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "database_query_duration_seconds",
				Help:      "Database query latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		ConnectionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_open",
			Help:      "Number of open database connections",
		}),
		ConnectionsIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_idle",
			Help:      "Number of idle database connections",
		}),
	}
}

func initCacheMetrics(namespace string) *CacheMetrics {
	return &CacheMetrics{
		HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Total number of cache errors",
		}),
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_latency_seconds",
			Help:      "Cache operation latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

// RecordHTTPRequest records an HTTP request with all its metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int64) {
	if HTTP == nil {
		return
	}

	HTTP.RequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	HTTP.RequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	HTTP.ResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordHTTPError records an HTTP error
func RecordHTTPError(method, path, errorType string) {
	if HTTP == nil {
		return
	}
	HTTP.ErrorsTotal.WithLabelValues(method, path, errorType).Inc()
}

// RecordHTTPRetry records one retried outbound request to a supplier host.
func RecordHTTPRetry(host string) {
	if Ingestion == nil {
		return
	}
	Ingestion.HTTPRetries.WithLabelValues(host).Inc()
}

// RecordRateLimitPause records one 429-triggered pause for a supplier host.
func RecordRateLimitPause(host string) {
	if Ingestion == nil {
		return
	}
	Ingestion.RateLimitPauses.WithLabelValues(host).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(operation, table string, duration time.Duration) {
	if Database == nil {
		return
	}
	Database.QueriesTotal.WithLabelValues(operation, table).Inc()
	Database.QueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(open, idle int) {
	if Database == nil {
		return
	}
	Database.ConnectionsOpen.Set(float64(open))
	Database.ConnectionsIdle.Set(float64(idle))
}