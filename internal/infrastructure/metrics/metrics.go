package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sensorhub"

// Metrics holds the Prometheus counters and histograms for ingestion and
// queries.
//
// All recording methods are safe to call on a nil *Metrics, so components
// built without metrics need no special casing.
type Metrics struct {
	// Ingestion.
	IngestRequests       *prometheus.CounterVec // labels: format={csv,json}, outcome={success,malformed,too_large,error}
	RecordsSkipped       *prometheus.CounterVec // labels: reason
	MeasurementsInserted prometheus.Counter
	DuplicatesSkipped    prometheus.Counter
	BatchFlushes         prometheus.Counter
	BatchSize            prometheus.Histogram
	IngestDuration       prometheus.Histogram

	// Reads.
	QueryRequests *prometheus.CounterVec // labels: operation={devices,categories,series}, outcome={success,error}

	// Side effects.
	AlertsPublished    *prometheus.CounterVec   // labels: outcome={published,failed}
	MirroredPoints     prometheus.Counter
	HTTPRequestLatency *prometheus.HistogramVec // labels: method, route, status
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates all metrics and registers them with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_requests_total",
			Help:      "Ingest calls by payload format and outcome.",
		}, []string{"format", "outcome"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Rows, objects or cells dropped by the parser, by reason.",
		}, []string{"reason"}),
		MeasurementsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_inserted_total",
			Help:      "Measurements written to the store.",
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Measurements not written because their key already existed.",
		}),
		BatchFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_flushes_total",
			Help:      "Bulk inserts issued by the batch writer.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Measurements per bulk insert.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 2500, 5000, 10000},
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete ingest call, parse to commit.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		QueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_requests_total",
			Help:      "Query service calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert notifications by publish outcome.",
		}, []string{"outcome"}),
		MirroredPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirrored_points_total",
			Help:      "Measurements queued to the InfluxDB mirror.",
		}),
		HTTPRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.IngestRequests,
		m.RecordsSkipped,
		m.MeasurementsInserted,
		m.DuplicatesSkipped,
		m.BatchFlushes,
		m.BatchSize,
		m.IngestDuration,
		m.QueryRequests,
		m.AlertsPublished,
		m.MirroredPoints,
		m.HTTPRequestLatency,
	)

	return m
}

// RecordSkip counts one record dropped by the parser.
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(reason).Inc()
}

// RecordFlush counts one bulk insert of size measurements.
func (m *Metrics) RecordFlush(size int) {
	if m == nil {
		return
	}
	m.BatchFlushes.Inc()
	m.BatchSize.Observe(float64(size))
}

// RecordIngest records the outcome of an ingest call.
func (m *Metrics) RecordIngest(format, outcome string) {
	if m == nil {
		return
	}
	m.IngestRequests.WithLabelValues(format, outcome).Inc()
}

// RecordWrite records the totals of a committed ingest call.
func (m *Metrics) RecordWrite(inserted int64, duplicates int, took time.Duration) {
	if m == nil {
		return
	}
	m.MeasurementsInserted.Add(float64(inserted))
	m.DuplicatesSkipped.Add(float64(duplicates))
	m.IngestDuration.Observe(took.Seconds())
}

// RecordQuery records the outcome of a query operation.
func (m *Metrics) RecordQuery(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.QueryRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordAlert records an alert publish attempt.
func (m *Metrics) RecordAlert(err error) {
	if m == nil {
		return
	}
	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	m.AlertsPublished.WithLabelValues(outcome).Inc()
}

// RecordMirrored counts measurements handed to the InfluxDB mirror.
func (m *Metrics) RecordMirrored(n int) {
	if m == nil {
		return
	}
	m.MirroredPoints.Add(float64(n))
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestLatency.WithLabelValues(method, route, status).Observe(took.Seconds())
}
