package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore and merge operations
type DatastoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	rowsTotal         *prometheus.CounterVec
	mergeRowsTotal    *prometheus.CounterVec
	mergeDuration     prometheus.Histogram
	storesOpen        prometheus.Gauge

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates the collectors and registers them on registry.
func NewDatastoreMetrics(registry prometheus.Registerer) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_datastore_operations_total",
			Help: "Total number of datastore operations",
		},
		[]string{"operation", "table", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aoi_datastore_operation_duration_seconds",
			Help:    "Time taken for datastore operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation", "table"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_datastore_errors_total",
			Help: "Total number of datastore operation errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	m.rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_datastore_rows_affected_total",
			Help: "Rows written or removed by datastore operations",
		},
		[]string{"operation", "table"},
	)

	m.mergeRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_merge_rows_total",
			Help: "Rows applied to the target store by merges",
		},
		[]string{"table", "action"},
	)

	m.mergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aoi_merge_duration_seconds",
		Help:    "Time taken for a complete merge",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
	})

	m.storesOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aoi_datastore_stores_open",
		Help: "Number of store handles currently open",
	})

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.rowsTotal,
		m.mergeRowsTotal,
		m.mergeDuration,
		m.storesOpen,
	}
}

// Describe implements prometheus.Collector
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation counts one finished operation and observes its duration.
func (m *DatastoreMetrics) RecordOperation(operation, table, status string, seconds float64) {
	m.operationsTotal.WithLabelValues(operation, table, status).Inc()
	m.operationDuration.WithLabelValues(operation, table).Observe(seconds)
}

// RecordError counts a failed operation by error type.
func (m *DatastoreMetrics) RecordError(operation, table, errorType string) {
	m.errorsTotal.WithLabelValues(operation, table, errorType).Inc()
}

// RecordRows adds rows written or removed by an operation.
func (m *DatastoreMetrics) RecordRows(operation, table string, rows int64) {
	if rows <= 0 {
		return
	}
	m.rowsTotal.WithLabelValues(operation, table).Add(float64(rows))
}

// RecordMergeRows adds rows a merge upserted or deleted in table.
func (m *DatastoreMetrics) RecordMergeRows(table, action string, rows int) {
	if rows <= 0 {
		return
	}
	m.mergeRowsTotal.WithLabelValues(table, action).Add(float64(rows))
}

// RecordMergeDuration observes the duration of a complete merge.
func (m *DatastoreMetrics) RecordMergeDuration(seconds float64) {
	m.mergeDuration.Observe(seconds)
}

// StoreOpened increments the open store gauge.
func (m *DatastoreMetrics) StoreOpened() {
	m.storesOpen.Inc()
}

// StoreClosed decrements the open store gauge.
func (m *DatastoreMetrics) StoreClosed() {
	m.storesOpen.Dec()
}
