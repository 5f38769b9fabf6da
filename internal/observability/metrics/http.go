package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPClientMetrics contains Prometheus metrics for outbound HTTP calls
type HTTPClientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewHTTPClientMetrics creates the collectors and registers them on registry.
func NewHTTPClientMetrics(registry prometheus.Registerer) (*HTTPClientMetrics, error) {
	m := &HTTPClientMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPClientMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_http_client_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"service", "method", "status_code"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aoi_http_client_request_duration_seconds",
			Help:    "Time taken for outbound HTTP requests",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"service", "method"},
	)

	m.collectors = []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
	}
}

// Describe implements prometheus.Collector
func (m *HTTPClientMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *HTTPClientMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRequest counts one request and observes its duration. A status of
// zero means no response arrived and is recorded as StatusError.
func (m *HTTPClientMetrics) RecordRequest(service, method string, status int, seconds float64) {
	code := StatusError
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(service, method, code).Inc()
	m.requestDuration.WithLabelValues(service, method).Observe(seconds)
}
