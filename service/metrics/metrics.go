package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Ethereum RPC metrics
	ethRPCCallsTotal   *prometheus.CounterVec
	ethRPCCallDuration *prometheus.HistogramVec

	// Feed pipeline metrics
	eventsFetchedTotal    *prometheus.CounterVec
	fetchFailuresTotal    *prometheus.CounterVec
	eventsNormalizedTotal *prometheus.CounterVec
	feedRefreshDuration   *prometheus.HistogramVec
	feedSize              prometheus.Gauge
	recipientLookupsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		ethRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eth_rpc_calls_total",
				Help: "Total number of Ethereum RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		ethRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eth_rpc_call_duration_seconds",
				Help:    "Duration of Ethereum RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		eventsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_events_fetched_total",
				Help: "Total number of ledger events fetched by category",
			},
			[]string{"category"},
		),
		fetchFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_fetch_failures_total",
				Help: "Total number of failed category fetches",
			},
			[]string{"category"},
		),
		eventsNormalizedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_events_normalized_total",
				Help: "Total number of events normalized by category and status",
			},
			[]string{"category", "status"},
		),
		feedRefreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_refresh_duration_seconds",
				Help:    "Duration of full feed aggregation cycles in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		feedSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "feed_size",
				Help: "Number of events in the most recently committed feed",
			},
		),
		recipientLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_recipient_lookups_total",
				Help: "Total number of funding-pot recipient resolutions by status",
			},
			[]string{"status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
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
	}
}

// RecordRPCCall records an Ethereum RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.ethRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.ethRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordEventsFetched records the number of records one category fetch
// returned.
func (m *Metrics) RecordEventsFetched(category string, count int) {
	m.eventsFetchedTotal.WithLabelValues(category).Add(float64(count))
}

// RecordFetchFailure records a failed category fetch. Fetch failures get
// their own counter: a failed fetch returns no records, so it would be
// invisible in the fetched-events count.
func (m *Metrics) RecordFetchFailure(category string) {
	m.fetchFailuresTotal.WithLabelValues(category).Inc()
}

// RecordEventNormalized records a normalization attempt.
func (m *Metrics) RecordEventNormalized(category, status string) {
	m.eventsNormalizedTotal.WithLabelValues(category, status).Inc()
}

// RecordFeedRefresh records a completed aggregation cycle and the size of
// the committed feed.
func (m *Metrics) RecordFeedRefresh(status string, duration float64, size int) {
	m.feedRefreshDuration.WithLabelValues(status).Observe(duration)
	if status == "success" {
		m.feedSize.Set(float64(size))
	}
}

// RecordRecipientLookup records a funding-pot recipient resolution.
func (m *Metrics) RecordRecipientLookup(status string) {
	m.recipientLookupsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

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
