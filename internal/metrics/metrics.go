// Package metrics exposes Prometheus collectors for the poller service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results recorded on cadwatch_cycles_total.
const (
	CycleOK         = "ok"
	CycleFetchError = "fetch_error"
	CycleParseError = "parse_error"
)

var (
	cyclesTotal             *prometheus.CounterVec
	cycleDurationSeconds    prometheus.Histogram
	incidentsParsedTotal    prometheus.Counter
	malformedFragmentsTotal prometheus.Counter
	incidentsPublishedTotal *prometheus.CounterVec
	publishErrorsTotal      prometheus.Counter
	unitFetchErrorsTotal    prometheus.Counter
	stateSaveErrorsTotal    prometheus.Counter
	knownIncidents          prometheus.Gauge
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadwatch_cycles_total",
				Help: "Total number of poll cycles, labeled by result.",
			},
			[]string{"result"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cadwatch_cycle_duration_seconds",
				Help:    "Histogram of full poll cycle durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		)

		incidentsParsedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cadwatch_incidents_parsed_total",
				Help: "Total incident blocks successfully parsed from the board.",
			},
		)

		malformedFragmentsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cadwatch_malformed_fragments_total",
				Help: "Total incident blocks dropped because they did not fit the board layout.",
			},
		)

		incidentsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadwatch_incidents_published_total",
				Help: "Total incidents delivered to the bus, labeled by event.",
			},
			[]string{"event"},
		)

		publishErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cadwatch_publish_errors_total",
				Help: "Total failed deliveries to the bus.",
			},
		)

		unitFetchErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cadwatch_unit_fetch_errors_total",
				Help: "Total detail-page fetches that failed during unit enrichment.",
			},
		)

		stateSaveErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cadwatch_state_save_errors_total",
				Help: "Total failed writes of the dedup state snapshot.",
			},
		)

		knownIncidents = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cadwatch_known_incidents",
				Help: "Incidents currently remembered by the deduplicator.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records one completed poll cycle.
func ObserveCycle(result string, duration time.Duration) {
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// AddParsedIncidents counts blocks the parser turned into records.
func AddParsedIncidents(n int) {
	if n > 0 {
		incidentsParsedTotal.Add(float64(n))
	}
}

// AddMalformedFragments counts blocks the parser had to drop.
func AddMalformedFragments(n int) {
	if n > 0 {
		malformedFragmentsTotal.Add(float64(n))
	}
}

// ObservePublished counts one delivered incident by event ("new"/"updated").
func ObservePublished(event string) {
	incidentsPublishedTotal.WithLabelValues(event).Inc()
}

// ObservePublishError counts one failed delivery.
func ObservePublishError() {
	publishErrorsTotal.Inc()
}

// ObserveUnitFetchError counts one failed detail-page fetch.
func ObserveUnitFetchError() {
	unitFetchErrorsTotal.Inc()
}

// ObserveStateSaveError counts one failed state snapshot write.
func ObserveStateSaveError() {
	stateSaveErrorsTotal.Inc()
}

// SetKnownIncidents tracks the size of the dedup memory.
func SetKnownIncidents(n int) {
	knownIncidents.Set(float64(n))
}

// ObserveHTTPRequest increments the ops API request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
