package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fhirsearch",
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the upstream FHIR server, by response status",
		},
		[]string{"status"},
	)

	ReferenceCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fhirsearch",
			Name:      "reference_cache_total",
			Help:      "Reference cache hits and misses during expansion",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	FilterRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fhirsearch",
			Name:      "filter_records_total",
			Help:      "Records seen by the local filter, by result",
		},
		[]string{"result"}, // "kept" / "rejected" / "outcome"
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fhirsearch",
			Name:      "queries_total",
			Help:      "Orchestrated queries, by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fhirsearch",
			Name:      "http_request_duration_seconds",
			Help:      "Serve mode HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
)

var registerOnce sync.Once

// Register registers the collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(UpstreamRequestsTotal)
		prometheus.MustRegister(ReferenceCacheTotal)
		prometheus.MustRegister(FilterRecordsTotal)
		prometheus.MustRegister(QueriesTotal)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}
