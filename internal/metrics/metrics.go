package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SearchesTotal counts search executions by kind and outcome.
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsearch",
			Name:      "searches_total",
			Help:      "Total search executions",
		},
		[]string{"kind", "outcome"},
	)

	// SearchDuration observes executor wall-clock time by kind.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcsearch",
			Name:      "search_duration_seconds",
			Help:      "Search executor duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	// DatasetCacheTotal counts fingerprint cache lookups ("hit"/"miss").
	DatasetCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsearch",
			Name:      "dataset_cache_total",
			Help:      "Dataset fingerprint cache lookups",
		},
		[]string{"result"},
	)

	// BackgroundJobs gauges datasets currently assembling in the pool.
	BackgroundJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lcsearch",
			Name:      "background_jobs",
			Help:      "Datasets currently finishing in the background pool",
		},
	)

	// ResolverCacheTotal counts name-resolver cache lookups ("hit"/"miss").
	ResolverCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsearch",
			Name:      "resolver_cache_total",
			Help:      "Name resolver cache lookups",
		},
		[]string{"result"},
	)
)

// RegisterSearchMetrics registers the domain metrics explicitly (no init).
func RegisterSearchMetrics() {
	prometheus.MustRegister(
		SearchesTotal,
		SearchDuration,
		DatasetCacheTotal,
		BackgroundJobs,
		ResolverCacheTotal,
	)
}
