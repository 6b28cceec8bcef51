package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fusion pipeline.
type Metrics struct {
	// Mapping build metrics.
	MappedPoints         prometheus.Gauge
	UnmappedPoints       prometheus.Gauge
	MappingBuildDuration prometheus.Histogram

	// Per-unit outcomes by phase. Labels: phase={acquire,process},
	// outcome={processed,skipped,failed}.
	Units *prometheus.CounterVec

	// Acquisition fetch metrics.
	FetchDuration prometheus.Histogram
	FetchRetries  prometheus.Counter

	// Kafka publisher metrics.
	PublishedRows prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		MappedPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridfusion",
			Name:      "mapping_mapped_points",
			Help:      "Grid points assigned to a region in the current mapping.",
		}),
		UnmappedPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridfusion",
			Name:      "mapping_unmapped_points",
			Help:      "Grid points with no containing region (ocean, out of coverage, boundary lines).",
		}),
		MappingBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridfusion",
			Name:      "mapping_build_duration_seconds",
			Help:      "Duration of a full grid-region mapping build.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridfusion",
			Name:      "units_total",
			Help:      "Per-(date,variable) unit outcomes by phase.",
		}, []string{"phase", "outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridfusion",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream grid API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridfusion",
			Name:      "fetch_retries_total",
			Help:      "Upstream fetch attempts beyond the first.",
		}),
		PublishedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridfusion",
			Name:      "published_rows_total",
			Help:      "Daily output rows published to the Kafka sink topic.",
		}),
	}

	prometheus.MustRegister(
		m.MappedPoints,
		m.UnmappedPoints,
		m.MappingBuildDuration,
		m.Units,
		m.FetchDuration,
		m.FetchRetries,
		m.PublishedRows,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		MappedPoints:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gridfusion", Name: "mapping_mapped_points"}),
		UnmappedPoints:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gridfusion", Name: "mapping_unmapped_points"}),
		MappingBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "gridfusion", Name: "mapping_build_duration_seconds"}),
		Units:                prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "gridfusion", Name: "units_total"}, []string{"phase", "outcome"}),
		FetchDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "gridfusion", Name: "fetch_duration_seconds"}),
		FetchRetries:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridfusion", Name: "fetch_retries_total"}),
		PublishedRows:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridfusion", Name: "published_rows_total"}),
	}
}
