package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters, histograms, and gauges for one ETL run.
type Metrics struct {
	RecordsFetched  *prometheus.CounterVec // labels: source={dcgis-crash,vision-zero}
	RecordsDropped  *prometheus.CounterVec // labels: reason={duplicate}
	RecordsUnplaced prometheus.Counter
	LayerMatches    *prometheus.CounterVec // labels: layer={ward,anc,smd,hexgrid}
	StageDuration   *prometheus.HistogramVec

	SnapshotRows    prometheus.Gauge
	CursorTimestamp prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsFetched,
		m.RecordsDropped,
		m.RecordsUnplaced,
		m.LayerMatches,
		m.StageDuration,
		m.SnapshotRows,
		m.CursorTimestamp,
		m.LastSuccess,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crash_etl",
			Name:      "records_fetched_total",
			Help:      "Normalized records fetched, by source.",
		}, []string{"source"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crash_etl",
			Name:      "records_dropped_total",
			Help:      "Records excluded from the snapshot, by reason.",
		}, []string{"reason"}),
		RecordsUnplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crash_etl",
			Name:      "records_unplaced_total",
			Help:      "Records kept in the snapshot without a usable coordinate.",
		}),
		LayerMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crash_etl",
			Name:      "boundary_matches_total",
			Help:      "Records matched to a polygon, by boundary layer.",
		}, []string{"layer"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crash_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		SnapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crash_etl",
			Name:      "snapshot_rows",
			Help:      "Rows in the most recently written snapshot.",
		}),
		CursorTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crash_etl",
			Name:      "cursor_timestamp_seconds",
			Help:      "Unix timestamp of the persisted incremental cursor.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crash_etl",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last fully successful run.",
		}),
	}
}

// Push sends the default-registry metrics to a Pushgateway. The pipeline is a
// batch job, so there is no scrape target to expose; the gateway holds the
// final state of each run.
func Push(gatewayURL string) error {
	return push.New(gatewayURL, "crash_injury_etl").
		Gatherer(prometheus.DefaultGatherer).
		Push()
}
