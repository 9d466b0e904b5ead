package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the refresh pipeline.
type Metrics struct {
	// Refresh cycle metrics.
	Cycles        *prometheus.CounterVec // labels: mode={live,archive}, outcome={success,failed,skipped}
	CycleDuration prometheus.Histogram
	CycleRunning  prometheus.Gauge
	Notifications prometheus.Counter

	// Upstream feed metrics.
	RecordsFetched *prometheus.CounterVec // labels: endpoint={live,archive}
	FetchErrors    *prometheus.CounterVec // labels: endpoint={live,archive}, kind={transport,status,parse}
	FetchDuration  *prometheus.HistogramVec

	// Store metrics.
	RecordsUpserted prometheus.Counter
	UpsertErrors    prometheus.Counter
	StoredRecords   prometheus.Gauge

	// Map rendering metrics.
	RenderJobs     *prometheus.CounterVec // labels: outcome={success,error,rejected}
	RenderDuration prometheus.Histogram

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	// Subscriber metrics.
	PublishErrors *prometheus.CounterVec // labels: subscriber
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates all pipeline metrics and registers them with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics(true)

	reg.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.CycleRunning,
		m.Notifications,
		m.RecordsFetched,
		m.FetchErrors,
		m.FetchDuration,
		m.RecordsUpserted,
		m.UpsertErrors,
		m.StoredRecords,
		m.RenderJobs,
		m.RenderDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "refresh_cycles_total",
			Help:      help("Refresh cycles by mode and outcome."),
		}, []string{"mode", "outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quake_watch",
			Name:      "refresh_cycle_duration_seconds",
			Help:      help("Duration of a complete fetch-normalize-persist-distribute cycle."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_watch",
			Name:      "refresh_cycle_running",
			Help:      help("1 while a refresh cycle is in flight, 0 when idle."),
		}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "notifications_total",
			Help:      help("Live records that met the notification magnitude threshold."),
		}),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "records_fetched_total",
			Help:      help("Raw records received from the upstream feed."),
		}, []string{"endpoint"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "fetch_errors_total",
			Help:      help("Upstream fetch failures by endpoint and kind."),
		}, []string{"endpoint", "kind"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quake_watch",
			Name:      "fetch_duration_seconds",
			Help:      help("Upstream request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"endpoint"}),
		RecordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "records_upserted_total",
			Help:      help("Records written to the local store."),
		}),
		UpsertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "upsert_errors_total",
			Help:      help("Records skipped because the store rejected them."),
		}),
		StoredRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_watch",
			Name:      "stored_records",
			Help:      help("Rows in the local earthquake table after the last cycle."),
		}),
		RenderJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "render_jobs_total",
			Help:      help("Map render jobs by outcome."),
		}, []string{"outcome"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quake_watch",
			Name:      "render_duration_seconds",
			Help:      help("Map render job duration in seconds."),
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "geocode_requests_total",
			Help:      help("Reverse geocoding requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quake_watch",
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_watch",
			Name:      "geocode_enabled",
			Help:      help("1 when geocoding enrichment is enabled, 0 otherwise."),
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_watch",
			Name:      "publish_errors_total",
			Help:      help("Failures delivering a cycle's records to a subscriber."),
		}, []string{"subscriber"}),
	}
}
