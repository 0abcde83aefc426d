package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes.
const (
	TickPublished  = "published"
	TickFetchError = "fetch_error"
	TickParseError = "parse_error"
	TickDiscarded  = "discarded"
)

// RateMetrics groups the poller and bus collectors. A nil *RateMetrics is
// valid and records nothing.
type RateMetrics struct {
	TicksTotal         prometheus.CounterVec
	FetchErrorsTotal   prometheus.CounterVec
	FetchDuration      prometheus.Histogram
	JobChangesTotal    prometheus.Counter
	PublishesTotal     prometheus.Counter
	DeliveriesTotal    prometheus.CounterVec
	Subscribers        prometheus.Gauge
	LastPublishedUnix  prometheus.Gauge
	SnapshotRatesCount prometheus.Gauge
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *RateMetrics {
	f := promauto.With(reg)
	return &RateMetrics{
		TicksTotal: *f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_poller_ticks_total",
				Help: "Poller ticks by outcome",
			},
			[]string{"result"},
		),
		FetchErrorsTotal: *f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_fetch_errors_total",
				Help: "Failed fetches by error kind",
			},
			[]string{"kind"},
		),
		FetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rates_fetch_duration_seconds",
				Help:    "Latency of a single rate source GET",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
		),
		JobChangesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_poller_job_changes_total",
				Help: "Number of times the active fetch job was replaced",
			},
		),
		PublishesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_bus_publishes_total",
				Help: "Snapshots published on the bus",
			},
		),
		DeliveriesTotal: *f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_bus_deliveries_total",
				Help: "Per-subscriber deliveries by result",
			},
			[]string{"result"},
		),
		Subscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_bus_subscribers",
				Help: "Currently registered bus subscribers",
			},
		),
		LastPublishedUnix: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_last_published_timestamp_seconds",
				Help: "Fetch time of the last published snapshot",
			},
		),
		SnapshotRatesCount: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_snapshot_size",
				Help: "Number of currencies in the last published snapshot",
			},
		),
	}
}

func (m *RateMetrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(result).Inc()
}

func (m *RateMetrics) ObserveFetch(d time.Duration, errKind string) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
	if errKind != "" {
		m.FetchErrorsTotal.WithLabelValues(errKind).Inc()
	}
}

func (m *RateMetrics) IncJobChange() {
	if m == nil {
		return
	}
	m.JobChangesTotal.Inc()
}

func (m *RateMetrics) ObservePublish(at time.Time, size int) {
	if m == nil {
		return
	}
	m.PublishesTotal.Inc()
	m.LastPublishedUnix.Set(float64(at.Unix()))
	m.SnapshotRatesCount.Set(float64(size))
}

func (m *RateMetrics) ObserveDelivery(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DeliveriesTotal.WithLabelValues(result).Inc()
}

func (m *RateMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}
