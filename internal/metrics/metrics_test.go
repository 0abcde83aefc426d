package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-rates/internal/metrics"
)

func TestRateMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveTick(metrics.TickPublished)
	m.ObserveTick(metrics.TickPublished)
	m.ObserveTick(metrics.TickFetchError)
	m.ObserveFetch(20*time.Millisecond, "")
	m.ObserveFetch(time.Second, "timeout")
	m.IncJobChange()
	m.ObservePublish(time.Unix(1700000000, 0), 33)
	m.ObserveDelivery(nil)
	m.ObserveDelivery(errors.New("boom"))
	m.SetSubscribers(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues(metrics.TickPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues(metrics.TickFetchError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrorsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobChangesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishesTotal))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastPublishedUnix))
	assert.Equal(t, 33.0, testutil.ToFloat64(m.SnapshotRatesCount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Subscribers))

	families, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "rates_fetch_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), samples)
}

func TestRateMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.RateMetrics

	assert.NotPanics(t, func() {
		m.ObserveTick(metrics.TickDiscarded)
		m.ObserveFetch(time.Second, "network")
		m.IncJobChange()
		m.ObservePublish(time.Now(), 1)
		m.ObserveDelivery(nil)
		m.SetSubscribers(1)
	})
}
